package cmd

import (
	"errors"
	"fmt"
)

// cliError carries a process exit code.
type cliError struct {
	code int
	msg  string
	err  error
}

func (e *cliError) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.msg, e.err, e.code)
}

func (e *cliError) Unwrap() error {
	return e.err
}

// exitError wraps err with a message and the exit code the process should
// end with.
func exitError(code int, message string, err error) error {
	return &cliError{code: code, msg: message, err: err}
}

// exitCodeOf returns the exit code carried by err, or 1.
func exitCodeOf(err error) int {
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return 1
}
