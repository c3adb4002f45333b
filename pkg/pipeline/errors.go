package pipeline

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/3leaps/studiosync/pkg/source"
)

// Kind classifies a run-level failure.
type Kind string

const (
	KindInputInvalid      Kind = "INPUT_INVALID"
	KindSourceAuthFailed  Kind = "SOURCE_AUTH_FAILED"
	KindSourceUnavailable Kind = "SOURCE_UNAVAILABLE"
)

// ErrInputInvalid is wrapped by RunErrors of KindInputInvalid.
var ErrInputInvalid = errors.New("input invalid")

// RunError is a failure that aborts the run before any item is processed.
// No report is produced; Debug holds the trail recorded up to the failure.
type RunError struct {
	Kind    Kind
	Message string
	Err     error
	Debug   []string
}

func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the kind to a response status.
func (e *RunError) HTTPStatus() int {
	if e.Kind == KindInputInvalid {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// KindOf returns the kind of a run error, or "" if err is not one.
func KindOf(err error) Kind {
	var re *RunError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// AsRunError returns err as a *RunError if it is one.
func AsRunError(err error) (*RunError, bool) {
	var re *RunError
	ok := errors.As(err, &re)
	return re, ok
}

func listRunError(err error, debug []string) *RunError {
	if source.IsAuthFailed(err) {
		return &RunError{Kind: KindSourceAuthFailed, Message: "source authentication failed", Err: err, Debug: debug}
	}
	return &RunError{Kind: KindSourceUnavailable, Message: "fetching files failed", Err: err, Debug: debug}
}
