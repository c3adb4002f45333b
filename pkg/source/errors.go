package source

import (
	"errors"
	"fmt"
)

// Kinds of source failures. Error values wrap one of these alongside the
// underlying provider error, so both match with errors.Is.
var (
	// ErrSourceAuthFailed means the source rejected the service credentials.
	ErrSourceAuthFailed = errors.New("source authentication failed")

	// ErrSourceUnavailable means the folder could not be listed.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrContentUnavailable means a document's bytes could not be retrieved.
	ErrContentUnavailable = errors.New("content unavailable")
)

// Error codes reported for source failures.
const (
	CodeSourceAuthFailed   = "SOURCE_AUTH_FAILED"
	CodeSourceUnavailable  = "SOURCE_UNAVAILABLE"
	CodeContentUnavailable = "CONTENT_UNAVAILABLE"
)

// Error is a classified source failure.
type Error struct {
	// Kind is one of ErrSourceAuthFailed, ErrSourceUnavailable, ErrContentUnavailable.
	Kind error

	// Op is the operation that failed ("list" or "fetch").
	Op string

	// Target is the folder or document the operation addressed.
	Target string

	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Target, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause.
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Code returns the machine-readable code for the error kind.
func (e *Error) Code() string {
	switch e.Kind {
	case ErrSourceAuthFailed:
		return CodeSourceAuthFailed
	case ErrContentUnavailable:
		return CodeContentUnavailable
	default:
		return CodeSourceUnavailable
	}
}

// IsAuthFailed reports whether err is a source authentication failure.
func IsAuthFailed(err error) bool {
	return errors.Is(err, ErrSourceAuthFailed)
}

// IsUnavailable reports whether err is a listing failure other than auth.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrSourceUnavailable)
}

// IsContentUnavailable reports whether err is a fetch failure.
func IsContentUnavailable(err error) bool {
	return errors.Is(err, ErrContentUnavailable)
}
