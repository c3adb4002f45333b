package studio

import (
	"errors"
	"fmt"
)

// Phase failure kinds. A PhaseError wraps one of these.
var (
	ErrRegistrationFailed = errors.New("registration failed")
	ErrUploadFailed       = errors.New("upload failed")
	ErrConfirmFailed      = errors.New("confirm failed")
)

// Error codes for phase failures.
const (
	CodeRegistrationFailed = "REGISTRATION_FAILED"
	CodeUploadFailed       = "UPLOAD_FAILED"
	CodeConfirmFailed      = "CONFIRM_FAILED"
)

// PhaseError describes a failed handshake phase.
type PhaseError struct {
	Phase Phase

	// StatusCode is the HTTP status returned, or 0 if no response was received.
	StatusCode int

	// Body is the (possibly truncated) response body text.
	Body string

	// Err is the transport or decoding error, if any.
	Err error
}

func (e *PhaseError) kind() error {
	switch e.Phase {
	case PhaseRegister:
		return ErrRegistrationFailed
	case PhaseUpload:
		return ErrUploadFailed
	default:
		return ErrConfirmFailed
	}
}

func (e *PhaseError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%v: status %d: %v: %s", e.kind(), e.StatusCode, e.Err, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%v: status %d: %s", e.kind(), e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.kind(), e.Err)
	default:
		return e.kind().Error()
	}
}

// Unwrap exposes the phase kind and the cause.
func (e *PhaseError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.kind()}
	}
	return []error{e.kind(), e.Err}
}

// Code returns the machine-readable code for the failed phase.
func (e *PhaseError) Code() string {
	switch e.Phase {
	case PhaseRegister:
		return CodeRegistrationFailed
	case PhaseUpload:
		return CodeUploadFailed
	default:
		return CodeConfirmFailed
	}
}

// Code returns the phase code for err, or "" if err is not a PhaseError.
func Code(err error) string {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Code()
	}
	return ""
}
