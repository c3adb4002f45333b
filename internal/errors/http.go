// Package errors defines the HTTP error envelope shared by the server,
// its handlers and middleware. Envelopes are built with gofulmen/errors;
// the correlation id is rendered as request_id and context as details.
//
//	{"error": {"code": "...", "message": "...", "request_id": "...", "details": {...}}, "debug": [...]}
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	gferrors "github.com/fulmenhq/gofulmen/errors"
)

// Standard error codes.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeTimeout            = "TIMEOUT"
)

// ErrorBody is the "error" member of the envelope.
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// HTTPErrorResponse is the JSON body of every error response.
type HTTPErrorResponse struct {
	Error ErrorBody `json:"error"`

	// Debug carries the run trail for pipeline failures when exposed.
	Debug []string `json:"debug,omitempty"`
}

// AppError is an error with an HTTP status and envelope fields.
type AppError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
	Debug   []string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New returns an AppError without a cause.
func New(status int, code, message string) *AppError {
	return &AppError{Status: status, Code: code, Message: message}
}

// Wrap returns an AppError with err as its cause.
func Wrap(err error, status int, code, message string) *AppError {
	return &AppError{Status: status, Code: code, Message: message, Err: err}
}

// WithDetails sets envelope details and returns e.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// WithDebug sets the debug trail and returns e.
func (e *AppError) WithDebug(debug []string) *AppError {
	e.Debug = debug
	return e
}

type requestIDKey struct{}

// ContextWithRequestID stores a request id for later envelope rendering.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the stored request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Envelope builds the gofulmen envelope for e, correlated with requestID.
// Details travel as envelope context.
func (e *AppError) Envelope(requestID string) *gferrors.ErrorEnvelope {
	env := gferrors.NewErrorEnvelope(e.Code, e.Message)
	if requestID != "" {
		env = env.WithCorrelationID(requestID)
	}
	if len(e.Details) > 0 {
		if withCtx, err := env.WithContext(e.Details); err == nil {
			env = withCtx
		}
	}
	return env
}

// BodyFromEnvelope converts a gofulmen envelope to the wire body.
func BodyFromEnvelope(env *gferrors.ErrorEnvelope) ErrorBody {
	if env == nil {
		return ErrorBody{Code: CodeInternal, Message: "internal server error"}
	}
	return ErrorBody{
		Code:      env.Code,
		Message:   env.Message,
		RequestID: env.CorrelationID,
		Details:   env.Context,
	}
}

// WriteEnvelope writes env with the given status and optional debug trail.
func WriteEnvelope(w http.ResponseWriter, status int, env *gferrors.ErrorEnvelope, debug []string) {
	WriteJSON(w, status, HTTPErrorResponse{Error: BodyFromEnvelope(env), Debug: debug})
}

// RespondWithError writes err as an envelope. Errors that are not an
// *AppError become a 500 INTERNAL_ERROR without exposing their text.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *AppError
	if !stderrors.As(err, &ae) {
		ae = New(http.StatusInternalServerError, CodeInternal, "internal server error")
	}
	WriteEnvelope(w, ae.Status, ae.Envelope(RequestIDFromContext(r.Context())), ae.Debug)
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
