package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
		wantDebug  []string
	}{
		{
			name:       "app error",
			err:        New(http.StatusBadRequest, "INPUT_INVALID", "missing parameters").WithDebug([]string{"Received batchId: "}),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INPUT_INVALID",
			wantMsg:    "missing parameters",
			wantDebug:  []string{"Received batchId: "},
		},
		{
			name:       "wrapped app error",
			err:        fmt.Errorf("outer: %w", New(http.StatusNotFound, CodeNotFound, "gone")),
			wantStatus: http.StatusNotFound,
			wantCode:   CodeNotFound,
			wantMsg:    "gone",
		},
		{
			name:       "plain error hides text",
			err:        fmt.Errorf("db password is hunter2"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   CodeInternal,
			wantMsg:    "internal server error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/upload", nil)
			req = req.WithContext(ContextWithRequestID(req.Context(), "req-1"))
			rec := httptest.NewRecorder()

			RespondWithError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body HTTPErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.Equal(t, tt.wantMsg, body.Error.Message)
			assert.Equal(t, "req-1", body.Error.RequestID)
			assert.Equal(t, tt.wantDebug, body.Debug)
		})
	}
}

func TestAppError(t *testing.T) {
	cause := fmt.Errorf("boom")
	e := Wrap(cause, http.StatusInternalServerError, "SOURCE_UNAVAILABLE", "fetching files failed").
		WithDetails(map[string]any{"folder_id": "F1"})

	assert.Equal(t, "fetching files failed: boom", e.Error())
	assert.ErrorIs(t, e, cause)
	assert.Equal(t, "F1", e.Details["folder_id"])
}

func TestAppError_Envelope(t *testing.T) {
	ae := New(http.StatusBadRequest, "INPUT_INVALID", "bad body").
		WithDetails(map[string]any{"violations": []any{"batchId"}})

	body := BodyFromEnvelope(ae.Envelope("req-9"))
	assert.Equal(t, "INPUT_INVALID", body.Code)
	assert.Equal(t, "bad body", body.Message)
	assert.Equal(t, "req-9", body.RequestID)
	assert.Contains(t, body.Details, "violations")

	bare := BodyFromEnvelope(New(http.StatusNotFound, CodeNotFound, "gone").Envelope(""))
	assert.Empty(t, bare.RequestID)
	assert.Empty(t, bare.Details)
}

func TestRespondWithError_Details(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	RespondWithError(rec, req, New(http.StatusServiceUnavailable, CodeServiceUnavailable, "unhealthy").
		WithDetails(map[string]any{"checks": map[string]any{"source": "down"}}))

	var body HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	checks, ok := body.Error.Details["checks"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "down", checks["source"])
}

func TestRequestIDFromContext_Empty(t *testing.T) {
	assert.Equal(t, "", RequestIDFromContext(context.Background()))
}
