package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/schema"
	"go.uber.org/zap"

	schemasassets "github.com/3leaps/studiosync/internal/assets/schemas"
	apperrors "github.com/3leaps/studiosync/internal/errors"
	"github.com/3leaps/studiosync/pkg/pipeline"
	"github.com/3leaps/studiosync/pkg/report"
)

// CodePayloadTooLarge is returned when a request body exceeds the limit.
const CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"

// DefaultMaxBodyBytes caps run request bodies when no limit is configured.
const DefaultMaxBodyBytes = 64 << 10

// Runner executes one transfer run.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*report.RunReport, error)
}

var _ Runner = (*pipeline.Pipeline)(nil)

// RunOptions configures RunHandler.
type RunOptions struct {
	// ExposeDebug includes the run trail in responses.
	ExposeDebug bool

	// Timeout bounds a whole run. Zero means the request context only.
	Timeout time.Duration

	// MaxBodyBytes caps the request body. Zero uses DefaultMaxBodyBytes.
	MaxBodyBytes int64

	Logger *zap.Logger
}

// RunHandler serves POST /upload and POST /v1/runs.
type RunHandler struct {
	runner Runner
	opts   RunOptions
	log    *zap.Logger
}

// NewRunHandler creates a handler around runner.
func NewRunHandler(runner Runner, opts RunOptions) *RunHandler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &RunHandler{runner: runner, opts: opts, log: log}
}

// runRequest accepts both the original camelCase keys and the neutral ones.
type runRequest struct {
	SessionID           string `json:"sessionId"`
	BluebeamAccessToken string `json:"bluebeamAccessToken"`
	DriveFolderID       string `json:"driveFolderId"`

	BatchID          string `json:"batchId"`
	DestinationToken string `json:"destinationToken"`
	FolderID         string `json:"folderId"`
}

func (r runRequest) toPipeline() pipeline.Request {
	return pipeline.Request{
		BatchID:          firstNonEmpty(r.BatchID, r.SessionID),
		DestinationToken: firstNonEmpty(r.DestinationToken, r.BluebeamAccessToken),
		FolderID:         firstNonEmpty(r.FolderID, r.DriveFolderID),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		respondWithError(w, r, apperrors.New(http.StatusServiceUnavailable, apperrors.CodeServiceUnavailable, "run pipeline not configured"))
		return
	}

	req, appErr := h.decode(w, r)
	if appErr != nil {
		respondWithError(w, r, appErr)
		return
	}

	ctx := r.Context()
	if h.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	rep, err := h.runner.Run(ctx, req)
	if err != nil {
		h.log.Warn("run failed",
			zap.String("request_id", apperrors.RequestIDFromContext(r.Context())),
			zap.String("batch_id", req.BatchID),
			zap.Error(err))
		respondWithError(w, r, h.runError(err))
		return
	}

	c := rep.Counts()
	h.log.Info("run finished",
		zap.String("request_id", apperrors.RequestIDFromContext(r.Context())),
		zap.String("batch_id", req.BatchID),
		zap.Int("items", c.Total()),
		zap.Int("succeeded", c.Succeeded),
		zap.Duration("elapsed", time.Since(start)))

	out := *rep
	if !h.opts.ExposeDebug {
		out.Debug = nil
	}
	apperrors.WriteJSON(w, http.StatusOK, out)
}

func (h *RunHandler) decode(w http.ResponseWriter, r *http.Request) (pipeline.Request, *apperrors.AppError) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return pipeline.Request{}, apperrors.New(http.StatusRequestEntityTooLarge, CodePayloadTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return pipeline.Request{}, apperrors.Wrap(err, http.StatusBadRequest, apperrors.CodeBadRequest, "failed to read request body")
	}

	// An empty body has no parameters; the pipeline reports which are missing.
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}
	if !json.Valid(body) {
		return pipeline.Request{}, apperrors.New(http.StatusBadRequest, apperrors.CodeBadRequest, "request body is not valid JSON")
	}
	if violations, err := validateRunRequest(body); err != nil {
		return pipeline.Request{}, apperrors.Wrap(err, http.StatusInternalServerError, apperrors.CodeInternal, "request validation unavailable")
	} else if len(violations) > 0 {
		return pipeline.Request{}, apperrors.New(http.StatusBadRequest, apperrors.CodeBadRequest, "request body does not match the run request schema").
			WithDetails(map[string]any{"violations": violations})
	}

	var rr runRequest
	if err := json.Unmarshal(body, &rr); err != nil {
		return pipeline.Request{}, apperrors.Wrap(err, http.StatusBadRequest, apperrors.CodeBadRequest, "request body is not a run request")
	}
	return rr.toPipeline(), nil
}

func (h *RunHandler) runError(err error) *apperrors.AppError {
	re, ok := pipeline.AsRunError(err)
	if !ok {
		return apperrors.Wrap(err, http.StatusInternalServerError, apperrors.CodeInternal, "run failed")
	}
	ae := apperrors.Wrap(re, re.HTTPStatus(), string(re.Kind), re.Message)
	if h.opts.ExposeDebug {
		ae.WithDebug(re.Debug)
	}
	return ae
}

var (
	runValidatorOnce sync.Once
	runValidator     *schema.Validator
	runValidatorErr  error
)

func getRunValidator() (*schema.Validator, error) {
	runValidatorOnce.Do(func() {
		runValidator, runValidatorErr = schema.NewValidator(schemasassets.RunRequestSchema)
		if runValidatorErr != nil {
			runValidatorErr = fmt.Errorf("failed to compile run request schema: %w", runValidatorErr)
		}
	})
	return runValidator, runValidatorErr
}

// validateRunRequest returns "pointer: message" strings for schema errors.
func validateRunRequest(body []byte) ([]string, error) {
	v, err := getRunValidator()
	if err != nil {
		return nil, err
	}
	diags, err := v.ValidateJSON(body)
	if err != nil {
		return nil, fmt.Errorf("schema validation error: %w", err)
	}
	var out []string
	for _, d := range diags {
		if d.Severity != schema.SeverityError {
			continue
		}
		ptr := d.Pointer
		if ptr == "" {
			ptr = "/"
		}
		out = append(out, ptr+": "+d.Message)
	}
	return out, nil
}
