// Package output provides JSONL event output for pipeline runs.
//
// Each line is a typed record envelope that can be parsed independently:
// one run record when processing starts, one item record per document,
// and a final summary (or a run-level error record).
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: studiosync.<type>.v<version>
const (
	// TypeRun identifies the record emitted once the run has listed its items.
	TypeRun = "studiosync.run.v1"

	// TypeItem identifies per-document outcome records.
	TypeItem = "studiosync.item.v1"

	// TypeError identifies run-level error records.
	TypeError = "studiosync.error.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "studiosync.summary.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the record type (e.g., "studiosync.item.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// RunID is the correlation ID for this run.
	RunID string `json:"run_id"`

	// Provider identifies the source provider (e.g., "drive", "s3").
	Provider string `json:"provider"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// RunRecord is the data payload emitted after listing.
type RunRecord struct {
	BatchID  string `json:"batch_id"`
	FolderID string `json:"folder_id"`
	Items    int    `json:"items"`
}

// ItemRecord is the data payload for a single document outcome.
type ItemRecord struct {
	// Index is the position of the item in the listing.
	Index int `json:"index"`

	// ID is the source identifier of the document.
	ID string `json:"id"`

	// File is the document name.
	File string `json:"file"`

	// Status is one of succeeded, downloadFailed, uploadFailed.
	Status string `json:"status"`

	// Error is the failure detail, if any.
	Error string `json:"error,omitempty"`

	// Code is the machine-readable failure kind, if any.
	Code string `json:"code,omitempty"`

	// Bytes is the payload size transferred.
	Bytes int64 `json:"bytes,omitempty"`

	// Duration is the time spent on the item.
	Duration time.Duration `json:"duration_ns"`
}

// ErrorRecord is the data payload for run-level errors.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// FolderID is the folder being listed when the error occurred.
	FolderID string `json:"folder_id,omitempty"`
}

// SummaryRecord is the data payload for final summaries.
type SummaryRecord struct {
	// Listed is the number of eligible documents found.
	Listed int `json:"listed"`

	Succeeded      int `json:"succeeded"`
	DownloadFailed int `json:"download_failed"`
	UploadFailed   int `json:"upload_failed"`

	// NotAttempted counts items skipped because the run was cancelled.
	// They are included in UploadFailed.
	NotAttempted int `json:"not_attempted,omitempty"`

	// BytesTotal is the cumulative size of transferred payloads in bytes.
	BytesTotal int64 `json:"bytes_total"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
