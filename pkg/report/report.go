// Package report holds the run report returned by a pipeline run: one
// outcome per listed document plus an ordered diagnostic trail.
package report

import (
	"fmt"
	"sync"
)

// Status is the caller-facing outcome category of one document.
type Status string

const (
	StatusSucceeded      Status = "succeeded"
	StatusDownloadFailed Status = "downloadFailed"
	StatusUploadFailed   Status = "uploadFailed"
)

// ItemOutcome is the result for a single listed document.
type ItemOutcome struct {
	File   string `json:"file" yaml:"file"`
	Status Status `json:"status" yaml:"status"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
}

// RunReport is the terminal value of a run.
type RunReport struct {
	Items []ItemOutcome `json:"items" yaml:"items"`
	Debug []string      `json:"debug,omitempty" yaml:"debug,omitempty"`
}

// Counts tallies outcomes by status.
type Counts struct {
	Succeeded      int
	DownloadFailed int
	UploadFailed   int
}

// Total returns the number of outcomes counted.
func (c Counts) Total() int {
	return c.Succeeded + c.DownloadFailed + c.UploadFailed
}

// Counts tallies the report's outcomes.
func (r *RunReport) Counts() Counts {
	var c Counts
	for _, it := range r.Items {
		switch it.Status {
		case StatusSucceeded:
			c.Succeeded++
		case StatusDownloadFailed:
			c.DownloadFailed++
		case StatusUploadFailed:
			c.UploadFailed++
		}
	}
	return c
}

// Builder accumulates a RunReport from concurrent item workers.
//
// Each Record call appends an outcome together with its trail lines under a
// single lock, so one item's lines are never interleaved with another's.
type Builder struct {
	mu      sync.Mutex
	ordered bool
	slots   []ItemOutcome
	filled  []bool
	items   []ItemOutcome
	debug   []string
}

// NewBuilder returns a Builder for n items. When ordered is true outcomes are
// placed by listing index; otherwise they are kept in completion order.
func NewBuilder(n int, ordered bool) *Builder {
	b := &Builder{ordered: ordered}
	if ordered {
		b.slots = make([]ItemOutcome, n)
		b.filled = make([]bool, n)
	} else {
		b.items = make([]ItemOutcome, 0, n)
	}
	return b
}

// Notef appends a run-level trail line.
func (b *Builder) Notef(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	b.mu.Lock()
	b.debug = append(b.debug, line)
	b.mu.Unlock()
}

// Record stores the outcome for the item at index and appends its trail.
// Recording the same index twice keeps the first outcome.
func (b *Builder) Record(index int, outcome ItemOutcome, trail *Trail) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ordered {
		if index < 0 || index >= len(b.slots) || b.filled[index] {
			return
		}
		b.slots[index] = outcome
		b.filled[index] = true
	} else {
		b.items = append(b.items, outcome)
	}
	if trail != nil {
		b.debug = append(b.debug, trail.lines...)
	}
}

// Report returns a snapshot of the accumulated report.
//
// In ordered mode unrecorded slots are omitted.
func (b *Builder) Report() *RunReport {
	b.mu.Lock()
	defer b.mu.Unlock()

	r := &RunReport{Debug: append([]string(nil), b.debug...)}
	if b.ordered {
		r.Items = make([]ItemOutcome, 0, len(b.slots))
		for i, it := range b.slots {
			if b.filled[i] {
				r.Items = append(r.Items, it)
			}
		}
	} else {
		r.Items = append(make([]ItemOutcome, 0, len(b.items)), b.items...)
	}
	return r
}

// Trail buffers the diagnostic lines of one item until it is recorded.
// A Trail is owned by a single worker and is not safe for concurrent use.
type Trail struct {
	lines []string
}

// Addf appends a formatted line.
func (t *Trail) Addf(format string, args ...any) {
	t.lines = append(t.lines, fmt.Sprintf(format, args...))
}

// Lines returns the buffered lines.
func (t *Trail) Lines() []string {
	return t.lines
}
