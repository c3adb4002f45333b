// Package pipeline runs one batch transfer: list the eligible documents of a
// source folder, then fetch and hand off each one to the destination session
// through the three-phase handshake.
//
// Items fail independently. Run returns a report with exactly one outcome per
// listed document, or a *RunError when the run could not start at all.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/studiosync/pkg/output"
	"github.com/3leaps/studiosync/pkg/provider"
	"github.com/3leaps/studiosync/pkg/report"
	"github.com/3leaps/studiosync/pkg/source"
	"github.com/3leaps/studiosync/pkg/studio"
)

// Item-level codes that do not come from a collaborator.
const (
	CodeNotAttempted = "NOT_ATTEMPTED"
	CodeInternal     = "INTERNAL_ERROR"
)

// NotAttemptedDetail is the error text of items skipped after cancellation.
const NotAttemptedDetail = "not attempted: run cancelled"

// Transferer drives the destination handshake for one document.
type Transferer interface {
	Transfer(ctx context.Context, it studio.Item, trace studio.Trace) (studio.State, error)
}

var _ Transferer = (*studio.Client)(nil)

// Config configures a Pipeline.
type Config struct {
	// Concurrency is the number of items processed at once.
	// Default: 1
	Concurrency int

	// ItemTimeout bounds one item's fetch and handshake. Zero leaves only
	// the per-call timeouts of the collaborators.
	ItemTimeout time.Duration

	// Verbose adds payload sizes and request URLs to the trail.
	Verbose bool

	// PreserveOrder reports outcomes in listing order instead of
	// completion order. It has no visible effect with Concurrency 1.
	PreserveOrder bool
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:   1,
		ItemTimeout:   5 * time.Minute,
		Verbose:       true,
		PreserveOrder: true,
	}
}

// Request carries the three run inputs.
type Request struct {
	BatchID          string
	DestinationToken string
	FolderID         string
}

func (r Request) trimmed() Request {
	return Request{
		BatchID:          strings.TrimSpace(r.BatchID),
		DestinationToken: strings.TrimSpace(r.DestinationToken),
		FolderID:         strings.TrimSpace(r.FolderID),
	}
}

func (r Request) missing() []string {
	var out []string
	if r.BatchID == "" {
		out = append(out, "batchId")
	}
	if r.DestinationToken == "" {
		out = append(out, "destinationToken")
	}
	if r.FolderID == "" {
		out = append(out, "folderId")
	}
	return out
}

// Pipeline executes runs. It holds no per-run state and may be shared
// across concurrent runs.
type Pipeline struct {
	lister  source.Lister
	fetcher source.Fetcher
	dest    Transferer
	log     *zap.Logger
	writer  output.Writer
	cfg     Config
}

// New creates a pipeline. A nil logger disables logging.
func New(l source.Lister, f source.Fetcher, t Transferer, log *zap.Logger, cfg Config) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{lister: l, fetcher: f, dest: t, log: log, cfg: cfg}
}

// WithWriter attaches a JSONL writer that receives run, item and summary
// records. Returns the pipeline for chaining.
func (p *Pipeline) WithWriter(w output.Writer) *Pipeline {
	p.writer = w
	return p
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// tally holds per-run counters shared by workers.
type tally struct {
	bytes        atomic.Int64
	notAttempted atomic.Int64
}

// Run executes one batch.
//
// Input validation happens before any network call. A listing failure
// aborts the run with a *RunError. Otherwise every listed document yields
// one outcome, including when ctx is cancelled mid-run: items not yet
// started are reported as uploadFailed with NotAttemptedDetail.
func (p *Pipeline) Run(ctx context.Context, req Request) (*report.RunReport, error) {
	start := time.Now()
	req = req.trimmed()

	pre := []string{
		"Received batchId: " + req.BatchID,
		"Received folderId: " + req.FolderID,
	}
	if missing := req.missing(); len(missing) > 0 {
		list := strings.Join(missing, ", ")
		pre = append(pre, "Error: missing parameters: "+list)
		p.log.Warn("run rejected", zap.Strings("missing", missing))
		return nil, &RunError{
			Kind:    KindInputInvalid,
			Message: "missing parameters",
			Err:     fmt.Errorf("%w: %s", ErrInputInvalid, list),
			Debug:   pre,
		}
	}

	log := p.log.With(zap.String("batch_id", req.BatchID), zap.String("folder_id", req.FolderID))

	stubs, err := p.lister.List(ctx, req.FolderID)
	if err != nil {
		pre = append(pre, fmt.Sprintf("Error fetching files from source: %v", err))
		re := listRunError(err, pre)
		log.Error("listing failed", zap.String("kind", string(re.Kind)), zap.Error(err))
		p.emitError(ctx, re, req.FolderID)
		return nil, re
	}

	b := report.NewBuilder(len(stubs), p.cfg.PreserveOrder)
	for _, line := range pre {
		b.Notef("%s", line)
	}
	b.Notef("Found %d eligible files in source folder.", len(stubs))
	log.Info("listing complete", zap.Int("items", len(stubs)))
	p.emit(ctx, func(w output.Writer, c context.Context) error {
		return w.WriteRun(c, &output.RunRecord{BatchID: req.BatchID, FolderID: req.FolderID, Items: len(stubs)})
	})

	t := &tally{}
	p.process(ctx, req, stubs, b, t)

	rep := b.Report()
	counts := rep.Counts()
	elapsed := time.Since(start)
	log.Info("run complete",
		zap.Int("listed", len(stubs)),
		zap.Int("succeeded", counts.Succeeded),
		zap.Int("download_failed", counts.DownloadFailed),
		zap.Int("upload_failed", counts.UploadFailed),
		zap.Int64("not_attempted", t.notAttempted.Load()),
		zap.String("bytes", source.FormatSize(t.bytes.Load())),
		zap.Duration("duration", elapsed),
	)
	p.emit(ctx, func(w output.Writer, c context.Context) error {
		return w.WriteSummary(c, &output.SummaryRecord{
			Listed:         len(stubs),
			Succeeded:      counts.Succeeded,
			DownloadFailed: counts.DownloadFailed,
			UploadFailed:   counts.UploadFailed,
			NotAttempted:   int(t.notAttempted.Load()),
			BytesTotal:     t.bytes.Load(),
			Duration:       elapsed,
			DurationHuman:  elapsed.Round(time.Millisecond).String(),
		})
	})
	return rep, nil
}

// process runs the items with bounded concurrency and returns once every
// stub has an outcome.
func (p *Pipeline) process(ctx context.Context, req Request, stubs []provider.FileStub, b *report.Builder, t *tally) {
	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup

	for i, stub := range stubs {
		if !acquire(ctx, sem) {
			p.skip(ctx, stubs, i, b, t)
			break
		}

		wg.Add(1)
		go func(index int, stub provider.FileStub) {
			defer wg.Done()
			defer func() { <-sem }()
			p.processItem(ctx, req, index, stub, b, t)
		}(i, stub)
	}

	wg.Wait()
}

// acquire takes a worker slot unless ctx is done.
func acquire(ctx context.Context, sem chan struct{}) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return false
	}
	if ctx.Err() != nil {
		<-sem
		return false
	}
	return true
}

// skip records every stub from index on as not attempted.
func (p *Pipeline) skip(ctx context.Context, stubs []provider.FileStub, from int, b *report.Builder, t *tally) {
	p.log.Warn("run cancelled, skipping remaining items", zap.Int("remaining", len(stubs)-from))
	for i := from; i < len(stubs); i++ {
		trail := &report.Trail{}
		trail.Addf("Skipped '%s': run cancelled.", stubs[i].Name)
		p.finish(ctx, i, stubs[i], report.ItemOutcome{
			File:   stubs[i].Name,
			Status: report.StatusUploadFailed,
			Error:  NotAttemptedDetail,
		}, CodeNotAttempted, 0, 0, b, trail)
		t.notAttempted.Add(1)
	}
}

// processItem fetches and transfers one stub. It always records exactly one
// outcome, including when a collaborator panics.
//
// The run context only gates the start of the handshake. Once registration
// has begun the item runs on a detached context so a cancelled run does not
// leave a registered but unconfirmed file behind.
func (p *Pipeline) processItem(ctx context.Context, req Request, index int, stub provider.FileStub, b *report.Builder, t *tally) {
	start := time.Now()
	trail := &report.Trail{}
	outcome := report.ItemOutcome{File: stub.Name}
	var (
		code string
		size int64
	)

	defer func() {
		if r := recover(); r != nil {
			outcome = report.ItemOutcome{
				File:   stub.Name,
				Status: report.StatusUploadFailed,
				Error:  fmt.Sprintf("internal error: %v", r),
			}
			code = CodeInternal
			trail.Addf("Error processing '%s': internal error: %v", stub.Name, r)
			p.log.Error("item worker panicked", zap.String("file", stub.Name), zap.Any("panic", r), zap.Stack("stack"))
		}
		p.finish(ctx, index, stub, outcome, code, size, time.Since(start), b, trail)
	}()

	itemCtx := context.WithoutCancel(ctx)
	if p.cfg.ItemTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(itemCtx, p.cfg.ItemTimeout)
		defer cancel()
	}

	if p.cfg.Verbose && stub.SourceURL != "" {
		trail.Addf("Processing file: %s with URL: %s", stub.Name, redactURL(stub.SourceURL))
	} else {
		trail.Addf("Processing file: %s", stub.Name)
	}

	// Fetch is abandoned on cancellation; nothing remote exists yet.
	fetchCtx, stop := mergeCancel(itemCtx, ctx)
	payload, err := p.fetcher.Fetch(fetchCtx, stub)
	stop()
	if err != nil {
		trail.Addf("Error downloading '%s': %v", stub.Name, err)
		outcome.Status = report.StatusDownloadFailed
		outcome.Error = err.Error()
		code = source.Code(err)
		if code == "" {
			code = source.CodeContentUnavailable
		}
		return
	}
	size = payload.Size()
	if p.cfg.Verbose {
		trail.Addf("Downloaded file '%s' from source (%s, %s).", stub.Name, source.FormatSize(size), payload.ContentType)
	} else {
		trail.Addf("Downloaded file '%s' from source.", stub.Name)
	}

	if ctx.Err() != nil {
		trail.Addf("Skipped upload of '%s': run cancelled.", stub.Name)
		outcome.Status = report.StatusUploadFailed
		outcome.Error = NotAttemptedDetail
		code = CodeNotAttempted
		t.notAttempted.Add(1)
		return
	}

	_, err = p.dest.Transfer(itemCtx, studio.Item{
		Session:     req.BatchID,
		Token:       req.DestinationToken,
		Name:        stub.Name,
		SourceURL:   stub.SourceURL,
		Data:        payload.Data,
		ContentType: payload.ContentType,
	}, p.tracer(stub.Name, trail))
	if err != nil {
		trail.Addf("Error uploading '%s' to destination: %v", stub.Name, err)
		outcome.Status = report.StatusUploadFailed
		outcome.Error = err.Error()
		code = studio.Code(err)
		if code == "" {
			code = studio.CodeUploadFailed
		}
		return
	}

	trail.Addf("Uploaded and confirmed '%s' successfully.", stub.Name)
	outcome.Status = report.StatusSucceeded
	t.bytes.Add(size)
}

// tracer turns handshake transitions into trail lines.
func (p *Pipeline) tracer(name string, trail *report.Trail) studio.Trace {
	return func(ev studio.TraceEvent) {
		switch ev.Event {
		case studio.EventAttempted:
			if p.cfg.Verbose && ev.URL != "" {
				trail.Addf("%s '%s': attempted (%s)", ev.Phase, name, redactURL(ev.URL))
			} else {
				trail.Addf("%s '%s': attempted", ev.Phase, name)
			}
		case studio.EventSucceeded:
			trail.Addf("%s '%s': succeeded", ev.Phase, name)
		case studio.EventFailed:
			var pe *studio.PhaseError
			if errors.As(ev.Err, &pe) && pe.StatusCode != 0 {
				trail.Addf("%s '%s': failed: destination response: %d - %s", ev.Phase, name, pe.StatusCode, pe.Body)
			} else {
				trail.Addf("%s '%s': failed: %v", ev.Phase, name, ev.Err)
			}
		}
	}
}

// finish records the outcome and mirrors it to the log and writer.
func (p *Pipeline) finish(ctx context.Context, index int, stub provider.FileStub, outcome report.ItemOutcome, code string, size int64, elapsed time.Duration, b *report.Builder, trail *report.Trail) {
	b.Record(index, outcome, trail)

	fields := []zap.Field{
		zap.Int("index", index),
		zap.String("file", stub.Name),
		zap.String("status", string(outcome.Status)),
		zap.Duration("duration", elapsed),
	}
	if outcome.Status == report.StatusSucceeded {
		p.log.Debug("item complete", append(fields, zap.Int64("bytes", size))...)
	} else {
		p.log.Warn("item failed", append(fields, zap.String("code", code), zap.String("error", outcome.Error))...)
	}

	p.emit(ctx, func(w output.Writer, c context.Context) error {
		rec := &output.ItemRecord{
			Index:    index,
			ID:       stub.ID,
			File:     stub.Name,
			Status:   string(outcome.Status),
			Error:    outcome.Error,
			Code:     code,
			Duration: elapsed,
		}
		if outcome.Status == report.StatusSucceeded {
			rec.Bytes = size
		}
		return w.WriteItem(c, rec)
	})
}

func (p *Pipeline) emitError(ctx context.Context, re *RunError, folderID string) {
	p.emit(ctx, func(w output.Writer, c context.Context) error {
		return w.WriteError(c, &output.ErrorRecord{Code: string(re.Kind), Message: re.Error(), FolderID: folderID})
	})
}

// emit writes a record if a writer is attached. Records are written even
// after cancellation so the stream stays complete. Failures are logged only.
func (p *Pipeline) emit(ctx context.Context, write func(output.Writer, context.Context) error) {
	if p.writer == nil {
		return
	}
	if err := write(p.writer, context.WithoutCancel(ctx)); err != nil {
		p.log.Warn("output write failed", zap.Error(err))
	}
}

// mergeCancel returns a context derived from base that is also cancelled
// when other is done.
func mergeCancel(base, other context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(base)
	stop := context.AfterFunc(other, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// redactURL drops the query string, which carries signatures on presigned
// storage URLs.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}
	if strings.Contains(strings.ToLower(u.RawQuery), "signature") || strings.Contains(u.RawQuery, "sig=") {
		u.RawQuery = ""
		return u.String() + "?<redacted>"
	}
	return raw
}
