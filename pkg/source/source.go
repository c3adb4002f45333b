// Package source lists eligible documents in a source folder and fetches
// their bytes, classifying every failure into the run- or item-level kinds
// the pipeline reports.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/3leaps/studiosync/pkg/match"
	"github.com/3leaps/studiosync/pkg/provider"
)

// DefaultMimeType is the eligible content type when none is configured.
const DefaultMimeType = "application/pdf"

// maxPages bounds a single listing so a misbehaving provider that keeps
// returning continuation tokens cannot loop forever.
const maxPages = 10000

// Lister returns the eligible stubs of a folder in source order.
type Lister interface {
	List(ctx context.Context, folderID string) ([]provider.FileStub, error)
}

// Fetcher retrieves the bytes of a listed document.
type Fetcher interface {
	Fetch(ctx context.Context, stub provider.FileStub) (*Payload, error)
}

// Payload is the content of one document, held only while it is transferred.
type Payload struct {
	Data        []byte
	ContentType string
}

// Size returns the payload length in bytes.
func (p *Payload) Size() int64 {
	return int64(len(p.Data))
}

// Config configures a Source.
type Config struct {
	// MimeType is the eligible content type. Empty uses DefaultMimeType.
	MimeType string

	// Matcher optionally filters names. Nil accepts every name.
	Matcher *match.Matcher

	// PageSize is passed to the provider; zero uses the provider default.
	PageSize int

	// MaxBytes rejects larger payloads. Zero disables the check.
	MaxBytes int64

	// RequestTimeout bounds each listing page and each fetch. Zero disables it.
	RequestTimeout time.Duration
}

// Source implements Lister and Fetcher on top of a provider.
type Source struct {
	prov   provider.Provider
	getter provider.ObjectGetter
	cfg    Config
}

var (
	_ Lister  = (*Source)(nil)
	_ Fetcher = (*Source)(nil)
)

// New wraps p. The provider must also implement provider.ObjectGetter.
func New(p provider.Provider, cfg Config) (*Source, error) {
	getter, ok := p.(provider.ObjectGetter)
	if !ok {
		return nil, fmt.Errorf("source: provider %T cannot fetch content", p)
	}
	if cfg.MimeType == "" {
		cfg.MimeType = DefaultMimeType
	}
	if cfg.Matcher == nil {
		cfg.Matcher = match.MatchAll()
	}
	if cfg.MaxBytes < 0 {
		return nil, fmt.Errorf("source: max bytes must be >= 0")
	}
	return &Source{prov: p, getter: getter, cfg: cfg}, nil
}

// MimeType returns the eligible content type.
func (s *Source) MimeType() string {
	return s.cfg.MimeType
}

// Eligible reports whether a stub should be transferred.
func (s *Source) Eligible(stub provider.FileStub) bool {
	if stub.Trashed {
		return false
	}
	if !strings.EqualFold(stub.MimeType, s.cfg.MimeType) {
		return false
	}
	return s.cfg.Matcher.Match(stub.Name)
}

// List pages through the folder and returns the eligible stubs in the order
// the provider returned them.
func (s *Source) List(ctx context.Context, folderID string) ([]provider.FileStub, error) {
	var (
		stubs []provider.FileStub
		token string
	)
	for page := 0; ; page++ {
		if page >= maxPages {
			return nil, s.listError(folderID, fmt.Errorf("listing exceeded %d pages", maxPages))
		}

		res, err := s.listPage(ctx, folderID, token)
		if err != nil {
			return nil, s.listError(folderID, err)
		}
		for _, stub := range res.Items {
			if s.Eligible(stub) {
				stubs = append(stubs, stub)
			}
		}

		if res.ContinuationToken == "" {
			return stubs, nil
		}
		if res.ContinuationToken == token {
			return nil, s.listError(folderID, fmt.Errorf("provider repeated continuation token"))
		}
		token = res.ContinuationToken
	}
}

func (s *Source) listPage(ctx context.Context, folderID, token string) (*provider.ListResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.prov.List(ctx, provider.ListOptions{
		FolderID:          folderID,
		MimeType:          s.cfg.MimeType,
		PageSize:          s.cfg.PageSize,
		ContinuationToken: token,
	})
}

// listError classifies a failed listing. Only rejected credentials are an
// auth failure; a store that denies the query is unavailable to this run.
func (s *Source) listError(folderID string, err error) error {
	kind := ErrSourceUnavailable
	if provider.IsInvalidCredentials(err) {
		kind = ErrSourceAuthFailed
	}
	return &Error{Kind: kind, Op: "list", Target: folderID, Err: err}
}

// Fetch reads the full content of stub.
//
// The content type is taken from the stub and sniffed from the bytes when the
// stub carries none.
func (s *Source) Fetch(ctx context.Context, stub provider.FileStub) (*Payload, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	body, size, err := s.getter.GetObject(ctx, stub.ID)
	if err != nil {
		return nil, s.fetchError(stub, err)
	}
	defer func() { _ = body.Close() }()

	if s.cfg.MaxBytes > 0 && size > s.cfg.MaxBytes {
		return nil, s.fetchError(stub, fmt.Errorf("size %s exceeds limit %s", FormatSize(size), FormatSize(s.cfg.MaxBytes)))
	}

	var buf bytes.Buffer
	if size > 0 {
		buf.Grow(int(size))
	}
	var r io.Reader = body
	if s.cfg.MaxBytes > 0 {
		r = io.LimitReader(body, s.cfg.MaxBytes+1)
	}
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, s.fetchError(stub, err)
	}
	if s.cfg.MaxBytes > 0 && int64(buf.Len()) > s.cfg.MaxBytes {
		return nil, s.fetchError(stub, fmt.Errorf("content exceeds limit %s", FormatSize(s.cfg.MaxBytes)))
	}

	contentType := stub.MimeType
	if contentType == "" {
		contentType = mimetype.Detect(buf.Bytes()).String()
	}
	return &Payload{Data: buf.Bytes(), ContentType: contentType}, nil
}

func (s *Source) fetchError(stub provider.FileStub, err error) error {
	target := stub.Name
	if target == "" {
		target = stub.ID
	}
	return &Error{Kind: ErrContentUnavailable, Op: "fetch", Target: target, Err: err}
}

func (s *Source) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.RequestTimeout)
}

// Code returns the error code for a source error, or "" for other errors.
func Code(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Code()
	}
	return ""
}
