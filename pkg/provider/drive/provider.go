package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/3leaps/studiosync/pkg/provider"
)

// listFields is the partial response selector for Files.List.
const listFields = "nextPageToken, files(id, name, mimeType, webViewLink, size, trashed, modifiedTime)"

// Provider implements provider.Provider for Google Drive.
type Provider struct {
	svc          *drive.Service
	pageSize     int
	sharedDrives bool
}

// Ensure Provider implements the interfaces.
var (
	_ provider.Provider     = (*Provider)(nil)
	_ provider.ObjectGetter = (*Provider)(nil)
)

// New creates a Drive provider.
//
// When opts is empty the service account in cfg.CredentialsFile is loaded
// with the drive.readonly scope. Extra client options are appended after
// the credential options, so callers can override the HTTP client or
// endpoint.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Provider, error) {
	if err := cfg.Validate(len(opts) == 0); err != nil {
		return nil, err
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts,
			option.WithCredentialsFile(cfg.CredentialsFile),
			option.WithScopes(drive.DriveReadonlyScope),
		)
	}
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint))
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := drive.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, &provider.ProviderError{
			Op:       "New",
			Provider: provider.ProviderDrive,
			Err:      fmt.Errorf("%w: %v", provider.ErrInvalidCredentials, err),
		}
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &Provider{
		svc:          svc,
		pageSize:     pageSize,
		sharedDrives: cfg.SharedDrives,
	}, nil
}

// List returns a page of non-trashed items whose parent is opts.FolderID.
func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	call := p.svc.Files.List().
		Q(buildQuery(opts.FolderID, opts.MimeType)).
		Fields(listFields).
		PageSize(int64(clampPageSize(opts.PageSize, p.pageSize))).
		Context(ctx)

	if p.sharedDrives {
		call = call.SupportsAllDrives(true).IncludeItemsFromAllDrives(true)
	}
	if opts.ContinuationToken != "" {
		call = call.PageToken(opts.ContinuationToken)
	}

	out, err := call.Do()
	if err != nil {
		return nil, wrapError("List", opts.FolderID, "", err)
	}

	items := make([]provider.FileStub, 0, len(out.Files))
	for _, f := range out.Files {
		if f == nil {
			continue
		}
		items = append(items, toStub(f))
	}

	return &provider.ListResult{
		Items:             items,
		ContinuationToken: out.NextPageToken,
	}, nil
}

// GetObject downloads the raw bytes of a file.
func (p *Provider) GetObject(ctx context.Context, id string) (io.ReadCloser, int64, error) {
	call := p.svc.Files.Get(id).Context(ctx)
	if p.sharedDrives {
		call = call.SupportsAllDrives(true)
	}

	resp, err := call.Download()
	if err != nil {
		return nil, 0, wrapError("GetObject", "", id, err)
	}
	return resp.Body, resp.ContentLength, nil
}

// Close releases any resources held by the provider.
// The Drive service doesn't require explicit cleanup.
func (p *Provider) Close() error {
	return nil
}

func toStub(f *drive.File) provider.FileStub {
	stub := provider.FileStub{
		ID:        f.Id,
		Name:      f.Name,
		MimeType:  f.MimeType,
		Size:      f.Size,
		Trashed:   f.Trashed,
		SourceURL: f.WebViewLink,
	}
	if stub.SourceURL == "" && f.Id != "" {
		stub.SourceURL = fmt.Sprintf(SourceURLFormat, f.Id)
	}
	if f.ModifiedTime != "" {
		if ts, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
			stub.ModifiedTime = ts
		}
	}
	return stub
}

// buildQuery renders the Drive search expression for a folder listing.
func buildQuery(folderID, mimeType string) string {
	q := fmt.Sprintf("'%s' in parents and trashed=false", escapeQuery(folderID))
	if mimeType != "" {
		q += fmt.Sprintf(" and mimeType='%s'", escapeQuery(mimeType))
	}
	return q
}

// escapeQuery escapes a literal for use inside single quotes in a Drive query.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func clampPageSize(requested, providerDefault int) int {
	if requested <= 0 {
		requested = providerDefault
	}
	if requested > MaxPageSize {
		return MaxPageSize
	}
	return requested
}

// wrapError converts Drive API errors to provider errors with sentinel causes.
func wrapError(op, folder, id string, err error) error {
	wrapped := &provider.ProviderError{
		Op:       op,
		Provider: provider.ProviderDrive,
		Folder:   folder,
		ID:       id,
		Err:      err,
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized:
			wrapped.Err = fmt.Errorf("%w: %s", provider.ErrInvalidCredentials, apiErr.Message)
		case apiErr.Code == http.StatusTooManyRequests || hasReason(apiErr, "rateLimitExceeded", "userRateLimitExceeded"):
			wrapped.Err = fmt.Errorf("%w: %s", provider.ErrThrottled, apiErr.Message)
		case apiErr.Code == http.StatusForbidden:
			wrapped.Err = fmt.Errorf("%w: %s", provider.ErrAccessDenied, apiErr.Message)
		case apiErr.Code == http.StatusNotFound:
			wrapped.Err = fmt.Errorf("%w: %s", provider.ErrNotFound, apiErr.Message)
		case apiErr.Code >= 500:
			wrapped.Err = fmt.Errorf("%w: %s", provider.ErrProviderUnavailable, apiErr.Message)
		}
		return wrapped
	}

	// Token exchange failures surface as plain errors from the oauth2 transport.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "oauth2") || strings.Contains(msg, "invalid_grant"):
		wrapped.Err = fmt.Errorf("%w: %v", provider.ErrInvalidCredentials, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// keep as-is so callers can detect cancellation
	default:
		wrapped.Err = fmt.Errorf("%w: %v", provider.ErrProviderUnavailable, err)
	}
	return wrapped
}

func hasReason(apiErr *googleapi.Error, reasons ...string) bool {
	for _, item := range apiErr.Errors {
		for _, r := range reasons {
			if item.Reason == r {
				return true
			}
		}
	}
	return false
}
