// Package provider defines abstractions for source content stores.
//
// Providers implement a minimal surface area focused on listing the items of
// a folder and retrieving item content. Authentication is resolved when the
// provider is constructed - the listing and fetch calls never re-authenticate.
package provider

import (
	"context"
	"time"
)

// Provider abstracts folder listing operations on a source content store.
//
// Implementations should:
//   - Acquire credentials once at construction time
//   - Support pagination via continuation tokens
//   - Be safe for concurrent use
type Provider interface {
	// List returns a page of items contained in a folder.
	// Use ContinuationToken from ListResult for subsequent pages.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// Close releases any resources held by the provider.
	Close() error
}

// ListOptions configures a List operation.
type ListOptions struct {
	// FolderID identifies the folder to list. Its meaning is provider
	// specific (Drive folder ID, S3 key prefix, local sub-directory).
	FolderID string

	// MimeType restricts results to items of this content type when the
	// provider can filter server-side. Empty lists every type.
	MimeType string

	// ContinuationToken resumes listing from a previous ListResult.
	// Empty string starts from the beginning.
	ContinuationToken string

	// PageSize limits the number of items returned per page.
	// Zero uses provider default.
	PageSize int
}

// ListResult contains a page of items from a List operation.
type ListResult struct {
	// Items contains the file stubs for this page, in provider order.
	Items []FileStub

	// ContinuationToken is used to retrieve the next page.
	// Empty string indicates no more pages.
	ContinuationToken string
}

// FileStub is a lightweight descriptor of a source item, without content.
type FileStub struct {
	// ID is the opaque source identifier used to fetch content.
	ID string

	// Name is the display name of the item.
	Name string

	// SourceURL is an optional URL the destination may use to pull the
	// content directly. Empty when the provider has none.
	SourceURL string

	// MimeType is the content type reported by the provider.
	MimeType string

	// Size is the item size in bytes, or zero when unknown.
	Size int64

	// Trashed reports whether the item is marked deleted at the source.
	Trashed bool

	// ModifiedTime is when the item was last modified, if known.
	ModifiedTime time.Time
}

// ProviderType identifies a source content store.
type ProviderType string

const (
	// ProviderDrive represents Google Drive, including shared drives.
	ProviderDrive ProviderType = "drive"

	// ProviderS3 represents AWS S3 or S3-compatible storage.
	ProviderS3 ProviderType = "s3"

	// ProviderFile represents a local filesystem directory.
	ProviderFile ProviderType = "file"
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}
