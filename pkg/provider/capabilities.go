package provider

import (
	"context"
	"io"
)

// Optional provider capability interfaces.
//
// These interfaces are used for feature detection (type assertions). The core
// Provider interface remains intentionally small.

// ObjectGetter can download item content as a stream.
//
// contentLength is -1 when the provider does not know the size up front.
type ObjectGetter interface {
	GetObject(ctx context.Context, id string) (body io.ReadCloser, contentLength int64, err error)
}
