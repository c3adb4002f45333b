// Package file implements the provider interface for a local directory tree.
//
// A folder is a sub-directory of BaseDir and only its direct children are
// listed. Content types are sniffed from the leading bytes of each file.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/3leaps/studiosync/pkg/provider"
)

// sniffLen is the number of leading bytes read for content detection.
const sniffLen = 3072

// Provider implements provider.Provider for local filesystem paths.
//
// IDs are slash-separated paths relative to BaseDir.
type Provider struct {
	baseDir string
}

// Ensure Provider implements provider capability interfaces.
var (
	_ provider.Provider     = (*Provider)(nil)
	_ provider.ObjectGetter = (*Provider)(nil)
)

type Config struct {
	BaseDir string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseDir) == "" {
		return fmt.Errorf("base dir is required")
	}
	return nil
}

func New(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Provider{baseDir: filepath.Clean(cfg.BaseDir)}, nil
}

func (p *Provider) Close() error { return nil }

// List returns regular files directly inside opts.FolderID.
//
// Pagination uses the index of the next entry as the continuation token.
func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	dir, err := p.fullPath(opts.FolderID)
	if err != nil {
		return nil, p.wrapError("List", opts.FolderID, "", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, p.wrapError("List", opts.FolderID, "", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	start := 0
	if opts.ContinuationToken != "" {
		start, err = strconv.Atoi(opts.ContinuationToken)
		if err != nil || start < 0 {
			return nil, p.wrapError("List", opts.FolderID, "", fmt.Errorf("invalid continuation token %q", opts.ContinuationToken))
		}
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}

	res := &provider.ListResult{}
	i := start
	for ; i < len(entries) && len(res.Items) < pageSize; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e := entries[i]
		if !e.Type().IsRegular() {
			continue
		}
		id := e.Name()
		if folder := strings.Trim(opts.FolderID, "/"); folder != "" {
			id = folder + "/" + e.Name()
		}
		full := filepath.Join(dir, e.Name())

		info, err := e.Info()
		if err != nil {
			continue
		}
		contentType, err := detect(full)
		if err != nil {
			continue
		}
		if opts.MimeType != "" && contentType != opts.MimeType {
			continue
		}

		res.Items = append(res.Items, provider.FileStub{
			ID:           id,
			Name:         e.Name(),
			SourceURL:    "file://" + filepath.ToSlash(full),
			MimeType:     contentType,
			Size:         info.Size(),
			ModifiedTime: info.ModTime(),
		})
	}
	if i < len(entries) {
		res.ContinuationToken = strconv.Itoa(i)
	}
	return res, nil
}

func (p *Provider) GetObject(ctx context.Context, id string) (io.ReadCloser, int64, error) {
	_ = ctx
	full, err := p.fullPath(id)
	if err != nil {
		return nil, 0, p.wrapError("GetObject", "", id, err)
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, 0, p.wrapError("GetObject", "", id, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, p.wrapError("GetObject", "", id, err)
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, 0, &provider.ProviderError{Op: "GetObject", Provider: provider.ProviderFile, ID: id, Err: provider.ErrNotFound}
	}
	return f, st.Size(), nil
}

// detect sniffs the content type of a file, without parameters.
func detect(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	ct := mimetype.Detect(buf[:n]).String()
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct, nil
}

func (p *Provider) fullPath(key string) (string, error) {
	key = strings.TrimSpace(key)
	key = strings.TrimPrefix(key, "/")
	// Prevent path traversal.
	clean := filepath.Clean("/" + key)
	clean = strings.TrimPrefix(clean, "/")
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid key path")
	}
	return filepath.Join(p.baseDir, filepath.FromSlash(clean)), nil
}

func (p *Provider) wrapError(op, folder, id string, err error) error {
	wrapped := &provider.ProviderError{Op: op, Provider: provider.ProviderFile, Folder: folder, ID: id, Err: err}
	switch {
	case os.IsNotExist(err):
		wrapped.Err = provider.ErrNotFound
	case os.IsPermission(err):
		wrapped.Err = provider.ErrAccessDenied
	}
	return wrapped
}
