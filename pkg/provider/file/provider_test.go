package file

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/studiosync/pkg/provider"
)

const pdfBody = "%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n%%EOF\n"

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func setupTree(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "batch", "A.pdf"), pdfBody)
	writeFile(t, filepath.Join(base, "batch", "B.pdf"), pdfBody)
	writeFile(t, filepath.Join(base, "batch", "notes.txt"), "plain text notes")
	writeFile(t, filepath.Join(base, "batch", "nested", "C.pdf"), pdfBody)
	return base
}

func TestList_DirectChildrenFilteredBySniffedType(t *testing.T) {
	p, err := New(Config{BaseDir: setupTree(t)})
	require.NoError(t, err)

	res, err := p.List(context.Background(), provider.ListOptions{FolderID: "batch", MimeType: "application/pdf"})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)

	assert.Equal(t, "batch/A.pdf", res.Items[0].ID)
	assert.Equal(t, "A.pdf", res.Items[0].Name)
	assert.Equal(t, "application/pdf", res.Items[0].MimeType)
	assert.Equal(t, int64(len(pdfBody)), res.Items[0].Size)
	assert.Contains(t, res.Items[0].SourceURL, "file://")
	assert.Equal(t, "B.pdf", res.Items[1].Name)
	assert.Empty(t, res.ContinuationToken)
}

func TestList_NoFilterReportsTypes(t *testing.T) {
	p, err := New(Config{BaseDir: setupTree(t)})
	require.NoError(t, err)

	res, err := p.List(context.Background(), provider.ListOptions{FolderID: "batch"})
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	assert.Equal(t, "text/plain", res.Items[2].MimeType)
}

func TestList_Pagination(t *testing.T) {
	p, err := New(Config{BaseDir: setupTree(t)})
	require.NoError(t, err)

	first, err := p.List(context.Background(), provider.ListOptions{FolderID: "batch", PageSize: 1})
	require.NoError(t, err)
	require.Len(t, first.Items, 1)
	require.NotEmpty(t, first.ContinuationToken)

	var names []string
	names = append(names, first.Items[0].Name)
	token := first.ContinuationToken
	for token != "" {
		page, err := p.List(context.Background(), provider.ListOptions{FolderID: "batch", PageSize: 1, ContinuationToken: token})
		require.NoError(t, err)
		for _, it := range page.Items {
			names = append(names, it.Name)
		}
		token = page.ContinuationToken
	}
	assert.Equal(t, []string{"A.pdf", "B.pdf", "notes.txt"}, names)
}

func TestList_MissingFolder(t *testing.T) {
	p, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = p.List(context.Background(), provider.ListOptions{FolderID: "nope"})
	require.Error(t, err)
	assert.True(t, provider.IsNotFound(err))
}

func TestList_InvalidToken(t *testing.T) {
	p, err := New(Config{BaseDir: setupTree(t)})
	require.NoError(t, err)

	_, err = p.List(context.Background(), provider.ListOptions{FolderID: "batch", ContinuationToken: "x"})
	require.Error(t, err)
}

func TestGetObject(t *testing.T) {
	p, err := New(Config{BaseDir: setupTree(t)})
	require.NoError(t, err)

	rc, size, err := p.GetObject(context.Background(), "batch/A.pdf")
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, pdfBody, string(data))
	assert.Equal(t, int64(len(pdfBody)), size)
}

func TestGetObject_Errors(t *testing.T) {
	p, err := New(Config{BaseDir: setupTree(t)})
	require.NoError(t, err)

	tests := []struct {
		name string
		id   string
	}{
		{"missing", "batch/missing.pdf"},
		{"directory", "batch/nested"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := p.GetObject(context.Background(), tt.id)
			require.Error(t, err)
			assert.True(t, provider.IsNotFound(err))
		})
	}

	_, _, err = p.GetObject(context.Background(), "../../etc/passwd")
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	_, err := New(Config{BaseDir: "  "})
	require.Error(t, err)
}
