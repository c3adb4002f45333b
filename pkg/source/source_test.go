package source

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/studiosync/pkg/match"
	"github.com/3leaps/studiosync/pkg/provider"
)

const pdfBody = "%PDF-1.7\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<<>>\nendobj\n"

// fakeProvider serves pages and content from memory.
type fakeProvider struct {
	pages     []provider.ListResult
	listErr   error
	content   map[string]string
	unknownSz bool
	getErr    error
	block     bool
	listOpts  []provider.ListOptions
}

func (f *fakeProvider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	f.listOpts = append(f.listOpts, opts)
	if f.listErr != nil {
		return nil, f.listErr
	}
	idx := 0
	if opts.ContinuationToken != "" {
		for i := range f.pages {
			if f.pages[i].ContinuationToken == opts.ContinuationToken {
				idx = i + 1
			}
		}
	}
	if idx >= len(f.pages) {
		return &provider.ListResult{}, nil
	}
	page := f.pages[idx]
	return &page, nil
}

func (f *fakeProvider) GetObject(ctx context.Context, id string) (io.ReadCloser, int64, error) {
	if f.block {
		<-ctx.Done()
		return nil, 0, ctx.Err()
	}
	if f.getErr != nil {
		return nil, 0, f.getErr
	}
	data, ok := f.content[id]
	if !ok {
		return nil, 0, &provider.ProviderError{Op: "GetObject", Provider: provider.ProviderFile, ID: id, Err: provider.ErrNotFound}
	}
	size := int64(len(data))
	if f.unknownSz {
		size = -1
	}
	return io.NopCloser(strings.NewReader(data)), size, nil
}

func (f *fakeProvider) Close() error { return nil }

// listOnly lacks GetObject.
type listOnly struct{}

func (listOnly) List(context.Context, provider.ListOptions) (*provider.ListResult, error) {
	return &provider.ListResult{}, nil
}
func (listOnly) Close() error { return nil }

func pdf(id, name string) provider.FileStub {
	return provider.FileStub{ID: id, Name: name, MimeType: "application/pdf"}
}

func TestNew(t *testing.T) {
	_, err := New(listOnly{}, Config{})
	require.Error(t, err)

	_, err = New(&fakeProvider{}, Config{MaxBytes: -1})
	require.Error(t, err)

	s, err := New(&fakeProvider{}, Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultMimeType, s.MimeType())
}

func TestEligible(t *testing.T) {
	m, err := match.New(match.Config{Excludes: []string{"*draft*"}})
	require.NoError(t, err)
	s, err := New(&fakeProvider{}, Config{Matcher: m})
	require.NoError(t, err)

	tests := []struct {
		name string
		stub provider.FileStub
		want bool
	}{
		{"pdf", pdf("1", "A.pdf"), true},
		{"case-insensitive type", provider.FileStub{Name: "A.pdf", MimeType: "Application/PDF"}, true},
		{"other type", provider.FileStub{Name: "A.docx", MimeType: "application/msword"}, false},
		{"no type", provider.FileStub{Name: "A.pdf"}, false},
		{"trashed", provider.FileStub{Name: "A.pdf", MimeType: "application/pdf", Trashed: true}, false},
		{"excluded by name", pdf("2", "plan-draft.pdf"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Eligible(tt.stub))
		})
	}
}

func TestList_PagesAndPreservesOrder(t *testing.T) {
	fake := &fakeProvider{pages: []provider.ListResult{
		{Items: []provider.FileStub{pdf("3", "C.pdf"), {ID: "x", Name: "notes.txt", MimeType: "text/plain"}}, ContinuationToken: "p2"},
		{Items: []provider.FileStub{pdf("1", "A.pdf"), pdf("2", "B.pdf")}},
	}}
	s, err := New(fake, Config{PageSize: 50})
	require.NoError(t, err)

	stubs, err := s.List(context.Background(), "folder-1")
	require.NoError(t, err)

	var names []string
	for _, st := range stubs {
		names = append(names, st.Name)
	}
	assert.Equal(t, []string{"C.pdf", "A.pdf", "B.pdf"}, names)

	require.Len(t, fake.listOpts, 2)
	assert.Equal(t, "folder-1", fake.listOpts[0].FolderID)
	assert.Equal(t, "application/pdf", fake.listOpts[0].MimeType)
	assert.Equal(t, 50, fake.listOpts[0].PageSize)
	assert.Equal(t, "p2", fake.listOpts[1].ContinuationToken)
}

func TestList_EmptyFolder(t *testing.T) {
	s, err := New(&fakeProvider{}, Config{})
	require.NoError(t, err)

	stubs, err := s.List(context.Background(), "empty")
	require.NoError(t, err)
	assert.Empty(t, stubs)
}

func TestList_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     error
		code     string
		authFail bool
	}{
		{"invalid credentials", provider.ErrInvalidCredentials, ErrSourceAuthFailed, CodeSourceAuthFailed, true},
		{"wrapped invalid credentials", &provider.ProviderError{Op: "List", Provider: provider.ProviderDrive, Err: provider.ErrInvalidCredentials}, ErrSourceAuthFailed, CodeSourceAuthFailed, true},
		{"folder not shared", &provider.ProviderError{Op: "List", Provider: provider.ProviderDrive, Err: provider.ErrAccessDenied}, ErrSourceUnavailable, CodeSourceUnavailable, false},
		{"not found", provider.ErrNotFound, ErrSourceUnavailable, CodeSourceUnavailable, false},
		{"unavailable", provider.ErrProviderUnavailable, ErrSourceUnavailable, CodeSourceUnavailable, false},
		{"other", errors.New("connection reset"), ErrSourceUnavailable, CodeSourceUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(&fakeProvider{listErr: tt.err}, Config{})
			require.NoError(t, err)

			stubs, err := s.List(context.Background(), "folder")
			require.Error(t, err)
			assert.Nil(t, stubs)
			assert.ErrorIs(t, err, tt.kind)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.authFail, IsAuthFailed(err))
			assert.Equal(t, !tt.authFail, IsUnavailable(err))
			assert.Equal(t, tt.code, Code(err))
		})
	}
}

// loopingProvider always returns the same continuation token.
type loopingProvider struct{ fakeProvider }

func (l *loopingProvider) List(context.Context, provider.ListOptions) (*provider.ListResult, error) {
	return &provider.ListResult{Items: []provider.FileStub{pdf("1", "A.pdf")}, ContinuationToken: "same"}, nil
}

func TestList_RepeatedTokenFails(t *testing.T) {
	s, err := New(&loopingProvider{}, Config{})
	require.NoError(t, err)

	_, err = s.List(context.Background(), "folder")
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

func TestFetch(t *testing.T) {
	fake := &fakeProvider{content: map[string]string{"1": pdfBody}}
	s, err := New(fake, Config{})
	require.NoError(t, err)

	p, err := s.Fetch(context.Background(), pdf("1", "A.pdf"))
	require.NoError(t, err)
	assert.Equal(t, pdfBody, string(p.Data))
	assert.Equal(t, "application/pdf", p.ContentType)
	assert.Equal(t, int64(len(pdfBody)), p.Size())
}

func TestFetch_SniffsMissingType(t *testing.T) {
	fake := &fakeProvider{content: map[string]string{"1": pdfBody}}
	s, err := New(fake, Config{})
	require.NoError(t, err)

	p, err := s.Fetch(context.Background(), provider.FileStub{ID: "1", Name: "A"})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", p.ContentType)
}

func TestFetch_Errors(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeProvider
		cfg  Config
		id   string
	}{
		{"missing", &fakeProvider{content: map[string]string{}}, Config{}, "gone"},
		{"provider error", &fakeProvider{getErr: provider.ErrAccessDenied}, Config{}, "1"},
		{"declared size over limit", &fakeProvider{content: map[string]string{"1": pdfBody}}, Config{MaxBytes: 8}, "1"},
		{"streamed size over limit", &fakeProvider{content: map[string]string{"1": pdfBody}, unknownSz: true}, Config{MaxBytes: 8}, "1"},
		{"timeout", &fakeProvider{block: true}, Config{RequestTimeout: 20 * time.Millisecond}, "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.fake, tt.cfg)
			require.NoError(t, err)

			p, err := s.Fetch(context.Background(), pdf(tt.id, "A.pdf"))
			require.Error(t, err)
			assert.Nil(t, p)
			assert.True(t, IsContentUnavailable(err))
			assert.Equal(t, CodeContentUnavailable, Code(err))
			assert.Contains(t, err.Error(), "A.pdf")
		})
	}
}

func TestFetch_AtLimit(t *testing.T) {
	fake := &fakeProvider{content: map[string]string{"1": pdfBody}, unknownSz: true}
	s, err := New(fake, Config{MaxBytes: int64(len(pdfBody))})
	require.NoError(t, err)

	p, err := s.Fetch(context.Background(), pdf("1", "A.pdf"))
	require.NoError(t, err)
	assert.Equal(t, pdfBody, string(p.Data))
}

func TestCode_NonSourceError(t *testing.T) {
	assert.Equal(t, "", Code(errors.New("x")))
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"1024", 1024, false},
		{"1KB", 1000, false},
		{"1kib", 1024, false},
		{"100MiB", 100 * MiB, false},
		{"1.5GB", 1500000000, false},
		{" 2 MB ", 2 * MB, false},
		{"1TiB", TiB, false},
		{"2t", 2 * TB, false},
		{"9000000TiB", 0, true},
		{"", 0, true},
		{"abc", 0, true},
		{"10XB", 0, true},
		{"99999999999999999999", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidSize)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512B", FormatSize(512))
	assert.Equal(t, "1.0KiB", FormatSize(KiB))
	assert.Equal(t, "1.5MiB", FormatSize(MiB+MiB/2))
	assert.Equal(t, "2.0GiB", FormatSize(2*GiB))
	assert.Equal(t, "3.0TiB", FormatSize(3*TiB))
}
