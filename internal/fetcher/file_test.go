package fetcher

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func fileURL(path string) string {
	return "file://" + (&url.URL{Path: filepath.ToSlash(path)}).EscapedPath()
}

func TestFileFetcherReadsMarkdown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.md")
	require.NoError(t, os.WriteFile(path, []byte("# Title\n\ncontent\n"), 0o644))

	f := NewFileFetcher(arbor.NewLogger())
	raw, err := f.Fetch(context.Background(), fileURL(path), DefaultFetchOptions())
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, raw.Status)
	assert.Equal(t, "text/markdown", raw.MimeType)
	assert.NotNil(t, raw.Etag)
	assert.Contains(t, string(raw.Content), "# Title")
}

func TestFileFetcherEtagRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	f := NewFileFetcher(arbor.NewLogger())
	first, err := f.Fetch(context.Background(), fileURL(path), DefaultFetchOptions())
	require.NoError(t, err)
	require.NotNil(t, first.Etag)

	opts := DefaultFetchOptions()
	opts.Etag = first.Etag
	second, err := f.Fetch(context.Background(), fileURL(path), opts)
	require.NoError(t, err)
	assert.Equal(t, StatusNotModified, second.Status)
	assert.Empty(t, second.Content)
}

func TestFileFetcherMissingFileIsNotFound(t *testing.T) {
	f := NewFileFetcher(arbor.NewLogger())
	raw, err := f.Fetch(context.Background(), fileURL(filepath.Join(t.TempDir(), "gone.md")), DefaultFetchOptions())
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, raw.Status)
}

func TestFileFetcherPercentDecoding(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "my doc.md")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	f := NewFileFetcher(arbor.NewLogger())
	raw, err := f.Fetch(context.Background(), fileURL(path), DefaultFetchOptions())
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, raw.Status)
}

func TestFileFetcherBinaryDetection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob.bin")
	require.NoError(t, os.WriteFile(path, []byte{0x00, 0x01, 0x02, 'a'}, 0o644))

	f := NewFileFetcher(arbor.NewLogger())
	raw, err := f.Fetch(context.Background(), fileURL(path), DefaultFetchOptions())
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", raw.MimeType)
}

func TestFilePathFromURLVariants(t *testing.T) {
	p, err := FilePathFromURL("file:///tmp/docs/index.md")
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("/tmp/docs/index.md"), p)

	p, err = FilePathFromURL("file:///tmp/my%20docs/a.md")
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("/tmp/my docs/a.md"), p)

	_, err = FilePathFromURL("http://example.com/x")
	assert.Error(t, err)
}
