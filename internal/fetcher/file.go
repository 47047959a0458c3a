package fetcher

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

// FileFetcher serves file:// URLs. The etag is derived from the file's
// modification time so conditional refreshes work the same way as HTTP.
type FileFetcher struct {
	logger arbor.ILogger
}

func NewFileFetcher(logger arbor.ILogger) *FileFetcher {
	return &FileFetcher{logger: logger}
}

func (f *FileFetcher) CanFetch(rawURL string) bool {
	return strings.HasPrefix(rawURL, "file://")
}

func (f *FileFetcher) Fetch(ctx context.Context, rawURL string, opts FetchOptions) (*RawContent, error) {
	if ctx.Err() != nil {
		return nil, &CancellationError{Reason: "fetch cancelled"}
	}

	path, err := FilePathFromURL(rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &RawContent{Source: rawURL, Status: StatusNotFound}, nil
		}
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	if info.IsDir() {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("%s is a directory", path)}
	}

	etag := mtimeEtag(info.ModTime())
	if opts.Etag != nil && *opts.Etag == etag {
		return &RawContent{Source: rawURL, Etag: &etag, Status: StatusNotModified}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	lastModified := info.ModTime().UTC().Format(time.RFC3339)
	return &RawContent{
		Content:      data,
		MimeType:     detectFileMimeType(path, data),
		Source:       rawURL,
		Etag:         &etag,
		LastModified: &lastModified,
		Status:       StatusSuccess,
	}, nil
}

// FilePathFromURL converts file:// and file:/// URLs to a filesystem path,
// decoding percent escapes.
func FilePathFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("not a file URL: %s", rawURL)
	}
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	if u.Host != "" && u.Host != "localhost" {
		path = "/" + u.Host + path
	}
	decoded, err := url.PathUnescape(path)
	if err != nil {
		return "", err
	}
	if decoded == "" {
		return "", fmt.Errorf("empty path in %s", rawURL)
	}
	return filepath.FromSlash(decoded), nil
}

func mtimeEtag(mtime time.Time) string {
	sum := md5.Sum([]byte(mtime.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(sum[:])
}

func detectFileMimeType(path string, data []byte) string {
	if bytes.IndexByte(data, 0) >= 0 {
		return "application/octet-stream"
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".md", ".markdown":
		return "text/markdown"
	case ".json":
		return "application/json"
	case ".txt", "":
		return "text/plain"
	case ".js", ".mjs", ".cjs", ".jsx":
		return "text/javascript"
	case ".ts", ".mts", ".cts":
		return "text/x-typescript"
	case ".tsx":
		return "text/x-tsx"
	case ".py", ".pyi":
		return "text/x-python"
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		mimeType, _ := ParseContentTypeHeader(mt)
		return mimeType
	}
	return "text/plain"
}
