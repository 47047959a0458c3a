package fetcher

import (
	"crypto/md5"
	"encoding/hex"
	"mime"
	"strings"
)

// FetchStatus classifies the outcome of a fetch.
type FetchStatus string

const (
	StatusSuccess     FetchStatus = "success"
	StatusNotModified FetchStatus = "not_modified"
	StatusNotFound    FetchStatus = "not_found"
)

// RawContent is the transport-level result of a fetch. Source carries the
// final URL after redirects.
type RawContent struct {
	Content      []byte
	MimeType     string
	Charset      string
	Encoding     string
	Source       string
	Etag         *string
	LastModified *string
	Status       FetchStatus
}

// FetchOptions tunes a single fetch.
type FetchOptions struct {
	// Etag enables a conditional request when non-nil
	Etag *string
	// FollowRedirects defaults to true; false surfaces a RedirectError
	FollowRedirects bool
	// Headers are sent verbatim, after the fingerprint defaults
	Headers map[string]string
}

// DefaultFetchOptions returns options with redirect following enabled.
func DefaultFetchOptions() FetchOptions {
	return FetchOptions{FollowRedirects: true}
}

// contentHash derives a change-detection token from rendered content for
// sources that carry no server etag.
func contentHash(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ParseContentTypeHeader splits a Content-Type header into MIME type and
// charset.
func ParseContentTypeHeader(header string) (mimeType, charset string) {
	if header == "" {
		return "", ""
	}
	mt, params, err := mime.ParseMediaType(header)
	if err != nil {
		if i := strings.Index(header, ";"); i >= 0 {
			return strings.TrimSpace(strings.ToLower(header[:i])), ""
		}
		return strings.TrimSpace(strings.ToLower(header)), ""
	}
	return mt, params["charset"]
}
