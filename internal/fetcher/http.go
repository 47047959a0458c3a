package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/ternarybob/arbor"
)

// HTTPFetcher retrieves http(s) URLs with conditional-request support,
// retry on transient failures, and a rotating browser fingerprint.
type HTTPFetcher struct {
	transport *http.Transport
	timeout   time.Duration
	retry     *RetryPolicy
	rotator   *fingerprintRotator
	rotate    bool
	logger    arbor.ILogger
}

// HTTPFetcherConfig tunes the HTTP fetcher.
type HTTPFetcherConfig struct {
	Timeout           time.Duration // zero means no per-request timeout
	MaxRetries        int
	RetryBaseDelay    time.Duration
	UserAgentRotation bool
}

func NewHTTPFetcher(cfg HTTPFetcherConfig, logger arbor.ILogger) *HTTPFetcher {
	retry := NewRetryPolicy()
	if cfg.MaxRetries > 0 {
		retry.MaxAttempts = cfg.MaxRetries
	}
	if cfg.RetryBaseDelay > 0 {
		retry.InitialBackoff = cfg.RetryBaseDelay
	}
	return &HTTPFetcher{
		transport: &http.Transport{
			MaxIdleConnsPerHost: 8,
			// decompression is handled here, not by the transport
			DisableCompression: true,
		},
		timeout: cfg.Timeout,
		retry:   retry,
		rotator: newFingerprintRotator(),
		rotate:  cfg.UserAgentRotation,
		logger:  logger,
	}
}

func (f *HTTPFetcher) CanFetch(rawURL string) bool {
	return strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, opts FetchOptions) (*RawContent, error) {
	for attempt := 0; ; attempt++ {
		content, status, err := f.attempt(ctx, rawURL, opts)
		if err == nil {
			return content, nil
		}

		var cancelled *CancellationError
		var redirect *RedirectError
		if errors.As(err, &cancelled) || errors.As(err, &redirect) {
			return nil, err
		}
		if !f.retry.ShouldRetry(attempt, status, err) {
			return nil, err
		}

		f.logger.Debug().
			Str("url", rawURL).
			Int("attempt", attempt+1).
			Int("status_code", status).
			Err(err).
			Msg("Retrying fetch after backoff")

		if err := f.retry.Sleep(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

func (f *HTTPFetcher) attempt(ctx context.Context, rawURL string, opts FetchOptions) (*RawContent, int, error) {
	if ctx.Err() != nil {
		return nil, 0, &CancellationError{Reason: "fetch cancelled"}
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, &FetchError{URL: rawURL, Err: err}
	}
	f.setHeaders(req, opts)

	client := &http.Client{Transport: f.transport}
	if !opts.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, &CancellationError{Reason: "fetch cancelled"}
		}
		return nil, 0, &FetchError{URL: rawURL, Retryable: isRetryableNetError(err), Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		io.Copy(io.Discard, resp.Body)
		return &RawContent{Source: rawURL, Status: StatusNotModified}, resp.StatusCode, nil

	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return &RawContent{Source: rawURL, Status: StatusNotFound}, resp.StatusCode, nil

	case resp.StatusCode >= 300 && resp.StatusCode < 400 && !opts.FollowRedirects:
		return nil, resp.StatusCode, &RedirectError{
			StatusCode: resp.StatusCode,
			From:       rawURL,
			To:         resp.Header.Get("Location"),
		}

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := decodeBody(resp.Body, resp.Header.Get("Content-Encoding"))
		if err != nil {
			return nil, resp.StatusCode, &FetchError{URL: rawURL, Retryable: true, Err: err}
		}
		mimeType, charset := ParseContentTypeHeader(resp.Header.Get("Content-Type"))
		raw := &RawContent{
			Content:  body,
			MimeType: mimeType,
			Charset:  charset,
			Encoding: resp.Header.Get("Content-Encoding"),
			Source:   resp.Request.URL.String(),
			Status:   StatusSuccess,
		}
		if etag := resp.Header.Get("ETag"); etag != "" {
			raw.Etag = &etag
		}
		if lm := resp.Header.Get("Last-Modified"); lm != "" {
			raw.LastModified = &lm
		}
		return raw, resp.StatusCode, nil

	default:
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, &FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Retryable:  f.retry.isRetryableStatus(resp.StatusCode),
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
}

func (f *HTTPFetcher) setHeaders(req *http.Request, opts FetchOptions) {
	fp := fingerprints[0]
	if f.rotate {
		fp = f.rotator.pick()
	}
	req.Header.Set("User-Agent", fp.UserAgent)
	req.Header.Set("Accept", fp.Accept)
	req.Header.Set("Accept-Language", fp.AcceptLanguage)
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	if opts.Etag != nil && *opts.Etag != "" {
		req.Header.Set("If-None-Match", *opts.Etag)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
}

func decodeBody(r io.Reader, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return io.ReadAll(r)
	case "gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "deflate":
		// servers disagree on raw deflate vs zlib framing
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		if zr, err := zlib.NewReader(bytes.NewReader(data)); err == nil {
			defer zr.Close()
			return io.ReadAll(zr)
		}
		fr := flate.NewReader(bytes.NewReader(data))
		defer fr.Close()
		return io.ReadAll(fr)
	case "br":
		return io.ReadAll(brotli.NewReader(r))
	default:
		return io.ReadAll(r)
	}
}
