package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func newHTTPFetcher(t *testing.T, maxRetries int) *HTTPFetcher {
	t.Helper()
	return NewHTTPFetcher(HTTPFetcherConfig{
		MaxRetries:     maxRetries,
		RetryBaseDelay: time.Millisecond,
	}, arbor.NewLogger())
}

func TestHTTPFetcherSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		assert.Contains(t, r.Header.Get("Accept-Encoding"), "gzip")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte("<html><body>hi</body></html>"))
	}))
	defer srv.Close()

	f := newHTTPFetcher(t, 2)
	raw, err := f.Fetch(context.Background(), srv.URL, DefaultFetchOptions())
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, raw.Status)
	assert.Equal(t, "text/html", raw.MimeType)
	assert.Equal(t, "utf-8", raw.Charset)
	require.NotNil(t, raw.Etag)
	assert.Equal(t, `"v1"`, *raw.Etag)
	assert.Contains(t, string(raw.Content), "hi")
}

func TestHTTPFetcherConditionalNotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	f := newHTTPFetcher(t, 2)
	etag := `"v1"`
	opts := DefaultFetchOptions()
	opts.Etag = &etag
	raw, err := f.Fetch(context.Background(), srv.URL, opts)
	require.NoError(t, err)
	assert.Equal(t, StatusNotModified, raw.Status)
	assert.Empty(t, raw.Content)
}

func TestHTTPFetcherNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := newHTTPFetcher(t, 2)
	raw, err := f.Fetch(context.Background(), srv.URL, DefaultFetchOptions())
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, raw.Status)
}

func TestHTTPFetcherRetriesOn503(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newHTTPFetcher(t, 6)
	raw, err := f.Fetch(context.Background(), srv.URL, DefaultFetchOptions())
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, raw.Status)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestHTTPFetcherNeverRetriesOn403(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := newHTTPFetcher(t, 6)
	_, err := f.Fetch(context.Background(), srv.URL, DefaultFetchOptions())
	require.Error(t, err)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusForbidden, fe.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestHTTPFetcherRedirectErrorWhenNotFollowing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/moved", http.StatusMovedPermanently)
	}))
	defer srv.Close()

	f := newHTTPFetcher(t, 2)
	opts := DefaultFetchOptions()
	opts.FollowRedirects = false
	_, err := f.Fetch(context.Background(), srv.URL, opts)
	var re *RedirectError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusMovedPermanently, re.StatusCode)
	assert.Contains(t, re.To, "/moved")
}

func TestHTTPFetcherFollowsRedirectsByDefault(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("landed"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newHTTPFetcher(t, 2)
	raw, err := f.Fetch(context.Background(), srv.URL, DefaultFetchOptions())
	require.NoError(t, err)
	assert.Contains(t, raw.Source, "/final")
	assert.Contains(t, string(raw.Content), "landed")
}

func TestHTTPFetcherCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newHTTPFetcher(t, 2)
	_, err := f.Fetch(ctx, "http://127.0.0.1:1/never", DefaultFetchOptions())
	var ce *CancellationError
	assert.ErrorAs(t, err, &ce)
}

func TestHTTPFetcherCanFetch(t *testing.T) {
	f := newHTTPFetcher(t, 2)
	assert.True(t, f.CanFetch("https://example.com/docs"))
	assert.True(t, f.CanFetch("http://example.com"))
	assert.False(t, f.CanFetch("file:///tmp/x.md"))
}
