package fetcher

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
)

// BrowserFetcher renders JS-heavy pages through headless Chrome. It matches
// the HTTP fetcher's contract; the etag falls back to a hash of the
// rendered content when the navigation response carries none.
type BrowserFetcher struct {
	timeout time.Duration
	logger  arbor.ILogger

	mu            sync.Mutex
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func NewBrowserFetcher(timeout time.Duration, logger arbor.ILogger) *BrowserFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BrowserFetcher{timeout: timeout, logger: logger}
}

func (f *BrowserFetcher) CanFetch(rawURL string) bool {
	return strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")
}

// ensureBrowser lazily starts the shared browser process.
func (f *BrowserFetcher) ensureBrowser() (context.Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browserCtx != nil && f.browserCtx.Err() == nil {
		return f.browserCtx, nil
	}

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(fingerprints[0].UserAgent),
	)
	f.allocCtx, f.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	f.browserCtx, f.browserCancel = chromedp.NewContext(f.allocCtx)

	probe, cancel := context.WithTimeout(f.browserCtx, f.timeout)
	defer cancel()
	if err := chromedp.Run(probe, chromedp.Navigate("about:blank")); err != nil {
		f.closeLocked()
		return nil, &FetchError{Err: err}
	}
	return f.browserCtx, nil
}

func (f *BrowserFetcher) Fetch(ctx context.Context, rawURL string, opts FetchOptions) (*RawContent, error) {
	if ctx.Err() != nil {
		return nil, &CancellationError{Reason: "fetch cancelled"}
	}

	browserCtx, err := f.ensureBrowser()
	if err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	defer tabCancel()
	runCtx, runCancel := context.WithTimeout(tabCtx, f.timeout)
	defer runCancel()

	// propagate job cancellation into the navigation
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			runCancel()
		case <-stop:
		}
	}()

	var html string
	err = chromedp.Run(runCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &CancellationError{Reason: "fetch cancelled"}
		}
		return nil, &FetchError{URL: rawURL, Retryable: true, Err: err}
	}

	// The rendered DOM has no server etag; hash the content so refresh
	// jobs can still detect changes.
	etag := contentHash(html)
	if opts.Etag != nil && *opts.Etag == etag {
		return &RawContent{Source: rawURL, Etag: &etag, Status: StatusNotModified}, nil
	}

	return &RawContent{
		Content:  []byte(html),
		MimeType: "text/html",
		Charset:  "utf-8",
		Source:   rawURL,
		Etag:     &etag,
		Status:   StatusSuccess,
	}, nil
}

func (f *BrowserFetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeLocked()
}

func (f *BrowserFetcher) closeLocked() {
	if f.browserCancel != nil {
		f.browserCancel()
		f.browserCancel = nil
		f.browserCtx = nil
	}
	if f.allocCancel != nil {
		f.allocCancel()
		f.allocCancel = nil
		f.allocCtx = nil
	}
}
