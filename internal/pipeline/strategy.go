package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/lectern/internal/common"
	"github.com/ternarybob/lectern/internal/fetcher"
	"github.com/ternarybob/lectern/internal/interfaces"
	"github.com/ternarybob/lectern/internal/models"
	"github.com/ternarybob/lectern/internal/pipelines"
)

const robotsUserAgent = "lectern"

// Strategy drives one scrape: a breadth-first walk over the work queue,
// fetching each URL, routing it through the matching content pipeline and
// reporting every processed URL through the emit callback. The callback is
// invoked sequentially, in queue order; returning an error aborts the run.
type Strategy struct {
	httpFetcher    interfaces.Fetcher
	browserFetcher interfaces.Fetcher
	fileFetcher    interfaces.Fetcher
	registry       *pipelines.Registry
	config         common.FetcherConfig
	limiter        *rate.Limiter
	logger         arbor.ILogger

	robotsMu sync.Mutex
	robots   map[string]*robotstxt.RobotsData
}

type EmitFunc func(models.ProgressEvent) error

func NewStrategy(httpFetcher, browserFetcher, fileFetcher interfaces.Fetcher, registry *pipelines.Registry, config common.FetcherConfig, logger arbor.ILogger) *Strategy {
	var limiter *rate.Limiter
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}
	return &Strategy{
		httpFetcher:    httpFetcher,
		browserFetcher: browserFetcher,
		fileFetcher:    fileFetcher,
		registry:       registry,
		config:         config,
		limiter:        limiter,
		logger:         logger,
		robots:         make(map[string]*robotstxt.RobotsData),
	}
}

type outcome struct {
	item   models.QueueItem
	raw    *fetcher.RawContent
	result *models.ScrapeResult
	err    error
}

// Run walks the queue until it is drained, the page budget is spent or the
// context is cancelled. Fetches within a batch run concurrently up to the
// job's MaxConcurrency; results are emitted in deterministic queue order.
func (s *Strategy) Run(ctx context.Context, opts models.ScraperOptions, emit EmitFunc) error {
	opts = opts.WithDefaults()

	filter, err := newLinkFilter(opts)
	if err != nil {
		return err
	}

	queue := initialQueue(opts)
	visited := make(map[string]bool, len(queue))
	for _, item := range queue {
		visited[normalizeURL(item.URL)] = true
	}

	pagesScraped := 0
	discovered := len(queue)

	for len(queue) > 0 && pagesScraped < opts.MaxPages {
		if ctx.Err() != nil {
			return &fetcher.CancellationError{Reason: "Job cancelled during scraping progress"}
		}

		n := opts.MaxConcurrency
		if n > len(queue) {
			n = len(queue)
		}
		if remaining := opts.MaxPages - pagesScraped; n > remaining {
			n = remaining
		}
		batch := queue[:n]
		queue = queue[n:]

		outcomes := make([]outcome, n)
		var wg sync.WaitGroup
		for i := range batch {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				outcomes[i] = s.fetchOne(ctx, batch[i], opts)
			}(i)
		}
		wg.Wait()

		for _, out := range outcomes {
			if _, ok := out.err.(*fetcher.CancellationError); ok {
				return out.err
			}
			if ctx.Err() != nil {
				return &fetcher.CancellationError{Reason: "Job cancelled during scraping progress"}
			}

			pagesScraped++
			ev := models.ProgressEvent{
				PagesScraped:    pagesScraped,
				CurrentURL:      out.item.URL,
				Depth:           out.item.Depth,
				MaxDepth:        opts.MaxDepth,
				TotalDiscovered: discovered,
			}

			switch {
			case out.err != nil:
				s.logger.Warn().Err(out.err).Str("url", out.item.URL).Msg("Fetch failed")
				if !*opts.IgnoreErrors {
					return fmt.Errorf("failed to fetch %s: %w", out.item.URL, out.err)
				}

			case out.raw.Status == fetcher.StatusNotModified:
				ev.PageID = out.item.PageID

			case out.raw.Status == fetcher.StatusNotFound:
				if out.item.PageID != nil {
					ev.Deleted = true
					ev.PageID = out.item.PageID
				} else {
					s.logger.Warn().Str("url", out.item.URL).Msg("Page not found")
					if !*opts.IgnoreErrors {
						return fmt.Errorf("page not found: %s", out.item.URL)
					}
				}

			default:
				ev.Result = out.result
				ev.PageID = out.item.PageID
				if out.item.Depth < opts.MaxDepth {
					for _, link := range out.result.Links {
						norm := normalizeURL(link)
						if visited[norm] || !filter.Allow(link) {
							continue
						}
						visited[norm] = true
						discovered++
						queue = append(queue, models.QueueItem{URL: link, Depth: out.item.Depth + 1})
					}
				}
			}

			ev.TotalDiscovered = discovered
			ev.TotalPages = discovered
			if ev.TotalPages > opts.MaxPages {
				ev.TotalPages = opts.MaxPages
			}

			if err := emit(ev); err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *Strategy) fetchOne(ctx context.Context, item models.QueueItem, opts models.ScraperOptions) outcome {
	out := outcome{item: item}

	if s.limiter != nil && !isFileURL(item.URL) {
		if err := s.limiter.Wait(ctx); err != nil {
			out.err = &fetcher.CancellationError{Reason: "Job cancelled during scraping progress"}
			return out
		}
	}

	if s.config.FollowRobotsTxt && !isFileURL(item.URL) {
		if allowed := s.allowedByRobots(ctx, item.URL); !allowed {
			out.err = fmt.Errorf("disallowed by robots.txt: %s", item.URL)
			return out
		}
	}

	f := s.pickFetcher(item.URL, opts.ScrapeMode)
	if f == nil {
		out.err = fmt.Errorf("no fetcher for %s", item.URL)
		return out
	}

	fetchOpts := fetcher.FetchOptions{
		Etag:            item.Etag,
		FollowRedirects: *opts.FollowRedirects,
		Headers:         opts.Headers,
	}

	raw, err := f.Fetch(ctx, item.URL, fetchOpts)
	if err != nil {
		out.err = err
		return out
	}
	out.raw = raw
	if raw.Status != fetcher.StatusSuccess {
		return out
	}

	result, err := s.registry.ForContentType(raw.MimeType).Process(ctx, raw, opts)
	if err != nil {
		out.err = err
		return out
	}
	out.result = result

	// JS-shell pages render empty through plain HTTP; retry once with the
	// browser when the job allows it.
	if opts.ScrapeMode == models.ScrapeModeAuto && s.browserFetcher != nil &&
		isHTMLMime(raw.MimeType) && isThinContent(result) {
		if rendered, err := s.browserFetcher.Fetch(ctx, item.URL, fetchOpts); err == nil && rendered.Status == fetcher.StatusSuccess {
			if rres, err := s.registry.ForContentType(rendered.MimeType).Process(ctx, rendered, opts); err == nil {
				out.raw = rendered
				out.result = rres
			}
		}
	}

	return out
}

func (s *Strategy) pickFetcher(rawURL string, mode models.ScrapeMode) interfaces.Fetcher {
	if isFileURL(rawURL) {
		return s.fileFetcher
	}
	if mode == models.ScrapeModeBrowser && s.browserFetcher != nil {
		return s.browserFetcher
	}
	return s.httpFetcher
}

// allowedByRobots checks the host's robots.txt, fetched once per host.
// Unreachable or unparseable robots files allow everything.
func (s *Strategy) allowedByRobots(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	s.robotsMu.Lock()
	data, ok := s.robots[u.Host]
	s.robotsMu.Unlock()

	if !ok {
		data = s.fetchRobots(ctx, u)
		s.robotsMu.Lock()
		s.robots[u.Host] = data
		s.robotsMu.Unlock()
	}

	if data == nil {
		return true
	}
	return data.TestAgent(u.Path, robotsUserAgent)
}

func (s *Strategy) fetchRobots(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		s.logger.Debug().Err(err).Str("host", u.Host).Msg("Failed to parse robots.txt")
		return nil
	}
	return data
}

// initialQueue seeds the walk. Refresh jobs supply the existing pages; the
// root URL is forced to appear exactly once, at depth 0.
func initialQueue(opts models.ScraperOptions) []models.QueueItem {
	rootNorm := normalizeURL(opts.URL)

	root := models.QueueItem{URL: opts.URL, Depth: 0}
	rest := make([]models.QueueItem, 0, len(opts.InitialQueue))
	for _, item := range opts.InitialQueue {
		if normalizeURL(item.URL) == rootNorm {
			root.PageID = item.PageID
			root.Etag = item.Etag
			continue
		}
		rest = append(rest, item)
	}
	return append([]models.QueueItem{root}, rest...)
}

func normalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	return strings.TrimSuffix(u.String(), "/")
}

func isFileURL(rawURL string) bool {
	return strings.HasPrefix(rawURL, "file://")
}

func isHTMLMime(mimeType string) bool {
	return mimeType == "text/html" || mimeType == "application/xhtml+xml"
}

// isThinContent flags pages whose extracted text is too small to be real
// documentation, the usual signature of a JavaScript shell.
func isThinContent(result *models.ScrapeResult) bool {
	return len(strings.TrimSpace(result.TextContent)) < 50 && len(result.Links) == 0
}
