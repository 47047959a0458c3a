package interfaces

import (
	"context"

	"github.com/ternarybob/lectern/internal/fetcher"
)

// Fetcher retrieves raw content from a URL. Implementations exist for
// plain HTTP, local files and a headless browser.
type Fetcher interface {
	// CanFetch reports whether this fetcher handles the URL's scheme
	CanFetch(rawURL string) bool

	// Fetch retrieves the URL. A non-nil FetchOptions.Etag enables a
	// conditional request; an unchanged resource yields StatusNotModified.
	Fetch(ctx context.Context, rawURL string, opts fetcher.FetchOptions) (*fetcher.RawContent, error)
}
