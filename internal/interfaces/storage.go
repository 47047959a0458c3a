package interfaces

import (
	"context"

	"github.com/ternarybob/lectern/internal/models"
)

// DocumentStore is the persistence boundary for libraries, versions, pages
// and chunk documents. Version names are passed normalized; nil means the
// unversioned entry.
type DocumentStore interface {
	// AddScrapeResult stores one processed page and its chunks. The page
	// row is upserted by (version, url); existing chunks for the page are
	// replaced in a single transaction.
	AddScrapeResult(ctx context.Context, library string, version *string, depth int, result *models.ScrapeResult) error

	// DeletePage removes a page and its chunks
	DeletePage(ctx context.Context, pageID int64) error

	// GetPagesByVersion returns all pages of a version, for refresh seeding
	GetPagesByVersion(ctx context.Context, library string, version *string) ([]models.Page, error)

	// RemoveAllDocuments clears every page and chunk of a version but keeps
	// the version row and its scraper options
	RemoveAllDocuments(ctx context.Context, library string, version *string) error

	// RemoveVersion deletes a version entirely; the parent library row is
	// removed when its last version goes
	RemoveVersion(ctx context.Context, library string, version *string) error

	// FindBestVersion resolves a requested version (exact, X-range such as
	// "3.x", or empty for latest) against the indexed versions of a library
	FindBestVersion(ctx context.Context, library string, requested string) (*string, error)

	// ListLibraries returns all libraries with their versions and statuses
	ListLibraries(ctx context.Context) ([]models.LibraryInfo, error)

	// Version lifecycle bookkeeping, written through by the job manager
	UpdateVersionStatus(ctx context.Context, library string, version *string, status models.VersionStatus, errorMessage *string) error
	UpdateVersionProgress(ctx context.Context, library string, version *string, pages, maxPages int) error
	StoreScraperOptions(ctx context.Context, library string, version *string, sourceURL string, optionsJSON string) error
	GetScraperOptions(ctx context.Context, library string, version *string) (*models.ScraperOptions, error)

	// GetVersionsByStatus returns versions currently in any of the given
	// statuses, used for startup recovery
	GetVersionsByStatus(ctx context.Context, statuses ...models.VersionStatus) ([]models.VersionRef, error)

	// FindVersionsBySourceUrl returns versions indexed from a source URL
	FindVersionsBySourceUrl(ctx context.Context, url string) ([]models.VersionRef, error)

	// Search surfaces used by the search service
	SearchFullText(ctx context.Context, library string, version *string, query string, limit int) ([]models.SearchHit, error)
	SearchVector(ctx context.Context, library string, version *string, embedding []float32, limit int) ([]models.SearchHit, error)

	// GetChunkContext loads a chunk together with its page neighbourhood
	GetChunksByPage(ctx context.Context, pageID int64) ([]models.Document, error)
	GetChunkByID(ctx context.Context, chunkID int64) (*models.Document, *models.Page, error)

	// Stats returns row counts for diagnostics
	Stats(ctx context.Context) (map[string]int64, error)

	// Close releases the underlying database
	Close() error
}
