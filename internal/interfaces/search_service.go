package interfaces

import (
	"context"

	"github.com/ternarybob/lectern/internal/models"
)

// SearchService runs hybrid retrieval over an indexed version. Results are
// rank-fused across full-text and vector legs, then expanded with
// surrounding document context before being returned.
type SearchService interface {
	// Search resolves the requested version and returns up to limit merged
	// results. An unresolvable version returns a VersionNotFoundError.
	Search(ctx context.Context, library, version, query string, limit int) ([]models.SearchResult, error)
}
