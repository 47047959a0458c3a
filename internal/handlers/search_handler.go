package handlers

import (
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/interfaces"
	"github.com/ternarybob/lectern/internal/storage/sqlite"
)

// SearchHandler handles hybrid search requests.
type SearchHandler struct {
	searchService interfaces.SearchService
	logger        arbor.ILogger
}

func NewSearchHandler(searchService interfaces.SearchService, logger arbor.ILogger) *SearchHandler {
	return &SearchHandler{searchService: searchService, logger: logger}
}

// SearchHandler handles GET /api/search?library=...&version=...&q=...&limit=...
func (h *SearchHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	q := r.URL.Query()
	library := q.Get("library")
	version := q.Get("version")
	query := q.Get("q")

	if library == "" {
		WriteError(w, http.StatusBadRequest, "library is required")
		return
	}
	if query == "" {
		WriteError(w, http.StatusBadRequest, "q is required")
		return
	}

	limit := QueryInt(r, "limit", 10)
	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}

	h.logger.Info().
		Str("library", library).
		Str("version", version).
		Str("query", query).
		Int("limit", limit).
		Msg("Search request received")

	results, err := h.searchService.Search(r.Context(), library, version, query, limit)
	if err != nil {
		if errors.Is(err, sqlite.ErrLibraryNotFound) || errors.Is(err, sqlite.ErrVersionNotFound) {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("query", query).Msg("Search failed")
		WriteError(w, http.StatusInternalServerError, "Search failed: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
}
