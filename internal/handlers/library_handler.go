package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/interfaces"
	"github.com/ternarybob/lectern/internal/models"
	"github.com/ternarybob/lectern/internal/storage/sqlite"
)

// LibraryHandler exposes the indexed-library catalog.
type LibraryHandler struct {
	store  interfaces.DocumentStore
	events interfaces.EventService
	logger arbor.ILogger
}

func NewLibraryHandler(store interfaces.DocumentStore, events interfaces.EventService, logger arbor.ILogger) *LibraryHandler {
	return &LibraryHandler{store: store, events: events, logger: logger}
}

// ListHandler handles GET /api/libraries.
func (h *LibraryHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	libraries, err := h.store.ListLibraries(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"libraries": libraries,
		"count":     len(libraries),
	})
}

// VersionHandler handles DELETE /api/libraries/{name}?version=...
// Omitting the version query parameter targets the unversioned entry.
func (h *LibraryHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, "/api/libraries/")
	name, err := url.PathUnescape(raw)
	if err != nil || name == "" || strings.Contains(name, "/") {
		WriteError(w, http.StatusNotFound, "Library not found")
		return
	}

	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}

	version := models.NormalizeVersionName(r.URL.Query().Get("version"))
	if err := h.store.RemoveVersion(r.Context(), name, version); err != nil {
		if errors.Is(err, sqlite.ErrLibraryNotFound) || errors.Is(err, sqlite.ErrVersionNotFound) {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// removal changes the indexed set; catalog watchers need to hear it
	h.events.Publish(r.Context(), models.Event{Type: models.EventLibraryChange})

	h.logger.Info().
		Str("library", name).
		Str("version", r.URL.Query().Get("version")).
		Msg("Version removed")

	WriteSuccess(w, "Version removed")
}
