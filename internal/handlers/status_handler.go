package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/common"
	"github.com/ternarybob/lectern/internal/interfaces"
)

// StatusHandler reports service health and store statistics.
type StatusHandler struct {
	store     interfaces.DocumentStore
	logger    arbor.ILogger
	startedAt time.Time
}

func NewStatusHandler(store interfaces.DocumentStore, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{store: store, logger: logger, startedAt: time.Now()}
}

// GetStatusHandler handles GET /api/status.
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	stats, err := h.store.Stats(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"service":        "lectern",
		"version":        common.GetVersion(),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"stats":          stats,
	})
}

// HealthHandler handles GET /api/health.
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// VersionHandler handles GET /api/version.
func (h *StatusHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"version": common.GetVersion()})
}
