package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/interfaces"
	"github.com/ternarybob/lectern/internal/models"
	"github.com/ternarybob/lectern/internal/pipeline"
)

// JobHandler exposes the pipeline manager over HTTP.
type JobHandler struct {
	manager interfaces.PipelineManager
	logger  arbor.ILogger
}

func NewJobHandler(manager interfaces.PipelineManager, logger arbor.ILogger) *JobHandler {
	return &JobHandler{manager: manager, logger: logger}
}

// EnqueueHandler handles POST /api/jobs. The body is the scraper options;
// the response carries the new job id.
func (h *JobHandler) EnqueueHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var opts models.ScraperOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	id, err := h.manager.EnqueueJob(r.Context(), opts)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info().
		Str("job_id", id).
		Str("library", opts.Library).
		Str("url", opts.URL).
		Msg("Scrape job enqueued")

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"id":     id,
		"status": string(models.JobStatusQueued),
	})
}

// RefreshRequest is the body of POST /api/jobs/refresh.
type RefreshRequest struct {
	Library string `json:"library"`
	Version string `json:"version,omitempty"`
}

// RefreshHandler handles POST /api/jobs/refresh, re-running a previously
// indexed version with its stored options.
func (h *JobHandler) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Library == "" {
		WriteError(w, http.StatusBadRequest, "library is required")
		return
	}

	id, err := h.manager.EnqueueRefresh(r.Context(), req.Library, req.Version)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info().
		Str("job_id", id).
		Str("library", req.Library).
		Str("version", req.Version).
		Msg("Refresh job enqueued")

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"id":     id,
		"status": string(models.JobStatusQueued),
	})
}

// ListJobsHandler handles GET /api/jobs, newest first. An optional status
// query parameter filters the list.
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	jobs, err := h.manager.GetJobs(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if status := r.URL.Query().Get("status"); status != "" {
		filtered := jobs[:0]
		for _, job := range jobs {
			if job.Status == models.JobStatus(status) {
				filtered = append(filtered, job)
			}
		}
		jobs = filtered
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// ClearCompletedHandler handles POST /api/jobs/clear-completed.
func (h *JobHandler) ClearCompletedHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	cleared := h.manager.ClearCompletedJobs(r.Context())
	WriteJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}

// JobByIDHandler handles GET and DELETE on /api/jobs/{id}.
func (h *JobHandler) JobByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if id == "" || strings.Contains(id, "/") {
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, err := h.manager.GetJob(r.Context(), id)
		if err != nil {
			h.writeJobError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, job)

	case http.MethodDelete:
		if err := h.manager.CancelJob(r.Context(), id); err != nil {
			h.writeJobError(w, err)
			return
		}
		WriteSuccess(w, "Job cancellation requested")

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *JobHandler) writeJobError(w http.ResponseWriter, err error) {
	if errors.Is(err, pipeline.ErrJobNotFound) {
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	WriteError(w, http.StatusInternalServerError, err.Error())
}
