package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket event stream
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Jobs
	mux.HandleFunc("/api/jobs", s.handleJobsCollection)              // GET (list), POST (enqueue)
	mux.HandleFunc("/api/jobs/refresh", s.app.JobHandler.RefreshHandler)
	mux.HandleFunc("/api/jobs/clear-completed", s.app.JobHandler.ClearCompletedHandler)
	mux.HandleFunc("/api/jobs/", s.app.JobHandler.JobByIDHandler) // GET/DELETE /{id}

	// API routes - Libraries
	mux.HandleFunc("/api/libraries", s.app.LibraryHandler.ListHandler)
	mux.HandleFunc("/api/libraries/", s.app.LibraryHandler.VersionHandler) // DELETE /{name}?version=

	// API routes - Search
	mux.HandleFunc("/api/search", s.app.SearchHandler.SearchHandler)

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.StatusHandler.VersionHandler)

	return mux
}

func (s *Server) handleJobsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.app.JobHandler.ListJobsHandler(w, r)
	case http.MethodPost:
		s.app.JobHandler.EnqueueHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
