package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket event stream
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Sources
	mux.HandleFunc("/api/sources", s.app.SourcesHandler.CreateHandler)      // POST - ingest a URL
	mux.HandleFunc("/api/sources/file", s.app.SourcesHandler.UploadHandler) // POST - multipart file upload
	mux.HandleFunc("/api/sources/", s.handleSourceRoutes)                   // GET/POST/DELETE /{id} and subpaths

	// API routes - Queue
	mux.HandleFunc("/api/queue/drain", s.app.QueueHandler.DrainHandler)
	mux.HandleFunc("/api/queue/status", s.app.QueueHandler.StatusHandler)

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/version", s.app.StatusHandler.GetVersionHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.notFoundHandler)

	return mux
}

// handleSourceRoutes routes /api/sources/{id} and its subpaths
func (s *Server) handleSourceRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case strings.HasSuffix(path, "/timeline"):
		s.app.DiagnosticsHandler.TimelineHandler(w, r)

	case strings.HasSuffix(path, "/retry"):
		s.app.SourcesHandler.RetryHandler(w, r)

	case strings.HasSuffix(path, "/health/run"):
		s.app.HealthHandler.RunHandler(w, r)

	case strings.HasSuffix(path, "/health"):
		s.app.HealthHandler.ListHandler(w, r)

	default:
		// Bare /api/sources/{id}
		switch r.Method {
		case http.MethodGet:
			s.app.SourcesHandler.GetHandler(w, r)
		case http.MethodDelete:
			s.app.SourcesHandler.DeleteHandler(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// notFoundHandler returns a JSON 404 for unknown API paths
func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"status":"error","error":"not found"}`))
}
