package server

import (
	"net/http"
	"strings"

	"github.com/ternarybob/vendo/internal/handlers"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Prepare runs
	mux.HandleFunc("/api/prepare", s.app.RunHandler.PrepareHandler)
	mux.HandleFunc("/api/runs/", s.handleRunRoutes)

	// API routes - Templates
	mux.HandleFunc("/api/templates", s.handleTemplatesRoute)
	mux.HandleFunc("/api/templates/delete", s.app.TemplateHandler.DeleteHandler)
	mux.HandleFunc("/api/templates/", s.handleTemplateRoutes)

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/version", s.app.StatusHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.notFoundHandler)

	return mux
}

// handleRunRoutes routes /api/runs/{id} and its subpaths
func (s *Server) handleRunRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case strings.HasSuffix(path, "/cancel"):
		runID := handlers.RunIDFromPath(path, "/cancel")
		s.app.RunHandler.CancelHandler(w, r, runID)

	case strings.HasSuffix(path, "/sync"):
		runID := handlers.RunIDFromPath(path, "/sync")
		s.app.RunHandler.SyncHandler(w, r, runID)

	case strings.HasSuffix(path, "/diffs"):
		runID := handlers.RunIDFromPath(path, "/diffs")
		s.app.RunHandler.ListDiffsHandler(w, r, runID)

	default:
		runID := handlers.RunIDFromPath(path, "")
		if runID == "" {
			s.notFoundHandler(w, r)
			return
		}
		s.app.RunHandler.GetRunHandler(w, r, runID)
	}
}

// handleTemplatesRoute routes /api/templates by method
func (s *Server) handleTemplatesRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.app.TemplateHandler.ListHandler(w, r)
	case http.MethodPost:
		s.app.TemplateHandler.CreateHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleTemplateRoutes routes /api/templates/{id}
func (s *Server) handleTemplateRoutes(w http.ResponseWriter, r *http.Request) {
	templateID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/templates/"), "/")
	if templateID == "" {
		s.notFoundHandler(w, r)
		return
	}
	s.app.TemplateHandler.GetHandler(w, r, templateID)
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	handlers.WriteError(w, http.StatusNotFound, "not found: "+r.URL.Path)
}
