package api

import (
	"log/slog"
	"net/http"

	"github.com/clindesk/ectdpack/internal/config"
	"github.com/clindesk/ectdpack/internal/export"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP boundary of the packaging service. It only adapts
// JSON to engine calls; all packaging semantics live in the engine
// packages.
type Server struct {
	router   chi.Router
	exporter *export.Exporter
	log      *slog.Logger
	cfg      config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(exp *export.Exporter, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		exporter: exp,
		log:      log,
		cfg:      cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/studies/{studyID}/export", s.handleExport)
		r.Get("/api/studies/{studyID}/readiness", s.handleReadiness)
		r.Get("/api/studies/{studyID}/manifest", s.handleManifest)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
