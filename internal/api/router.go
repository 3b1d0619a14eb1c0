// Package api assembles the HTTP router: middleware stack, JSON API routes,
// the metrics endpoint and the embedded UI.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/agentoven/ragjenkins/internal/api/handlers"
	"github.com/agentoven/ragjenkins/internal/api/middleware"
	"github.com/agentoven/ragjenkins/internal/ui"
)

// NewRouter creates the HTTP router with all routes. metrics may be nil
// when the Prometheus endpoint is disabled.
func NewRouter(h *handlers.Handlers, metrics http.Handler) http.Handler {
	cfg := h.Config
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	if cfg.Auth.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.Recoverer)
	r.Use(middleware.CollectionExtractor)
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Collection", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id", "X-Trace-Id", "Retry-After"},
		MaxAge:         300,
	}))
	r.Use(middleware.NewAPIKeyAuth(cfg.Auth.APIKeys).Middleware)

	// UI, health & info
	r.Get("/", ui.Handler().ServeHTTP)
	r.Get("/health", h.Health)
	r.Get("/version", h.Version)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	agentLimit := middleware.NewRateLimiter(cfg.Agent.RunsPerMinute, cfg.Agent.RunBurst)

	r.Route("/api", func(r chi.Router) {
		r.Get("/config", h.GetConfig)

		// Code index
		r.Post("/index", h.IndexArchive)
		r.Post("/index/clear", h.ClearIndex)
		r.Get("/search", h.Search)

		// Agent
		r.With(agentLimit.Middleware).Post("/agent/run", h.RunAgent)

		// Jenkins
		r.Get("/jenkins/jobs/{name}/builds/{number}", h.GetBuild)

		// Activity feed
		r.Get("/activity", h.ListActivity)
		r.Get("/activity/stream", h.StreamActivity)
	})

	return r
}
