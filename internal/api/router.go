package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/callwatch/internal/api/middleware"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestLogger(s.logger, s.config.Verbose))
	r.Use(middleware.PrometheusMiddleware)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recoverer(s.logger))

	// Health checks (public, no rate limit)
	r.Get("/health", s.health.Health)
	r.Get("/health/ready", s.health.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(s.limiter))
		r.Use(middleware.APIKey(s.config.APIKey))

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", s.listRules)
			r.Post("/", s.createRule)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getRule)
				r.Put("/", s.updateRule)
				r.Delete("/", s.deleteRule)
				r.Put("/enabled", s.setRuleEnabled)
				r.Get("/actions", s.listRuleActions)
				r.Post("/actions", s.createAction)
			})
		})

		r.Route("/actions/{id}", func(r chi.Router) {
			r.Get("/", s.getAction)
			r.Delete("/", s.deleteAction)
		})

		r.Route("/logs", func(r chi.Router) {
			r.Get("/", s.listLogs)
			r.Post("/ingest", s.ingestLogs)
			r.Get("/{id}", s.getLog)
		})

		r.Get("/alerts", s.listAlertHistory)
		r.Post("/process", s.process)
	})

	return r
}
