package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/pawwatch/internal/api/hooks"
	"github.com/good-yellow-bee/pawwatch/internal/api/middleware"
	"github.com/good-yellow-bee/pawwatch/internal/api/notifications"
	"github.com/good-yellow-bee/pawwatch/internal/api/respond"
	"github.com/good-yellow-bee/pawwatch/internal/api/subjects"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.PrometheusMiddleware)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recoverer(s.logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respond.Error(w, r, http.StatusNotFound, respond.CodeNotFound, "route not found")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/hooks", func(r chi.Router) {
			if s.hookLimiter != nil {
				r.Use(middleware.RateLimitByIP(s.hookLimiter))
			}
			h := hooks.NewHandler(s.storage.Subjects(), s.storage.Samples(), s.engine, s.config.HookTimeout)
			r.Post("/evaluations", h.Evaluation)
			r.Post("/weights", h.Weight)
		})

		subjectHandler := subjects.NewHandler(s.storage.Subjects(), s.engine)
		r.Get("/subjects/{id}/trends", subjectHandler.Trends)

		r.Route("/recipients/{id}/notifications", func(r chi.Router) {
			h := notifications.NewHandler(s.storage.Notifications())
			r.Get("/", h.List)
			r.Post("/{nid}/read", h.MarkRead)
		})

		r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
			respond.OK(w, r, s.engine.Stats())
		})
	})

	// Health checks (public, no rate limit)
	r.Get("/health", s.healthHandler.Health)
	r.Get("/health/live", s.healthHandler.Live)
	r.Get("/health/ready", s.healthHandler.Ready)

	return r
}
