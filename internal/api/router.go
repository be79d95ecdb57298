package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/good-yellow-bee/warroom/internal/api/middleware"
	"github.com/good-yellow-bee/warroom/internal/metrics"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	limiter := middleware.NewRateLimiter(s.config.RateLimitPerSec, s.config.RateLimitBurst)
	clientIP := middleware.ClientIPResolver(s.config.TrustedProxies)

	// Global middleware
	r.Use(middleware.RequestLogger(s.config.Logger, s.config.Verbose))
	r.Use(middleware.Recoverer(s.config.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Metrics(metrics.Recorder{}))

	// Websocket rooms (bidirectional)
	r.Get("/ws/incidents/{id}", s.live.Websocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(limiter, clientIP))

		// SSE stream is exempt from the request timeout
		r.Get("/incidents/{id}/stream", s.live.Stream)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(s.config.RequestTimeout))

			r.Route("/incidents", func(r chi.Router) {
				r.Get("/", s.listIncidents)
				r.Post("/", s.createIncident)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.getIncident)
					r.Patch("/", s.updateIncident)
					r.Patch("/status", s.updateStatus)
					r.Get("/timeline", s.timeline)
					r.Post("/comments", s.addComment)
					r.Get("/actions", s.listActions)
					r.Post("/actions", s.createAction)
					r.Post("/analyze", s.requestAnalysis)
					r.Get("/postmortem", s.postmortem)
				})
			})

			r.Patch("/actions/{id}", s.updateAction)
			r.Get("/jobs/{id}", s.getJob)

			r.Route("/ingest/events", func(r chi.Router) {
				r.Post("/", s.ingestEvent)
				r.Post("/batch", s.ingestBatch)
				r.Get("/{incident_id}", s.listEvents)
			})
		})
	})

	// Health checks (public, no rate limit)
	r.Get("/health", s.healthHandler.Health)
	r.Get("/health/live", s.healthHandler.Live)
	r.Get("/health/ready", s.healthHandler.Ready)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		JSONError(w, ErrNotFound)
	})

	return r
}
