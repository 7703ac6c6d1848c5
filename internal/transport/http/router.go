package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"dropsync-api/internal/transport/http/handler"
	"dropsync-api/internal/transport/http/middleware"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(h *handler.Handler, syncHandler *handler.SyncHandler, dashHandler *handler.DashboardHandler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure for production
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// API key authentication (skip for health checks)
	r.Use(middleware.APIKeyAuth)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check endpoints (no auth required)
		r.Get("/health", h.Health)
		r.Get("/ready", h.Ready)

		// Sync engine endpoints
		if syncHandler != nil {
			r.Route("/sync", func(r chi.Router) {
				r.Post("/trigger", syncHandler.Trigger)
				r.Get("/jobs", syncHandler.ListJobs)
				r.Get("/jobs/{job_id}", syncHandler.GetJob)
			})
		}

		// Dashboard endpoints
		if dashHandler != nil {
			r.Route("/dashboard", func(r chi.Router) {
				r.Get("/stats", dashHandler.GetStats)
			})
		}
	})

	return r
}
