// Package api wires the local status HTTP surface. It is observational
// only: joining, sending and leaving happen through the console, never
// through HTTP.
package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/roomcast/internal/api/middleware"
	"github.com/eldtechnologies/roomcast/internal/handlers"
	"github.com/eldtechnologies/roomcast/internal/session"
	"github.com/eldtechnologies/roomcast/internal/store"
)

// NewRouter creates and configures the status HTTP router.
func NewRouter(logger zerolog.Logger, log store.MessageLog, sess *session.Session) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	h := handlers.NewHandler(log, sess)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", h.Health)
	r.Get("/history", h.History)
	r.Get("/find", h.Find)
	r.Get("/online", h.Online)

	return r
}
