// Package server implements the HTTP transport layer for the Radagast proxy.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	gateway "github.com/eugener/radagast/internal"
	"github.com/eugener/radagast/internal/app"
	"github.com/eugener/radagast/internal/telemetry"
)

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Auth           gateway.Authenticator
	Proxy          *app.ProxyService
	Metrics        *telemetry.Metrics // nil = no metrics collection
	MetricsHandler http.Handler       // nil = /metrics not mounted
}

// New creates an http.Handler with all routes and middleware wired.
// Authentication runs strictly before the handlers that do cache or
// upstream I/O; the health endpoints are deliberately outside it.
func New(deps Deps) http.Handler {
	s := &server{deps: deps}

	r := chi.NewRouter()

	// Global middleware
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	// System endpoints (no auth)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/health", s.handleHealth)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// Client-facing API (auth required)
	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/call_model", s.handleCallModel)
		r.Get("/models", s.handleListModels)
	})

	return r
}

type server struct {
	deps Deps
}
