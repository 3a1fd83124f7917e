// Package http assembles the public router: middleware chain, health and
// metrics endpoints, and the authenticated registration API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"idregistry/internal/platform/middleware"
	"idregistry/internal/registration/handler"
	"idregistry/pkg/platform/httputil"
)

// requestTimeout is the outer bound on request handling. Capture submission
// is the slowest path; its external clients carry their own tighter timeouts.
const requestTimeout = 30 * time.Second

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// NewRouter builds the full route tree. Health and metrics are unauthenticated;
// every registration endpoint sits behind JWT auth.
func NewRouter(registrations *handler.Handler, validator middleware.JWTValidator, logger *slog.Logger, checks map[string]HealthCheck) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", handleHealth(checks))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAuth(validator, logger))
		registrations.Register(r)
	})

	return r
}

func handleHealth(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		healthy := true
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = "unhealthy"
				healthy = false
				continue
			}
			results[name] = "ok"
		}

		status := http.StatusOK
		overall := "ok"
		if !healthy {
			status = http.StatusServiceUnavailable
			overall = "degraded"
		}
		httputil.WriteJSON(w, status, map[string]any{
			"status": overall,
			"checks": results,
		})
	}
}
