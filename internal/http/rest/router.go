package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/italolelis/asset_bootstrap/internal/telemetry"
)

// NewRouter mounts the status API behind request id, logging and telemetry middleware,
// with Prometheus metrics on /metrics.
func NewRouter(h *StatusHandler, tel *telemetry.Telemetry) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Mount("/", h.Routes())
	r.Method(http.MethodGet, "/metrics", tel.Handler())

	return r
}
