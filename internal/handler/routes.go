package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"auth-relay-go/internal/config"
	"auth-relay-go/internal/metrics"
	"auth-relay-go/internal/middleware"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
// CORS and the request limits apply to the relay route only.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, relay *RelayHandler, health *HealthHandler, m *metrics.Metrics) {
	e.GET("/healthz", health.Healthz)
	e.GET("/relay/status", health.Status)
	e.Any(cfg.Relay.Path, relay.Handle, middleware.RelayChain(cfg)...)

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
}
