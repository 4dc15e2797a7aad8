// Package app assembles the relay's dependency graph. Both the standalone
// server and the Lambda entry point build on Module.
package app

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"auth-relay-go/internal/client"
	"auth-relay-go/internal/config"
	"auth-relay-go/internal/credentials"
	"auth-relay-go/internal/handler"
	"auth-relay-go/internal/metrics"
	"auth-relay-go/internal/middleware"
	"auth-relay-go/internal/service"
)

// Module provides everything needed to serve the relay on an *echo.Echo.
// Starting a listener is left to the caller.
func Module(cli *config.CLI, version string) fx.Option {
	return fx.Options(
		fx.Provide(
			func() *config.CLI { return cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			NewLogger,
			metrics.New,
			NewEcho,
			credentials.NewSource,
			credentials.Load,
			client.NewUpstreamClient,
			service.NewRelayService,
			handler.NewRelayHandler,
			handler.NewHealthHandler,
		),
		fx.Invoke(handler.RegisterRoutes, warnConfigPermissions),
	)
}

// NewLogger builds the process logger from the log section of the config.
func NewLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h)
}

// NewEcho creates the Echo instance with the global middleware chain. Body
// and rate limits are attached to the relay route by handler.RegisterRoutes.
func NewEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(logger)

	e.Server.ReadTimeout = 30 * time.Second
	// Upstream client timeout bounds the handler; no write deadline on top of it.
	e.Server.WriteTimeout = 0
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	if cfg.Metrics.Enabled {
		e.Use(middleware.MetricsMiddleware(m, PathNormalizer(cfg)))
	}
	e.Use(middleware.SecurityHeaders())

	if cfg.Server.RateLimit.Enabled {
		logger.Info("rate limiter enabled", "rps", cfg.Server.RateLimit.RequestsPerSecond)
	}

	return e
}

// PathNormalizer returns the label normalizer for every route the relay serves.
func PathNormalizer(cfg *config.Config) *metrics.PathNormalizer {
	return metrics.NewPathNormalizer(cfg.Relay.Path, "/healthz", "/relay/status", cfg.Metrics.Path)
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}
