package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"auth-relay-go/internal/config"
	"auth-relay-go/internal/model"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	creds   *model.Credentials
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, creds *model.Credentials, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, creds: creds, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns relay status information. Credential values are never included.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":                 "ok",
		"version":                string(h.version),
		"upstream_url":           h.cfg.Upstream.BaseURL,
		"cookie_domain":          h.cfg.Cookies.ParentDomain,
		"credentials_source":     h.cfg.Credentials.Source,
		"credentials_configured": h.creds != nil && h.creds.Complete(),
	})
}
