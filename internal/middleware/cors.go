package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"auth-relay-go/internal/config"
)

// CORS returns an Echo middleware that sets CORS headers on every response,
// errors included, and answers preflight requests with an empty 200 before
// the handler runs.
func CORS(cfg config.CORSConfig) echo.MiddlewareFunc {
	methods := strings.Join(cfg.AllowMethods, ", ")
	headers := strings.Join(cfg.AllowHeaders, ", ")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			origin := cfg.AllowOrigin
			if cfg.ReflectOrigin {
				h.Add(echo.HeaderVary, echo.HeaderOrigin)
				if o := c.Request().Header.Get(echo.HeaderOrigin); o != "" {
					origin = o
				}
			}

			h.Set(echo.HeaderAccessControlAllowOrigin, origin)
			h.Set(echo.HeaderAccessControlAllowMethods, methods)
			h.Set(echo.HeaderAccessControlAllowHeaders, headers)
			if cfg.AllowCredentials {
				h.Set(echo.HeaderAccessControlAllowCredentials, "true")
			}
			h.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusOK)
			}
			return next(c)
		}
	}
}
