package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"auth-relay-go/internal/config"
)

func defaultCORS() config.CORSConfig {
	return config.CORSConfig{
		AllowOrigin:  "*",
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}
}

func TestCORS_Preflight(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"no params", "/relay"},
		{"login", "/relay?action=login"},
		{"proxy without path", "/relay?action=proxy"},
		{"unknown action", "/relay?action=nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			e := echo.New()
			e.Any("/relay", func(c echo.Context) error {
				called = true
				return c.String(http.StatusTeapot, "handler ran")
			}, CORS(defaultCORS()))

			req := httptest.NewRequest(http.MethodOptions, tt.url, http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if called {
				t.Error("handler ran for preflight request")
			}
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
			if rec.Body.Len() != 0 {
				t.Errorf("body = %q, want empty", rec.Body.String())
			}
			if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "*" {
				t.Errorf("Allow-Origin = %q, want *", got)
			}
			if got := rec.Header().Get(echo.HeaderAccessControlAllowMethods); got != "GET, POST, OPTIONS" {
				t.Errorf("Allow-Methods = %q", got)
			}
			if got := rec.Header().Get(echo.HeaderAccessControlAllowHeaders); got != "Content-Type, Authorization" {
				t.Errorf("Allow-Headers = %q", got)
			}
		})
	}
}

func TestCORS_HeadersOnErrorResponse(t *testing.T) {
	e := echo.New()
	e.Any("/relay", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusInternalServerError, "boom")
	}, CORS(defaultCORS()))

	req := httptest.NewRequest(http.MethodGet, "/relay", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "*" {
		t.Errorf("Allow-Origin = %q, want * on error response", got)
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != echo.MIMEApplicationJSON {
		t.Errorf("Content-Type = %q, want %q", got, echo.MIMEApplicationJSON)
	}
}

func TestCORS_ReflectOriginWithCredentials(t *testing.T) {
	cfg := defaultCORS()
	cfg.ReflectOrigin = true
	cfg.AllowCredentials = true

	e := echo.New()
	e.Any("/relay", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"ok": "yes"})
	}, CORS(cfg))

	req := httptest.NewRequest(http.MethodPost, "/relay", http.NoBody)
	req.Header.Set(echo.HeaderOrigin, "https://app.example.com")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q, want reflected origin", got)
	}
	if got := rec.Header().Get(echo.HeaderAccessControlAllowCredentials); got != "true" {
		t.Errorf("Allow-Credentials = %q, want true", got)
	}
	if got := rec.Header().Get(echo.HeaderVary); got != echo.HeaderOrigin {
		t.Errorf("Vary = %q, want Origin", got)
	}
}

func TestCORS_NoCredentialsHeaderByDefault(t *testing.T) {
	e := echo.New()
	e.Any("/relay", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, CORS(defaultCORS()))

	req := httptest.NewRequest(http.MethodGet, "/relay", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if got := rec.Header().Get(echo.HeaderAccessControlAllowCredentials); got != "" {
		t.Errorf("Allow-Credentials = %q, want unset", got)
	}
}
