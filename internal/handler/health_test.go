package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"auth-relay-go/internal/config"
	"auth-relay-go/internal/model"
)

func TestHealthz(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := NewHealthHandler(&config.Config{}, nil, "test")
	if err := h.Healthz(c); err != nil {
		t.Fatalf("Healthz() error = %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want %q", body["status"], "ok")
	}
}

func TestStatus(t *testing.T) {
	cfg := &config.Config{
		Upstream:    config.UpstreamConfig{BaseURL: "https://api.example.com"},
		Cookies:     config.CookiesConfig{ParentDomain: ".example.com"},
		Credentials: config.CredentialsConfig{Source: config.SourceStatic},
	}

	tests := []struct {
		name           string
		creds          *model.Credentials
		wantConfigured bool
	}{
		{"configured", &model.Credentials{Username: "svc", Password: "hunter2"}, true},
		{"incomplete", &model.Credentials{Username: "svc"}, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/relay/status", http.NoBody)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			h := NewHealthHandler(cfg, tt.creds, "1.2.3")
			if err := h.Status(c); err != nil {
				t.Fatalf("Status() error = %v", err)
			}

			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
			if strings.Contains(rec.Body.String(), "hunter2") {
				t.Errorf("status body leaks password: %s", rec.Body.String())
			}

			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if body["version"] != "1.2.3" {
				t.Errorf("body.version = %v, want %q", body["version"], "1.2.3")
			}
			if body["upstream_url"] != "https://api.example.com" {
				t.Errorf("body.upstream_url = %v", body["upstream_url"])
			}
			if body["cookie_domain"] != ".example.com" {
				t.Errorf("body.cookie_domain = %v", body["cookie_domain"])
			}
			if body["credentials_source"] != config.SourceStatic {
				t.Errorf("body.credentials_source = %v", body["credentials_source"])
			}
			if body["credentials_configured"] != tt.wantConfigured {
				t.Errorf("body.credentials_configured = %v, want %v", body["credentials_configured"], tt.wantConfigured)
			}
		})
	}
}
