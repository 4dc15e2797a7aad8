// Package model defines shared types for the relay.
package model

import (
	"net/http"
)

// Credentials is the upstream service account. Resolved once at startup and
// never mutated afterwards.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Complete reports whether both username and password are set.
func (c Credentials) Complete() bool {
	return c.Username != "" && c.Password != ""
}

// UpstreamRequest describes one outbound call to the upstream API.
type UpstreamRequest struct {
	Method string
	Path   string // origin-relative, may carry a query string
	Header http.Header
	Body   []byte
}

// UpstreamResponse is a fully buffered upstream response.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// IsSuccess reports whether the upstream answered with a 2xx status.
func (r *UpstreamResponse) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ActionContextKey is the echo.Context key under which the dispatcher stores
// the resolved action, for request logging.
const ActionContextKey = "relay_action"
