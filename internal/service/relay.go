// Package service implements the relay operations: credential hand-out,
// upstream login with cookie rewriting, and authenticated passthrough.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"auth-relay-go/internal/client"
	"auth-relay-go/internal/config"
	"auth-relay-go/internal/cookie"
	"auth-relay-go/internal/metrics"
	"auth-relay-go/internal/model"
)

var (
	// ErrMissingCredentials means the service account is not configured.
	ErrMissingCredentials = errors.New("missing upstream credentials")
	// ErrActionDisabled means the action was turned off in config.
	ErrActionDisabled = errors.New("action disabled")
	// ErrMissingPath means a proxy request came without a target path.
	ErrMissingPath = errors.New("missing path parameter")
	// ErrInvalidPath means the proxy target is not an origin-relative path.
	ErrInvalidPath = errors.New("invalid path parameter")
	// ErrInvalidMethod means the proxy method is not one the relay forwards.
	ErrInvalidMethod = errors.New("invalid method parameter")
	// ErrMissingAuthorization means a proxy request came without an Authorization header.
	ErrMissingAuthorization = errors.New("no authorization token provided")
	// ErrInvalidUpstreamResponse means the upstream body could not be parsed where parsing is required.
	ErrInvalidUpstreamResponse = errors.New("invalid upstream response")
)

// UpstreamError is a non-2xx answer from the upstream login endpoint.
type UpstreamError struct {
	StatusCode int
	Details    any
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// forwardableMethods are the methods the proxy action will send upstream.
var forwardableMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodHead:   true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

const userAgent = "auth-relay-go/1.0"

// LoginResult is a successful upstream login.
type LoginResult struct {
	// StatusCode is the upstream 2xx status.
	StatusCode int
	// Body is the upstream JSON, augmented with cookiesSet and message when
	// cookies were rewritten.
	Body any
	// Cookies are the Set-Cookie values to emit, in upstream order.
	Cookies []string
}

// ProxyRequest is one inbound proxy action.
type ProxyRequest struct {
	Path          string
	Method        string
	Authorization string
	Body          []byte
}

// RelayService performs the relay actions against the fixed upstream.
type RelayService struct {
	client  *client.UpstreamClient
	cfg     *config.Config
	creds   *model.Credentials
	logger  *slog.Logger
	metrics *metrics.Metrics
	baseURL *url.URL
}

// NewRelayService creates a RelayService. The metrics parameter is optional.
func NewRelayService(c *client.UpstreamClient, cfg *config.Config, creds *model.Credentials, logger *slog.Logger, m *metrics.Metrics) (*RelayService, error) {
	u, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("upstream base_url %q has no host", cfg.Upstream.BaseURL)
	}
	return &RelayService{
		client:  c,
		cfg:     cfg,
		creds:   creds,
		logger:  logger.With("component", "relay_service"),
		metrics: m,
		baseURL: u,
	}, nil
}

// Ready reports ErrMissingCredentials when the service account is not
// configured. Every action is refused in that state.
func (s *RelayService) Ready() error {
	if s.creds == nil || !s.creds.Complete() {
		return ErrMissingCredentials
	}
	return nil
}

// Credentials returns the configured credential pair.
func (s *RelayService) Credentials() (model.Credentials, error) {
	if err := s.Ready(); err != nil {
		return model.Credentials{}, err
	}
	if s.cfg.Credentials.DisableGetCredentials {
		return model.Credentials{}, ErrActionDisabled
	}
	s.logger.Info("returning credentials to caller")
	return *s.creds, nil
}

// Login authenticates against the upstream with the configured credentials.
func (s *RelayService) Login(ctx context.Context) (*LoginResult, error) {
	if err := s.Ready(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(s.creds)
	if err != nil {
		return nil, fmt.Errorf("encode login body: %w", err)
	}

	s.logger.Debug("login", "path", s.cfg.Upstream.LoginPath)

	resp, err := s.client.Do(ctx, s.buildUpstreamURL(s.cfg.Upstream.LoginPath), &model.UpstreamRequest{
		Method: http.MethodPost,
		Header: s.upstreamHeader(""),
		Body:   payload,
	})
	if err != nil {
		return nil, fmt.Errorf("login upstream: %w", err)
	}

	var body any
	parseErr := json.Unmarshal(resp.Body, &body)

	if !resp.IsSuccess() {
		s.logger.Info("authentication failed", "status", resp.StatusCode)
		details := body
		if parseErr != nil {
			details = nonEmptyOrNil(string(resp.Body))
		}
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Details: details}
	}
	if parseErr != nil {
		return nil, ErrInvalidUpstreamResponse
	}

	s.logger.Info("authentication successful")

	raw := resp.Header.Values("Set-Cookie")
	domain := s.cfg.Cookies.ParentDomain
	if domain == "" {
		return &LoginResult{StatusCode: resp.StatusCode, Body: body, Cookies: raw}, nil
	}

	rewritten := cookie.RewriteAll(raw, domain)
	if s.metrics != nil {
		s.metrics.CookiesRewritten.Add(float64(len(rewritten)))
	}
	s.logger.Debug("cookies rewritten", "count", len(rewritten), "domain", domain)

	return &LoginResult{
		StatusCode: resp.StatusCode,
		Body:       augment(body, len(rewritten), domain),
		Cookies:    rewritten,
	}, nil
}

// augment adds cookiesSet and message to the upstream login body. A body
// that is not a JSON object is nested under "data".
func augment(body any, count int, domain string) map[string]any {
	obj, ok := body.(map[string]any)
	if !ok {
		obj = map[string]any{"data": body}
	}
	obj["cookiesSet"] = count
	obj["message"] = "Cookies set for domain " + domain
	return obj
}

// Proxy forwards one request to the upstream and returns its response untouched.
func (s *RelayService) Proxy(ctx context.Context, pr *ProxyRequest) (*model.UpstreamResponse, error) {
	if pr.Path == "" {
		return nil, ErrMissingPath
	}
	target, err := s.resolvePath(pr.Path)
	if err != nil {
		return nil, err
	}
	method := strings.ToUpper(pr.Method)
	if !forwardableMethods[method] {
		return nil, ErrInvalidMethod
	}
	if pr.Authorization == "" && !s.cfg.Proxy.AllowAnonymous {
		return nil, ErrMissingAuthorization
	}

	ur := &model.UpstreamRequest{
		Method: method,
		Path:   target,
		Header: s.upstreamHeader(pr.Authorization),
	}
	if method != http.MethodGet && method != http.MethodHead && len(pr.Body) > 0 {
		ur.Body, err = jsonBody(pr.Body)
		if err != nil {
			return nil, err
		}
	}

	s.logger.Debug("forwarding request",
		"method", method,
		"path", target,
	)

	resp, err := s.client.Do(ctx, s.buildUpstreamURL(target), ur)
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}
	return resp, nil
}

// resolvePath accepts an origin-relative path with optional query string.
// Anything that would point the request at another host is rejected.
func (s *RelayService) resolvePath(p string) (string, error) {
	if strings.HasPrefix(p, "//") || strings.Contains(p, "\\") {
		return "", ErrInvalidPath
	}
	u, err := url.Parse(p)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return "", ErrInvalidPath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p, nil
}

// buildUpstreamURL joins the fixed upstream origin with an origin-relative
// path that may carry a query string.
func (s *RelayService) buildUpstreamURL(target string) string {
	u := *s.baseURL
	ref, err := url.Parse(target)
	if err != nil {
		ref = &url.URL{Path: target}
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + ref.Path
	u.RawPath = ""
	u.RawQuery = ref.RawQuery
	return u.String()
}

func (s *RelayService) upstreamHeader(authorization string) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("User-Agent", userAgent)
	if authorization != "" {
		h.Set("Authorization", authorization)
	}
	return h
}

// jsonBody returns body unchanged when it is already JSON, otherwise the body
// encoded as a JSON string.
func jsonBody(body []byte) ([]byte, error) {
	if json.Valid(body) {
		return body, nil
	}
	out, err := json.Marshal(string(body))
	if err != nil {
		return nil, fmt.Errorf("encode proxy body: %w", err)
	}
	return out, nil
}

func nonEmptyOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}
