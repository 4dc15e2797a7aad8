// Package client provides the HTTP client for the upstream API.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"auth-relay-go/internal/config"
	"auth-relay-go/internal/metrics"
	"auth-relay-go/internal/model"
)

// ErrBodyTooLarge is returned when the upstream body exceeds the configured limit.
var ErrBodyTooLarge = errors.New("upstream response body exceeds limit")

// UpstreamClient sends requests to the upstream API and buffers the responses.
type UpstreamClient struct {
	httpClient   *http.Client
	logger       *slog.Logger
	metrics      *metrics.Metrics
	maxBodyBytes int64
}

// NewUpstreamClient creates an UpstreamClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	maxBody := cfg.Upstream.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 10 * 1024 * 1024
	}
	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
			// Redirects are relayed to the caller, not followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:       logger.With("component", "upstream_client"),
		metrics:      m,
		maxBodyBytes: maxBody,
	}
}

// Do executes one request against the upstream and returns the response with
// its body fully read. The request is bound to ctx.
func (c *UpstreamClient) Do(ctx context.Context, url string, ur *model.UpstreamRequest) (*model.UpstreamResponse, error) {
	var body io.Reader = http.NoBody
	if ur.Body != nil {
		body = bytes.NewReader(ur.Body)
	}
	req, err := http.NewRequestWithContext(ctx, ur.Method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if ur.Header != nil {
		req.Header = ur.Header.Clone()
	}
	if ur.Body != nil {
		req.ContentLength = int64(len(ur.Body))
	}

	c.logger.Debug("upstream request",
		"method", req.Method,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	method := metrics.NormalizeMethod(req.Method)
	if err != nil {
		c.observe(method, 0, start)
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	c.observe(method, resp.StatusCode, start)
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	if int64(len(data)) > c.maxBodyBytes {
		return nil, ErrBodyTooLarge
	}

	return &model.UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// observe records upstream latency, and the response status when one arrived.
func (c *UpstreamClient) observe(method string, status int, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if status != 0 {
		c.metrics.UpstreamResponses.WithLabelValues(method, strconv.Itoa(status)).Inc()
	}
}
