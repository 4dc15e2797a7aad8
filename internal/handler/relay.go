// Package handler implements the HTTP endpoints of the relay.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"

	"auth-relay-go/internal/client"
	"auth-relay-go/internal/metrics"
	"auth-relay-go/internal/model"
	"auth-relay-go/internal/service"
)

const (
	actionLogin          = "login"
	actionProxy          = "proxy"
	actionGetCredentials = "getcredentials"
)

// secretQueryPattern matches credential-looking query parameters in URLs embedded in error messages.
var secretQueryPattern = regexp.MustCompile(`(?i)((?:token|key|password|secret|auth)[a-z_]*=)[^&\s"]+`)

// errorResponse is the JSON envelope for every failure.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

// RelayHandler dispatches relay actions.
type RelayHandler struct {
	service *service.RelayService
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRelayHandler creates a RelayHandler. The metrics parameter is optional.
func NewRelayHandler(svc *service.RelayService, logger *slog.Logger, m *metrics.Metrics) *RelayHandler {
	return &RelayHandler{
		service: svc,
		logger:  logger.With("component", "relay_handler"),
		metrics: m,
	}
}

// Handle resolves the action and runs it. Preflight requests never reach
// this point; the CORS middleware answers them.
func (h *RelayHandler) Handle(c echo.Context) error {
	req := c.Request()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
	}

	action := resolveAction(req.URL.Query().Get("action"), body)
	c.Set(model.ActionContextKey, action)

	if err := h.service.Ready(); err != nil {
		return h.mapError(c, action, err)
	}

	switch action {
	case actionLogin:
		err = h.login(c)
	case actionProxy:
		err = h.proxy(c, body)
	case actionGetCredentials:
		err = h.getCredentials(c)
	default:
		h.record(action, "client_error")
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid action"})
	}
	if err != nil {
		return h.mapError(c, action, err)
	}
	h.record(action, "ok")
	return nil
}

// resolveAction reads the action from the query string, then from a JSON
// object body, defaulting to login. The result is lower-cased.
func resolveAction(query string, body []byte) string {
	action := query
	if action == "" && len(body) > 0 {
		var b struct {
			Action string `json:"action"`
		}
		if json.Unmarshal(body, &b) == nil {
			action = b.Action
		}
	}
	if action == "" {
		return actionLogin
	}
	return strings.ToLower(strings.TrimSpace(action))
}

func (h *RelayHandler) getCredentials(c echo.Context) error {
	creds, err := h.service.Credentials()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, creds)
}

func (h *RelayHandler) login(c echo.Context) error {
	res, err := h.service.Login(c.Request().Context())
	if err != nil {
		return err
	}
	for _, v := range res.Cookies {
		c.Response().Header().Add("Set-Cookie", v)
	}
	return c.JSON(res.StatusCode, res.Body)
}

func (h *RelayHandler) proxy(c echo.Context, body []byte) error {
	req := c.Request()
	q := req.URL.Query()

	method := q.Get("method")
	if method == "" {
		method = req.Method
	}

	resp, err := h.service.Proxy(req.Context(), &service.ProxyRequest{
		Path:          q.Get("path"),
		Method:        method,
		Authorization: req.Header.Get(echo.HeaderAuthorization),
		Body:          body,
	})
	if err != nil {
		return err
	}

	switch {
	case len(resp.Body) == 0:
		return c.NoContent(resp.StatusCode)
	case json.Valid(resp.Body):
		return c.JSONBlob(resp.StatusCode, resp.Body)
	default:
		ct := resp.Header.Get(echo.HeaderContentType)
		if ct == "" || strings.HasPrefix(ct, echo.MIMEApplicationJSON) {
			ct = echo.MIMETextPlainCharsetUTF8
		}
		// The CORS middleware presets application/json; Blob keeps an existing value.
		c.Response().Header().Set(echo.HeaderContentType, ct)
		return c.Blob(resp.StatusCode, ct, resp.Body)
	}
}

func (h *RelayHandler) mapError(c echo.Context, action string, err error) error {
	var ue *service.UpstreamError
	if errors.As(err, &ue) {
		h.logger.Info("upstream rejected request",
			"action", action,
			"status", ue.StatusCode,
		)
		h.record(action, "upstream_error")
		return c.JSON(ue.StatusCode, errorResponse{Error: "Authentication failed", Details: ue.Details})
	}

	status, resp := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("relay error",
			"action", action,
			"err", sanitizeError(err),
		)
		h.record(action, "error")
	} else {
		h.logger.Info("relay request rejected",
			"action", action,
			"reason", err.Error(),
		)
		h.record(action, "client_error")
	}
	return c.JSON(status, resp)
}

// classify maps a service error onto a status code and envelope.
func classify(err error) (int, errorResponse) {
	switch {
	case errors.Is(err, service.ErrMissingCredentials):
		return http.StatusInternalServerError, errorResponse{Error: "Server configuration error: Missing credentials"}
	case errors.Is(err, service.ErrActionDisabled):
		return http.StatusForbidden, errorResponse{Error: "Action disabled"}
	case errors.Is(err, service.ErrMissingPath):
		return http.StatusBadRequest, errorResponse{Error: "Missing path parameter"}
	case errors.Is(err, service.ErrInvalidPath):
		return http.StatusBadRequest, errorResponse{Error: "Invalid path parameter"}
	case errors.Is(err, service.ErrInvalidMethod):
		return http.StatusBadRequest, errorResponse{Error: "Invalid method parameter"}
	case errors.Is(err, service.ErrMissingAuthorization):
		return http.StatusUnauthorized, errorResponse{Error: "No authorization token provided"}
	case errors.Is(err, service.ErrInvalidUpstreamResponse):
		return http.StatusInternalServerError, errorResponse{Error: "Invalid API response"}
	case errors.Is(err, client.ErrBodyTooLarge):
		return http.StatusInternalServerError, errorResponse{Error: "Invalid API response", Message: "upstream response too large"}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusInternalServerError, errorResponse{Error: "Upstream request failed", Message: "upstream request timed out"}
	case errors.Is(err, context.Canceled):
		return http.StatusInternalServerError, errorResponse{Error: "Upstream request failed", Message: "request canceled"}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "Upstream request failed", Message: sanitizeError(err)}
	}
}

// ErrorHandler renders errors that escape a handler, such as those from echo's
// body limit and rate limiter, in the relay's JSON envelope.
func ErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		msg := http.StatusText(status)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			msg = http.StatusText(status)
			if m, ok := he.Message.(string); ok && m != "" {
				msg = m
			}
		} else {
			logger.Error("unhandled error",
				"path", c.Request().URL.Path,
				"err", sanitizeError(err),
			)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, errorResponse{Error: msg})
		}
		if werr != nil {
			logger.Error("write error response", "err", werr)
		}
	}
}

func (h *RelayHandler) record(action, outcome string) {
	if h.metrics == nil {
		return
	}
	h.metrics.ActionsTotal.WithLabelValues(metrics.NormalizeAction(action), outcome).Inc()
}

// sanitizeError redacts credential-looking query values from error messages
// that may contain upstream URLs.
func sanitizeError(err error) string {
	return secretQueryPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]")
}
