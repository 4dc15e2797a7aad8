package middleware

import (
	"fmt"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"auth-relay-go/internal/config"
)

// RelayChain returns the route middleware for the relay endpoint. CORS comes
// first so preflight is answered before any limit applies and every rejection
// from the rate and body limiters still carries CORS headers.
func RelayChain(cfg *config.Config) []echo.MiddlewareFunc {
	chain := []echo.MiddlewareFunc{CORS(cfg.CORS)}

	if cfg.Server.RateLimit.Enabled {
		store := echomw.NewRateLimiterMemoryStore(rate.Limit(cfg.Server.RateLimit.RequestsPerSecond))
		chain = append(chain, echomw.RateLimiter(store))
	}
	if cfg.Server.BodyMaxBytes > 0 {
		chain = append(chain, echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))
	}
	return chain
}
