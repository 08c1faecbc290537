package middleware

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/bnema/berth/internal/adapters/dto"
	"github.com/bnema/berth/internal/boundaries/out"
)

// limiterStore adapts out.RateLimiter to echo's RateLimiterStore.
type limiterStore struct {
	limiter out.RateLimiter
}

func (s limiterStore) Allow(identifier string) (bool, error) {
	return s.limiter.Allow(context.Background(), "ip:"+identifier), nil
}

// RateLimit rejects clients exceeding their request budget with 429.
// A nil limiter disables rate limiting.
func RateLimit(limiter out.RateLimiter) echo.MiddlewareFunc {
	if limiter == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: limiterStore{limiter: limiter},
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			c.Response().Header().Set("Retry-After", "1")
			return c.JSON(http.StatusTooManyRequests, dto.ErrorResponse{Error: "rate limit exceeded", Kind: "rate_limited"})
		},
		ErrorHandler: func(c echo.Context, _ error) error {
			return c.JSON(http.StatusForbidden, dto.ErrorResponse{Error: "cannot identify client", Kind: "forbidden"})
		},
	})
}
