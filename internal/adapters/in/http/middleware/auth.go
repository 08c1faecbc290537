package middleware

import (
	"crypto/subtle"

	"github.com/bnema/zerowrap"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// TokenAuth requires "Authorization: Bearer <token>" on every request except
// the paths in public. An empty token disables the check.
func TokenAuth(token string, log zerowrap.Logger, public ...string) echo.MiddlewareFunc {
	if token == "" {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	return echomw.KeyAuthWithConfig(echomw.KeyAuthConfig{
		Skipper: func(c echo.Context) bool {
			for _, p := range public {
				if c.Path() == p {
					return true
				}
			}
			return false
		},
		Validator: func(key string, c echo.Context) (bool, error) {
			// Use constant-time comparison to prevent timing attacks
			ok := subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1
			if !ok {
				log.Warn().
					Str(zerowrap.FieldLayer, "adapter").
					Str(zerowrap.FieldAdapter, "http").
					Str(zerowrap.FieldMethod, c.Request().Method).
					Str(zerowrap.FieldPath, c.Request().URL.Path).
					Str("client_ip", c.RealIP()).
					Msg("rejected API token")
			}
			return ok, nil
		},
	})
}
