package middleware

import (
	"net"
	"net/http"

	"github.com/bnema/zerowrap"
	"github.com/labstack/echo/v4"

	"github.com/bnema/berth/internal/adapters/dto"
)

// localhostNets contains IPv4 and IPv6 loopback ranges that are always allowed.
var localhostNets = ParseTrustedProxies([]string{"127.0.0.0/8", "::1"})

// CIDRAllowlist restricts access to the given ranges. Localhost is always
// allowed so the CLI on the same host keeps working. An empty list is a no-op.
func CIDRAllowlist(allowedNets []*net.IPNet, log zerowrap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if len(allowedNets) == 0 {
			return next
		}
		return func(c echo.Context) error {
			clientIP := c.RealIP()
			if ContainsIP(clientIP, localhostNets) || ContainsIP(clientIP, allowedNets) {
				return next(c)
			}

			log.Warn().
				Str(zerowrap.FieldLayer, "adapter").
				Str(zerowrap.FieldAdapter, "http").
				Str(zerowrap.FieldMethod, c.Request().Method).
				Str(zerowrap.FieldPath, c.Request().URL.Path).
				Str("client_ip", clientIP).
				Msg("API access denied by CIDR allowlist")

			return c.JSON(http.StatusForbidden, dto.ErrorResponse{Error: "Forbidden", Kind: "forbidden"})
		}
	}
}
