// Package middleware provides echo middleware for the API adapter.
package middleware

import (
	"net/http"
	"strings"

	"github.com/bnema/zerowrap"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/bnema/berth/internal/adapters/dto"
)

// RequestLogger logs every request and attaches the logger to the request
// context for downstream handlers. Event streams are logged when they close.
func RequestLogger(log zerowrap.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		BeforeNextFunc: func(c echo.Context) {
			ctx := zerowrap.WithCtx(c.Request().Context(), log)
			c.SetRequest(c.Request().WithContext(ctx))
		},
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			ev := log.Info()
			if v.Status >= http.StatusInternalServerError {
				ev = log.Warn()
			}
			if strings.HasSuffix(v.URI, "/healthz") && v.Status == http.StatusOK {
				ev = log.Debug()
			}
			ev.
				Str(zerowrap.FieldLayer, "adapter").
				Str(zerowrap.FieldAdapter, "http").
				Str("request_id", v.RequestID).
				Str(zerowrap.FieldMethod, v.Method).
				Str(zerowrap.FieldPath, v.URI).
				Str("client_ip", v.RemoteIP).
				Int(zerowrap.FieldStatus, v.Status).
				Dur(zerowrap.FieldDuration, v.Latency).
				Msg("HTTP request")
			return nil
		},
	})
}

// PanicRecovery recovers from panics, logs them and answers with a JSON 500.
func PanicRecovery(log zerowrap.Logger) echo.MiddlewareFunc {
	return echomw.RecoverWithConfig(echomw.RecoverConfig{
		DisableErrorHandler: true,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Error().
				Str(zerowrap.FieldLayer, "adapter").
				Str(zerowrap.FieldAdapter, "http").
				Err(err).
				Str(zerowrap.FieldMethod, c.Request().Method).
				Str(zerowrap.FieldPath, c.Request().URL.Path).
				Bytes("stack", stack).
				Msg("panic recovered")
			return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Internal Server Error", Kind: "internal"})
		},
	})
}
