package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/bnema/berth/internal/adapters/in/http/middleware"
	"github.com/bnema/berth/internal/boundaries/out"
)

// maxRequestSize is the maximum allowed size for API request bodies.
const maxRequestSize = "1M"

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	Token          string        `mapstructure:"token"`
	TrustedProxies []string      `mapstructure:"trusted_proxies"`
	AllowedCIDRs   []string      `mapstructure:"allowed_cidrs"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	Events         EventsConfig  `mapstructure:"events"`
}

// Server owns the echo instance serving the API.
type Server struct {
	echo    *echo.Echo
	handler *Handler
	config  ServerConfig
	log     zerowrap.Logger
}

// NewServer builds the echo instance with the middleware chain and routes.
// limiter may be nil to disable rate limiting.
func NewServer(config ServerConfig, handler *Handler, limiter out.RateLimiter, log zerowrap.Logger) *Server {
	if config.Addr == "" {
		config.Addr = "127.0.0.1:7420"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler
	e.IPExtractor = middleware.IPExtractor(middleware.ParseTrustedProxies(config.TrustedProxies))
	e.Server.ReadHeaderTimeout = 10 * time.Second
	if config.ReadTimeout > 0 {
		e.Server.ReadTimeout = config.ReadTimeout
	}

	e.Use(
		middleware.PanicRecovery(log),
		echomw.RequestID(),
		middleware.RequestLogger(log),
		middleware.SecurityHeaders,
		middleware.CIDRAllowlist(middleware.ParseTrustedProxies(config.AllowedCIDRs), log),
		middleware.RateLimit(limiter),
		echomw.BodyLimit(maxRequestSize),
		middleware.TokenAuth(config.Token, log, "/healthz", "/version"),
	)
	handler.RegisterRoutes(e)

	return &Server{echo: e, handler: handler, config: config, log: log}
}

// Handler exposes the HTTP handler (for tests and embedding).
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens until Shutdown is called. It returns nil on a clean shutdown.
func (s *Server) Start() error {
	s.log.Info().
		Str(zerowrap.FieldLayer, "adapter").
		Str(zerowrap.FieldAdapter, "http").
		Str("addr", s.config.Addr).
		Bool("auth", s.config.Token != "").
		Msg("API server listening")

	if err := s.echo.Start(s.config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown ends open event streams, stops accepting connections and waits
// for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.handler.CloseStreams()
	return s.echo.Shutdown(ctx)
}
