// Package api implements the HTTP adapter for the container lifecycle API.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/bnema/zerowrap"
	"github.com/labstack/echo/v4"

	"github.com/bnema/berth/internal/adapters/dto"
	"github.com/bnema/berth/internal/boundaries/in"
	"github.com/bnema/berth/internal/domain"
)

// Handler implements the HTTP handlers of the API.
type Handler struct {
	lifecycle in.LifecycleService
	health    in.HealthService
	events    EventsConfig
	version   dto.VersionResponse

	streamsDone chan struct{}
	closeOnce   sync.Once
}

// NewHandler creates a new API handler.
func NewHandler(
	lifecycle in.LifecycleService,
	health in.HealthService,
	events EventsConfig,
	version dto.VersionResponse,
) *Handler {
	return &Handler{
		lifecycle:   lifecycle,
		health:      health,
		events:      events.withDefaults(),
		version:     version,
		streamsDone: make(chan struct{}),
	}
}

// CloseStreams ends every open event stream.
func (h *Handler) CloseStreams() {
	h.closeOnce.Do(func() { close(h.streamsDone) })
}

// RegisterRoutes registers the API routes on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.handleHealth)
	e.GET("/version", h.handleVersion)

	v1 := e.Group("/api/v1")
	v1.POST("/containers", h.handleCreate)
	v1.GET("/containers", h.handleList)
	v1.GET("/containers/:id", h.handleGet)
	v1.POST("/containers/:id/start", h.handleIntent(domain.ActionStart))
	v1.POST("/containers/:id/stop", h.handleIntent(domain.ActionStop))
	v1.POST("/containers/:id/pause", h.handleIntent(domain.ActionPause))
	v1.POST("/containers/:id/resume", h.handleIntent(domain.ActionResume))
	v1.DELETE("/containers/:id", h.handleRemove)
	v1.POST("/reconcile", h.handleReconcile)
	v1.GET("/events", h.handleEvents)
}

func (h *Handler) handleCreate(c echo.Context) error {
	var req dto.CreateContainerRequest
	if err := c.Bind(&req); err != nil {
		return h.sendError(c, fmt.Errorf("%w: malformed request body", domain.ErrValidation))
	}

	spec, err := req.Spec()
	if err != nil {
		return h.sendError(c, err)
	}

	created, err := h.lifecycle.Create(c.Request().Context(), spec)
	if err != nil {
		return h.sendError(c, err)
	}
	return c.JSON(http.StatusCreated, dto.ContainerFromDomain(created))
}

func (h *Handler) handleList(c echo.Context) error {
	filter, err := parseFilter(c)
	if err != nil {
		return h.sendError(c, err)
	}

	resp := dto.ContainersResponse{Containers: []dto.Container{}}
	for ctr := range h.lifecycle.List(c.Request().Context(), filter) {
		resp.Containers = append(resp.Containers, dto.ContainerFromDomain(ctr))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) handleGet(c echo.Context) error {
	ctr, err := h.lifecycle.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.sendError(c, err)
	}
	return c.JSON(http.StatusOK, dto.ContainerFromDomain(ctr))
}

func (h *Handler) handleIntent(action domain.Action) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		id := c.Param("id")

		var (
			ctr domain.Container
			err error
		)
		switch action {
		case domain.ActionStart:
			ctr, err = h.lifecycle.Start(ctx, id)
		case domain.ActionStop:
			ctr, err = h.lifecycle.Stop(ctx, id)
		case domain.ActionPause:
			ctr, err = h.lifecycle.Pause(ctx, id)
		case domain.ActionResume:
			ctr, err = h.lifecycle.Resume(ctx, id)
		}
		if err != nil {
			return h.sendError(c, err)
		}
		return c.JSON(http.StatusOK, dto.ContainerFromDomain(ctr))
	}
}

func (h *Handler) handleRemove(c echo.Context) error {
	force := c.QueryParam("force") == "true" || c.QueryParam("force") == "1"

	ctr, err := h.lifecycle.Remove(c.Request().Context(), c.Param("id"), force)
	if err != nil {
		return h.sendError(c, err)
	}
	return c.JSON(http.StatusOK, dto.ContainerFromDomain(ctr))
}

func (h *Handler) handleReconcile(c echo.Context) error {
	report, err := h.lifecycle.Reconcile(c.Request().Context())
	if err != nil {
		return h.sendError(c, err)
	}
	return c.JSON(http.StatusOK, dto.ReconcileResponse{
		Observed:  report.Observed,
		Corrected: report.Corrected,
		Adopted:   report.Adopted,
		Pending:   report.Pending,
		Errors:    report.Errors,
	})
}

func (h *Handler) handleHealth(c echo.Context) error {
	if err := h.health.CheckRuntime(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, dto.HealthResponse{
			Status:  "degraded",
			Runtime: "unreachable",
			Error:   err.Error(),
		})
	}
	return c.JSON(http.StatusOK, dto.HealthResponse{Status: "ok", Runtime: "reachable"})
}

func (h *Handler) handleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, h.version)
}

// parseFilter reads ?status=running,paused&name=<prefix>&all=true.
func parseFilter(c echo.Context) (domain.Filter, error) {
	var filter domain.Filter

	for _, raw := range c.QueryParams()["status"] {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			s, err := domain.ParseStatus(part)
			if err != nil {
				return domain.Filter{}, err
			}
			if !slices.Contains(filter.Statuses, s) {
				filter.Statuses = append(filter.Statuses, s)
			}
		}
	}
	filter.NamePrefix = c.QueryParam("name")
	filter.IncludeRemoved = c.QueryParam("all") == "true"
	return filter, nil
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(kind string) int {
	switch kind {
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "conflict", "invalid_transition":
		return http.StatusConflict
	case "timeout":
		return http.StatusGatewayTimeout
	case "runtime":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// sendError sends an error response.
func (h *Handler) sendError(c echo.Context, err error) error {
	kind := domain.ErrorKind(err)
	status := statusFor(kind)

	if status >= http.StatusInternalServerError {
		log := zerowrap.FromCtx(c.Request().Context())
		log.Warn().
			Str(zerowrap.FieldLayer, "adapter").
			Str(zerowrap.FieldAdapter, "http").
			Str(zerowrap.FieldPath, c.Path()).
			Str("kind", kind).
			Err(err).
			Msg("request failed")
	}
	return c.JSON(status, dto.ErrorResponse{Error: err.Error(), Kind: kind})
}

// ErrorHandler renders echo's own errors (unknown routes, bad methods,
// middleware rejections) in the API's JSON shape.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	msg := http.StatusText(status)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(status)
		}
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, dto.ErrorResponse{Error: msg})
}
