package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/labstack/echo/v4"

	"github.com/bnema/berth/internal/adapters/dto"
	"github.com/bnema/berth/internal/domain"
)

// EventsConfig tunes the server-sent event stream.
type EventsConfig struct {
	Buffer    int           `mapstructure:"stream_buffer"`
	Heartbeat time.Duration `mapstructure:"heartbeat"`
}

func (c EventsConfig) withDefaults() EventsConfig {
	if c.Buffer <= 0 {
		c.Buffer = 64
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = 15 * time.Second
	}
	return c
}

// handleEvents streams status-change events as server-sent events until the
// client goes away or the bus shuts down. ?container=<id> narrows the stream.
func (h *Handler) handleEvents(c echo.Context) error {
	ctx := zerowrap.CtxWithFields(c.Request().Context(), map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "http",
		zerowrap.FieldHandler: "events",
	})
	log := zerowrap.FromCtx(ctx)

	sub, err := h.lifecycle.Subscribe(h.events.Buffer)
	if err != nil {
		return h.sendError(c, err)
	}
	defer sub.Close()

	only := c.QueryParam("container")

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	log.Debug().Str("container", only).Msg("event stream opened")
	defer log.Debug().Msg("event stream closed")

	heartbeat := time.NewTicker(h.events.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.streamsDone:
			return nil
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if only != "" && ev.ContainerID != only {
				continue
			}
			if err := writeEvent(w, ev); err != nil {
				log.Debug().Err(err).Msg("event stream write failed")
				return nil
			}
			w.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev domain.Event) error {
	data, err := json.Marshal(dto.EventFromDomain(ev))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Cause, data)
	return err
}
