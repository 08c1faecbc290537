// Package journal appends status-change events to a size-rotated JSON-lines file.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/bnema/zerowrap"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bnema/berth/internal/adapters/dto"
	"github.com/bnema/berth/internal/boundaries/out"
	"github.com/bnema/berth/internal/domain"
	"github.com/bnema/berth/internal/logging"
)

// Journal writes one JSON object per event.
type Journal struct {
	path string
	mu   sync.Mutex
	sink *lumberjack.Logger
	enc  *json.Encoder
	done chan struct{}
}

// Open creates the journal directory if needed and opens the sink.
func Open(cfg logging.FileConfig) (*Journal, error) {
	sink, err := logging.RotatingFile(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open event journal: %w", err)
	}
	return &Journal{
		path: cfg.Path,
		sink: sink,
		enc:  json.NewEncoder(sink),
		done: make(chan struct{}),
	}, nil
}

// Path returns the active journal file.
func (j *Journal) Path() string {
	return j.path
}

// Record appends event.
func (j *Journal) Record(event domain.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(dto.EventFromDomain(event))
}

// Follow records every event from sub until its channel closes. Done is
// closed once the last event is written.
func (j *Journal) Follow(ctx context.Context, sub out.Subscription) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "journal",
		zerowrap.FieldPath:    j.path,
	})
	log := zerowrap.FromCtx(ctx)

	go func() {
		defer close(j.done)
		for event := range sub.Events() {
			if err := j.Record(event); err != nil {
				log.Warn().Err(err).
					Str(zerowrap.FieldEntityID, event.ContainerID).
					Str(zerowrap.FieldEvent, string(event.Cause)).
					Msg("failed to journal event")
			}
		}
		log.Debug().Msg("event journal stopped")
	}()
}

// Done is closed when Follow has written its last event.
func (j *Journal) Done() <-chan struct{} {
	return j.done
}

// Close flushes and closes the file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sink.Close()
}
