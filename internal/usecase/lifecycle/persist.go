package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/bnema/zerowrap"

	"github.com/bnema/berth/internal/boundaries/out"
	"github.com/bnema/berth/internal/domain"
)

// Persister mirrors store changes into a RecordStore by following the event
// stream. The in-memory store stays authoritative; write failures are logged.
type Persister struct {
	service *Service
	records out.RecordStore
	sub     out.Subscription
	done    chan struct{}
	started atomic.Bool
}

// NewPersister subscribes to the service's events.
func NewPersister(service *Service, records out.RecordStore, buffer int) (*Persister, error) {
	sub, err := service.Subscribe(buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe persister: %w", err)
	}
	return &Persister{
		service: service,
		records: records,
		sub:     sub,
		done:    make(chan struct{}),
	}, nil
}

// Load restores persisted records into the service.
func (p *Persister) Load(ctx context.Context) (int, error) {
	log := zerowrap.FromCtx(ctx)

	records, err := p.records.LoadAll(ctx)
	if err != nil {
		return 0, log.WrapErr(err, "failed to load persisted records")
	}
	restored := p.service.Restore(ctx, records)
	log.Info().Int(zerowrap.FieldCount, restored).Msg("restored persisted records")
	return restored, nil
}

// Run consumes events until Stop is called or the subscription closes.
func (p *Persister) Run(ctx context.Context) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:     "usecase",
		zerowrap.FieldComponent: "persister",
	})

	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(p.done)
		for ev := range p.sub.Events() {
			p.handle(ctx, ev)
		}
	}()
}

// Stop closes the subscription and waits for pending writes.
func (p *Persister) Stop() {
	p.sub.Close()
	if p.started.Load() {
		<-p.done
	}
}

func (p *Persister) handle(ctx context.Context, ev domain.Event) {
	if ev.ContainerID == "" {
		return
	}
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldEntityID: ev.ContainerID,
		zerowrap.FieldEvent:    string(ev.Cause),
	})
	log := zerowrap.FromCtx(ctx)

	if ev.Cause == domain.CausePurged {
		if err := p.records.Delete(ctx, ev.ContainerID); err != nil {
			log.Warn().Err(err).Msg("failed to delete persisted record")
		}
		return
	}

	c, err := p.service.Lookup(ev.ContainerID)
	if errors.Is(err, domain.ErrNotFound) {
		// Purged before we got here; the purged event deletes it.
		return
	}
	if err != nil {
		log.Warn().Err(err).Msg("failed to read record for persistence")
		return
	}
	if err := p.records.Save(ctx, c); err != nil {
		log.Warn().Err(err).Msg("failed to persist record")
	}
}
