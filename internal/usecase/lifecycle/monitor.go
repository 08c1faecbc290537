package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bnema/zerowrap"

	"github.com/bnema/berth/internal/domain"
)

// Monitor runs periodic reconciliation and the tombstone sweep.
type Monitor struct {
	service   *Service
	stopCh    chan struct{}
	stopped   chan struct{}
	interval  time.Duration
	sweep     time.Duration
	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewMonitor creates a monitor using the service's configured intervals.
func NewMonitor(service *Service) *Monitor {
	return &Monitor{
		service:  service,
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
		interval: service.config.ReconcileInterval,
		sweep:    service.config.SweepInterval,
	}
}

// Start begins the background loop. A first reconciliation runs immediately.
func (m *Monitor) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.started.Store(true)
		log := zerowrap.FromCtx(ctx)
		log.Info().
			Dur("interval", m.interval).
			Dur("sweep_interval", m.sweep).
			Msg("lifecycle monitor started")

		go m.run(ctx)
	})
}

// Stop signals the monitor to stop and waits for the current pass to finish.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	if m.started.Load() {
		<-m.stopped
	}
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.stopped)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	sweeper := time.NewTicker(m.sweep)
	defer sweeper.Stop()

	m.reconcile(ctx)

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reconcile(ctx)
		case <-sweeper.C:
			m.service.Sweep(ctx)
		}
	}
}

func (m *Monitor) reconcile(ctx context.Context) {
	// Errors are already logged and published by Reconcile.
	_, _ = m.service.Reconcile(ctx)
}

// Sweep purges tombstones older than the retention window and emits a purged
// event for each. Purged ids stay reserved.
func (s *Service) Sweep(ctx context.Context) int {
	log := zerowrap.FromCtx(ctx)

	cutoff := s.now().Add(-s.config.TombstoneRetention)
	purged := s.store.Purge(cutoff)
	for _, c := range purged {
		s.emit(ctx, c, domain.StatusRemoved, domain.CausePurged, "")
	}

	if len(purged) > 0 {
		if s.metrics != nil {
			s.metrics.TombstonesPurged.Add(ctx, int64(len(purged)))
		}
		log.Debug().Int(zerowrap.FieldCount, len(purged)).Msg("tombstones purged")
	}
	return len(purged)
}
