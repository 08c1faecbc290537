package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bnema/zerowrap"

	"github.com/bnema/berth/internal/adapters/out/simulated"
	"github.com/bnema/berth/internal/boundaries/out"
	"github.com/bnema/berth/internal/domain"
)

func testCtx() context.Context {
	return zerowrap.WithCtx(context.Background(), zerowrap.New(zerowrap.Config{Level: "fatal"}))
}

func testConfig() Config {
	return Config{
		OperationTimeout:     2 * time.Second,
		ReconcileInterval:    time.Hour,
		ReconcileConcurrency: 4,
		DriftGrace:           0,
		TombstoneRetention:   10 * time.Minute,
		SweepInterval:        time.Hour,
		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
		},
	}
}

// recorder is an EventBus that keeps every published event and forwards it
// to subscribers without blocking.
type recorder struct {
	mu     sync.Mutex
	events []domain.Event
	subs   []*recSub
}

type recSub struct {
	r      *recorder
	ch     chan domain.Event
	closed bool
}

func (s *recSub) Events() <-chan domain.Event { return s.ch }

func (s *recSub) Close() {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

var _ out.EventBus = (*recorder)(nil)

func (r *recorder) Publish(ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	for _, s := range r.subs {
		if s.closed {
			continue
		}
		select {
		case s.ch <- ev:
		default:
		}
	}
	return nil
}

func (r *recorder) Subscribe(buffer int) (out.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if buffer <= 0 {
		buffer = 16
	}
	s := &recSub{r: r, ch: make(chan domain.Event, buffer)}
	r.subs = append(r.subs, s)
	return s, nil
}

func (r *recorder) Start() error { return nil }
func (r *recorder) Stop() error  { return nil }

func (r *recorder) all() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

func (r *recorder) byCause(cause domain.EventCause) []domain.Event {
	var matched []domain.Event
	for _, ev := range r.all() {
		if ev.Cause == cause {
			matched = append(matched, ev)
		}
	}
	return matched
}

func (r *recorder) forContainer(id string) []domain.Event {
	var matched []domain.Event
	for _, ev := range r.all() {
		if ev.ContainerID == id {
			matched = append(matched, ev)
		}
	}
	return matched
}

func newTestService(t *testing.T, opts ...simulated.Option) (*Service, *simulated.Driver, *recorder) {
	t.Helper()
	drv := simulated.NewDriver(opts...)
	bus := &recorder{}
	return NewService(drv, bus, testConfig()), drv, bus
}

func mustCreate(t *testing.T, svc *Service, name, image string, ports ...domain.PortMapping) domain.Container {
	t.Helper()
	c, err := svc.Create(testCtx(), domain.ContainerSpec{Name: name, Image: image, Ports: ports})
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return c
}

func collect(svc *Service, filter domain.Filter) []domain.Container {
	var all []domain.Container
	for c := range svc.List(testCtx(), filter) {
		all = append(all, c)
	}
	return all
}
