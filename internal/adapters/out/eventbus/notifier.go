// Package eventbus implements the event bus adapter.
package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/zerowrap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/bnema/berth/internal/adapters/out/telemetry"
	"github.com/bnema/berth/internal/boundaries/out"
	"github.com/bnema/berth/internal/domain"
)

const (
	defaultBufferSize       = 256
	defaultEnqueueTimeout   = 100 * time.Millisecond
	defaultSubscriberBuffer = 64
)

// Config holds notifier sizing.
type Config struct {
	BufferSize       int           `mapstructure:"buffer_size"`
	EnqueueTimeout   time.Duration `mapstructure:"enqueue_timeout"`
	SubscriberBuffer int           `mapstructure:"subscriber_buffer"`
}

// Notifier fans events out to subscribers. Publish only waits for room in the
// shared queue, up to EnqueueTimeout; a subscriber whose buffer is full misses
// the event instead of slowing everybody down.
type Notifier struct {
	eventChan chan domain.Event
	done      chan struct{}
	mu        sync.RWMutex
	subs      map[uint64]*subscription
	nextSubID uint64
	ctx       context.Context
	cancel    context.CancelFunc
	config    Config
	log       zerowrap.Logger
	metrics   *telemetry.Metrics
	startOnce sync.Once
	stopOnce  sync.Once
}

var _ out.EventBus = (*Notifier)(nil)

// NewNotifier creates a new in-memory notifier.
func NewNotifier(config Config, log zerowrap.Logger) *Notifier {
	if config.BufferSize <= 0 {
		config.BufferSize = defaultBufferSize
	}
	if config.EnqueueTimeout <= 0 {
		config.EnqueueTimeout = defaultEnqueueTimeout
	}
	if config.SubscriberBuffer <= 0 {
		config.SubscriberBuffer = defaultSubscriberBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Notifier{
		eventChan: make(chan domain.Event, config.BufferSize),
		done:      make(chan struct{}),
		subs:      make(map[uint64]*subscription),
		ctx:       ctx,
		cancel:    cancel,
		config:    config,
		log:       log,
	}
}

// SetMetrics sets the telemetry metrics for the notifier.
// Must be called before Start() to avoid data races on metrics reads.
func (n *Notifier) SetMetrics(m *telemetry.Metrics) {
	n.mu.Lock()
	n.metrics = m
	n.mu.Unlock()
}

// Publish enqueues an event for delivery.
func (n *Notifier) Publish(event domain.Event) error {
	if n.ctx.Err() != nil {
		return fmt.Errorf("event bus is stopped")
	}

	timer := time.NewTimer(n.config.EnqueueTimeout)
	defer timer.Stop()

	select {
	case n.eventChan <- event:
		n.log.Debug().
			Str(zerowrap.FieldLayer, "adapter").
			Str(zerowrap.FieldAdapter, "eventbus").
			Str("event_id", event.ID).
			Str(zerowrap.FieldEvent, string(event.Cause)).
			Str(zerowrap.FieldEntityID, event.ContainerID).
			Str(zerowrap.FieldStatus, string(event.Current)).
			Msg("event published")
		if n.metrics != nil {
			n.metrics.EventsPublished.Add(context.Background(), 1, metric.WithAttributes(
				attribute.String("cause", string(event.Cause)),
			))
		}
		return nil
	case <-n.ctx.Done():
		return fmt.Errorf("event bus is stopped")
	case <-timer.C:
		n.log.Error().
			Str(zerowrap.FieldLayer, "adapter").
			Str(zerowrap.FieldAdapter, "eventbus").
			Str("event_id", event.ID).
			Str(zerowrap.FieldEvent, string(event.Cause)).
			Str(zerowrap.FieldEntityID, event.ContainerID).
			Dur("timeout", n.config.EnqueueTimeout).
			Msg("event queue is full, dropping event")
		n.recordDrop(event, "queue_full")
		return fmt.Errorf("event queue is full, dropping event %s", event.ID)
	}
}

// Subscribe registers a new subscriber. buffer <= 0 uses the configured default.
func (n *Notifier) Subscribe(buffer int) (out.Subscription, error) {
	if buffer <= 0 {
		buffer = n.config.SubscriberBuffer
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.ctx.Err() != nil {
		return nil, fmt.Errorf("event bus is stopped")
	}

	n.nextSubID++
	sub := &subscription{
		id:       n.nextSubID,
		notifier: n,
		ch:       make(chan domain.Event, buffer),
	}
	n.subs[sub.id] = sub

	n.log.Debug().
		Str(zerowrap.FieldLayer, "adapter").
		Str(zerowrap.FieldAdapter, "eventbus").
		Uint64("subscriber_id", sub.id).
		Int("buffer", buffer).
		Int("total_subscribers", len(n.subs)).
		Msg("subscriber added")
	return sub, nil
}

// Subscribers returns the current subscriber count.
func (n *Notifier) Subscribers() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

// Start starts the delivery loop.
func (n *Notifier) Start() error {
	n.startOnce.Do(func() {
		n.log.Info().
			Str(zerowrap.FieldLayer, "adapter").
			Str(zerowrap.FieldAdapter, "eventbus").
			Int("buffer_size", n.config.BufferSize).
			Dur("enqueue_timeout", n.config.EnqueueTimeout).
			Msg("starting event bus")

		go n.processEvents()
	})
	return nil
}

// Stop delivers what is already queued, then closes every subscription.
func (n *Notifier) Stop() error {
	var err error
	n.stopOnce.Do(func() {
		n.log.Info().
			Str(zerowrap.FieldLayer, "adapter").
			Str(zerowrap.FieldAdapter, "eventbus").
			Msg("stopping event bus")

		n.cancel()

		started := true
		n.startOnce.Do(func() {
			started = false
			close(n.done)
		})

		if started {
			select {
			case <-n.done:
			case <-time.After(5 * time.Second):
				n.log.Warn().
					Str(zerowrap.FieldLayer, "adapter").
					Str(zerowrap.FieldAdapter, "eventbus").
					Msg("event bus stop timeout")
				err = fmt.Errorf("timeout waiting for event bus to stop")
			}
		}

		n.mu.Lock()
		for id, sub := range n.subs {
			delete(n.subs, id)
			sub.closeChannel()
		}
		n.mu.Unlock()

		n.log.Info().
			Str(zerowrap.FieldLayer, "adapter").
			Str(zerowrap.FieldAdapter, "eventbus").
			Msg("event bus stopped")
	})
	return err
}

func (n *Notifier) processEvents() {
	defer close(n.done)

	for {
		select {
		case event := <-n.eventChan:
			n.deliver(event)
		case <-n.ctx.Done():
			n.drain()
			n.log.Debug().
				Str(zerowrap.FieldLayer, "adapter").
				Str(zerowrap.FieldAdapter, "eventbus").
				Msg("event bus processing stopped")
			return
		}
	}
}

func (n *Notifier) drain() {
	for {
		select {
		case event := <-n.eventChan:
			n.deliver(event)
		default:
			return
		}
	}
}

// deliver sends event to every subscriber without blocking. The read lock is
// held across the sends so a concurrent Close cannot close a channel under us.
func (n *Notifier) deliver(event domain.Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, sub := range n.subs {
		select {
		case sub.ch <- event:
		default:
			sub.dropped.Add(1)
			n.log.Warn().
				Str(zerowrap.FieldLayer, "adapter").
				Str(zerowrap.FieldAdapter, "eventbus").
				Uint64("subscriber_id", sub.id).
				Str("event_id", event.ID).
				Str(zerowrap.FieldEvent, string(event.Cause)).
				Msg("subscriber buffer full, event dropped")
			n.recordDrop(event, "subscriber_full")
		}
	}
}

func (n *Notifier) recordDrop(event domain.Event, reason string) {
	if n.metrics == nil {
		return
	}
	n.metrics.EventsDropped.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("cause", string(event.Cause)),
		attribute.String("reason", reason),
	))
}

func (n *Notifier) unsubscribe(sub *subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.subs[sub.id]; !ok {
		return
	}
	delete(n.subs, sub.id)
	sub.closeChannel()

	n.log.Debug().
		Str(zerowrap.FieldLayer, "adapter").
		Str(zerowrap.FieldAdapter, "eventbus").
		Uint64("subscriber_id", sub.id).
		Int("total_subscribers", len(n.subs)).
		Msg("subscriber removed")
}
