package out

import (
	"github.com/bnema/berth/internal/domain"
)

// EventPublisher defines the contract for publishing status-change events.
// Publish must not block longer than a bounded enqueue.
type EventPublisher interface {
	Publish(event domain.Event) error
}

// Subscription is a live stream of events.
type Subscription interface {
	Events() <-chan domain.Event
	Close()
}

// EventSubscriber defines the contract for subscribing to events.
type EventSubscriber interface {
	Subscribe(buffer int) (Subscription, error)
}

// EventBus combines publishing and subscribing capabilities with lifecycle management.
type EventBus interface {
	EventPublisher
	EventSubscriber
	Start() error
	Stop() error
}
