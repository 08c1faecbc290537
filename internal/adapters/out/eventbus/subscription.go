package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/bnema/berth/internal/domain"
)

type subscription struct {
	id       uint64
	notifier *Notifier
	ch       chan domain.Event
	dropped  atomic.Uint64
	once     sync.Once
}

// Events returns the delivery channel. It is closed by Close or when the
// notifier stops.
func (s *subscription) Events() <-chan domain.Event {
	return s.ch
}

// Close unsubscribes. Safe to call more than once.
func (s *subscription) Close() {
	s.notifier.unsubscribe(s)
}

// Dropped returns how many events this subscriber missed.
func (s *subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// closeChannel must be called with the notifier write lock held.
func (s *subscription) closeChannel() {
	s.once.Do(func() {
		close(s.ch)
	})
}
