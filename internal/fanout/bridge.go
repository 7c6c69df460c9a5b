// Package fanout replicates room-scoped events between every server process
// sharing the same set of rooms.
package fanout

import (
	"context"
	"sync"
)

// Bridge is a named-channel publish/subscribe primitive. Publish delivers to
// every subscriber of the channel on every instance, the publisher's own
// included, in publish order per channel.
type Bridge interface {
	Publish(ctx context.Context, channel string, evt Event) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Close() error
}

// Subscription is a live stream of events starting at subscription time.
// Events is closed once Close has been called.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

type subscription struct {
	events  chan Event
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	once    sync.Once
	onClose func()
}

func newSubscription(buffer int, onClose func()) *subscription {
	return &subscription{
		events:  make(chan Event, buffer),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

func (s *subscription) Events() <-chan Event {
	return s.events
}

// deliver blocks until evt is queued, the subscription is closed or ctx ends.
func (s *subscription) deliver(ctx context.Context, evt Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.events <- evt:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		if s.onClose != nil {
			s.onClose()
		}
		s.mu.Lock()
		s.closed = true
		close(s.events)
		s.mu.Unlock()
	})
	return nil
}
