package fanout

import (
	"context"
	"sync"
)

const DefaultBuffer = 256

// LocalBridge is an in-process Bridge. It serves single-instance deployments
// and is the reference implementation used by tests.
type LocalBridge struct {
	mu       sync.Mutex
	channels map[string]*localChannel
	buffer   int
	closed   bool
}

type localChannel struct {
	mu   sync.Mutex
	subs map[*subscription]struct{}
}

func NewLocalBridge(buffer int) *LocalBridge {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &LocalBridge{
		channels: make(map[string]*localChannel),
		buffer:   buffer,
	}
}

func (b *LocalBridge) channel(name string) (*localChannel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBridgeClosed
	}
	ch, ok := b.channels[name]
	if !ok {
		ch = &localChannel{subs: make(map[*subscription]struct{})}
		b.channels[name] = ch
	}
	return ch, nil
}

// Publish holds the channel lock for the whole delivery so that concurrent
// publishers on one channel are observed in the same order by every subscriber.
func (b *LocalBridge) Publish(ctx context.Context, channel string, evt Event) error {
	ch, err := b.channel(channel)
	if err != nil {
		return err
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	for sub := range ch.subs {
		sub.deliver(ctx, evt)
	}
	return nil
}

func (b *LocalBridge) Subscribe(_ context.Context, channel string) (Subscription, error) {
	ch, err := b.channel(channel)
	if err != nil {
		return nil, err
	}

	var sub *subscription
	sub = newSubscription(b.buffer, func() {
		ch.mu.Lock()
		delete(ch.subs, sub)
		ch.mu.Unlock()
	})

	ch.mu.Lock()
	ch.subs[sub] = struct{}{}
	ch.mu.Unlock()
	return sub, nil
}

// Close cancels every live subscription.
func (b *LocalBridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	channels := b.channels
	b.channels = make(map[string]*localChannel)
	b.mu.Unlock()

	for _, ch := range channels {
		ch.mu.Lock()
		subs := make([]*subscription, 0, len(ch.subs))
		for sub := range ch.subs {
			subs = append(subs, sub)
		}
		ch.mu.Unlock()
		for _, sub := range subs {
			_ = sub.Close()
		}
	}
	return nil
}
