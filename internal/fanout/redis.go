package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-redis/redis/v8"
)

type RedisOptions struct {
	// Prefix namespaces every Redis channel, e.g. "letstalk:".
	Prefix string
	Buffer int
	// LocalFallback delivers to this instance's subscribers when Redis
	// rejects a publish instead of failing the call.
	LocalFallback bool
	// OnDegraded is invoked for every publish served by the local fallback.
	OnDegraded func(channel string, err error)
}

// RedisBridge replicates events through Redis Pub/Sub. Redis preserves the
// order of messages published on one channel, and each instance publishes
// sequentially per room, which keeps per-room ordering across instances.
type RedisBridge struct {
	client *redis.Client
	opts   RedisOptions
	log    *slog.Logger

	mu     sync.Mutex
	subs   map[string]map[*subscription]struct{}
	closed bool
}

func NewRedisBridge(client *redis.Client, log *slog.Logger, opts RedisOptions) *RedisBridge {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	return &RedisBridge{
		client: client,
		opts:   opts,
		log:    log,
		subs:   make(map[string]map[*subscription]struct{}),
	}
}

func (b *RedisBridge) key(channel string) string {
	return b.opts.Prefix + channel
}

func (b *RedisBridge) Publish(ctx context.Context, channel string, evt Event) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrBridgeClosed
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	err = b.client.Publish(ctx, b.key(channel), payload).Err()
	if err == nil {
		return nil
	}
	if !b.opts.LocalFallback {
		return fmt.Errorf("%w: %v", ErrBridgeUnavailable, err)
	}

	b.log.Warn("Redis publish failed, delivering locally only", "channel", channel, "error", err)
	if b.opts.OnDegraded != nil {
		b.opts.OnDegraded(channel, err)
	}
	for _, sub := range b.localSubscribers(channel) {
		sub.deliver(ctx, evt)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription, so events
// published after Subscribe returns are guaranteed to be observed.
func (b *RedisBridge) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, ErrBridgeClosed
	}

	ps := b.client.Subscribe(ctx, b.key(channel))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: %v", ErrBridgeUnavailable, err)
	}

	var sub *subscription
	sub = newSubscription(b.opts.Buffer, func() {
		_ = ps.Close()
		b.remove(channel, sub)
	})
	b.add(channel, sub)

	go b.pump(channel, ps.Channel(), sub)
	return sub, nil
}

func (b *RedisBridge) pump(channel string, messages <-chan *redis.Message, sub *subscription) {
	for msg := range messages {
		var evt Event
		if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
			b.log.Warn("Dropping malformed bridge event", "channel", channel, "error", err)
			continue
		}
		if !sub.deliver(context.Background(), evt) {
			return
		}
	}
}

func (b *RedisBridge) add(channel string, sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[channel]; !ok {
		b.subs[channel] = make(map[*subscription]struct{})
	}
	b.subs[channel][sub] = struct{}{}
}

func (b *RedisBridge) remove(channel string, sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.subs[channel]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.subs, channel)
		}
	}
}

func (b *RedisBridge) localSubscribers(channel string) []*subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := make([]*subscription, 0, len(b.subs[channel]))
	for sub := range b.subs[channel] {
		subs = append(subs, sub)
	}
	return subs
}

// Close cancels every subscription. The Redis client belongs to the caller.
func (b *RedisBridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var subs []*subscription
	for _, set := range b.subs {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	return nil
}
