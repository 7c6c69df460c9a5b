package fanout

import (
	"context"
	"log/slog"
	"sync"
)

// Handler consumes the events of a room this instance is subscribed to.
// Events of one room are handed over sequentially, in bridge order.
type Handler interface {
	HandleEvent(room string, evt Event)
}

// Router keeps one bridge subscription per room that still has local members.
// Rooms are reference counted: the first Acquire subscribes, the last Release
// cancels the subscription.
type Router struct {
	bridge  Bridge
	handler Handler
	log     *slog.Logger

	mu     sync.Mutex
	routes map[string]*route
}

type route struct {
	refs int
	sub  Subscription
}

func NewRouter(log *slog.Logger, bridge Bridge, handler Handler) *Router {
	return &Router{
		bridge:  bridge,
		handler: handler,
		log:     log,
		routes:  make(map[string]*route),
	}
}

// Acquire takes a reference on room. first reports whether this call opened
// the subscription.
func (r *Router) Acquire(ctx context.Context, room string) (first bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rt, ok := r.routes[room]; ok {
		rt.refs++
		return false, nil
	}

	sub, err := r.bridge.Subscribe(ctx, RoomChannel(room))
	if err != nil {
		return false, err
	}
	rt := &route{refs: 1, sub: sub}
	r.routes[room] = rt
	go r.pump(room, rt)

	r.log.Debug("Subscribed to room", "room", room)
	return true, nil
}

// Release drops a reference taken by Acquire.
func (r *Router) Release(room string) {
	r.mu.Lock()
	rt, ok := r.routes[room]
	if !ok {
		r.mu.Unlock()
		return
	}
	rt.refs--
	if rt.refs > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.routes, room)
	r.mu.Unlock()

	_ = rt.sub.Close()
	r.log.Debug("Unsubscribed from room", "room", room)
}

// Active reports whether this instance currently follows room.
func (r *Router) Active(room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.routes[room]
	return ok
}

func (r *Router) current(room string, rt *route) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.routes[room] == rt
}

func (r *Router) pump(room string, rt *route) {
	for evt := range rt.sub.Events() {
		// A released route may still drain buffered events; they belong to
		// members that are gone.
		if !r.current(room, rt) {
			continue
		}
		r.handler.HandleEvent(room, evt)
	}
}

// Close cancels all subscriptions.
func (r *Router) Close() {
	r.mu.Lock()
	routes := r.routes
	r.routes = make(map[string]*route)
	r.mu.Unlock()

	for _, rt := range routes {
		_ = rt.sub.Close()
	}
}
