// Package presence tracks which connections are present in which room and
// coordinates joins and leaves across the registry, the room directory and
// the fan-out bridge.
package presence

import (
	"slices"
	"sync"
	"time"
)

// PresentUser is owned by the Registry; other components refer to it by
// connection id.
type PresentUser struct {
	ConnectionID string
	DisplayName  string
	Room         string
	JoinedAt     time.Time
}

// Registry maps live connections to present users. A connection is present in
// at most one room.
type Registry struct {
	mu    sync.RWMutex
	users map[string]PresentUser
	rooms map[string][]string
}

func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]PresentUser),
		rooms: make(map[string][]string),
	}
}

func (r *Registry) Register(connID, displayName, room string) (PresentUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[connID]; ok {
		return PresentUser{}, ErrAlreadyPresent
	}
	user := PresentUser{
		ConnectionID: connID,
		DisplayName:  displayName,
		Room:         room,
		JoinedAt:     time.Now().UTC(),
	}
	r.users[connID] = user
	r.rooms[room] = append(r.rooms[room], connID)
	return user, nil
}

func (r *Registry) Lookup(connID string) (PresentUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[connID]
	if !ok {
		return PresentUser{}, ErrNotPresent
	}
	return user, nil
}

// Unregister is not idempotent: a second call for the same id fails with
// ErrNotPresent.
func (r *Registry) Unregister(connID string) (PresentUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[connID]
	if !ok {
		return PresentUser{}, ErrNotPresent
	}
	delete(r.users, connID)

	members := slices.DeleteFunc(r.rooms[user.Room], func(id string) bool {
		return id == connID
	})
	if len(members) == 0 {
		delete(r.rooms, user.Room)
	} else {
		r.rooms[user.Room] = members
	}
	return user, nil
}

// ListByRoom returns the room's present users in join order.
func (r *Registry) ListByRoom(room string) []PresentUser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.rooms[room]
	users := make([]PresentUser, 0, len(ids))
	for _, id := range ids {
		users = append(users, r.users[id])
	}
	return users
}

// Rooms lists the rooms with at least one present user.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]string, 0, len(r.rooms))
	for room := range r.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
