package presence

import (
	"slices"
	"sync"
	"time"

	"github.com/thereayou/letstalk/internal/chat"
)

// rosterBook merges the partial rosters announced by every instance into the
// full roster of a room, ordered by join time. Ties are broken by instance
// id, and users of one instance always keep that instance's order.
type rosterBook struct {
	mu    sync.Mutex
	rooms map[string]*roomRoster
}

type roomRoster struct {
	parts  map[string]originRoster
	merged []string
}

type originRoster struct {
	members []chat.RosterEntry
	seen    time.Time
}

func newRosterBook() *rosterBook {
	return &rosterBook{rooms: make(map[string]*roomRoster)}
}

// update replaces origin's partial roster, heard at now, and returns the
// merged roster and whether it differs from the previous one. An empty
// partial removes the origin.
func (b *rosterBook) update(room, origin string, members []chat.RosterEntry, now time.Time) ([]string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rr, ok := b.rooms[room]
	if !ok {
		rr = &roomRoster{parts: make(map[string]originRoster)}
		b.rooms[room] = rr
	}

	if len(members) == 0 {
		delete(rr.parts, origin)
	} else {
		rr.parts[origin] = originRoster{members: slices.Clone(members), seen: now}
	}
	return rr.remerge(!ok)
}

func (rr *roomRoster) remerge(fresh bool) ([]string, bool) {
	merged := merge(rr.parts)
	changed := fresh || !slices.Equal(merged, rr.merged)
	rr.merged = merged
	return slices.Clone(merged), changed
}

// expire forgets the partials not heard from since now-ttl, except keep's,
// and returns the new merged roster of every room that changed.
func (b *rosterBook) expire(now time.Time, ttl time.Duration, keep string) map[string][]string {
	b.mu.Lock()
	defer b.mu.Unlock()

	changed := make(map[string][]string)
	for room, rr := range b.rooms {
		for origin, part := range rr.parts {
			if origin != keep && now.Sub(part.seen) > ttl {
				delete(rr.parts, origin)
			}
		}
		if merged, ok := rr.remerge(false); ok {
			changed[room] = merged
		}
	}
	return changed
}

func (b *rosterBook) drop(room string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.rooms, room)
}

// merge interleaves the partials, each already in join order, by taking the
// earliest head each time.
func merge(parts map[string]originRoster) []string {
	origins := make([]string, 0, len(parts))
	total := 0
	for origin, part := range parts {
		origins = append(origins, origin)
		total += len(part.members)
	}
	slices.Sort(origins)

	next := make([]int, len(origins))
	merged := make([]string, 0, total)
	for len(merged) < total {
		best := -1
		var bestAt time.Time
		for i, origin := range origins {
			members := parts[origin].members
			if next[i] == len(members) {
				continue
			}
			at := members[next[i]].JoinedAt
			if best == -1 || at.Before(bestAt) {
				best, bestAt = i, at
			}
		}
		merged = append(merged, parts[origins[best]].members[next[best]].Name)
		next[best]++
	}
	return merged
}
