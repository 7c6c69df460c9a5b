package rooms

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/thereayou/letstalk/internal/fanout"
)

// TypeRoomCreated announces a room on fanout.DirectoryChannel.
const TypeRoomCreated fanout.EventType = "roomCreated"

const (
	announceQueueSize = 256
	announceTimeout   = 5 * time.Second
)

type announcement struct {
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CreatorID string    `json:"creatorId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Replicator keeps the directories of several instances in step: rooms
// created here are announced on the bridge, rooms announced elsewhere are
// imported here.
type Replicator struct {
	instanceID string
	directory  *Directory
	bridge     fanout.Bridge
	log        *slog.Logger

	mu      sync.RWMutex
	sub     fanout.Subscription
	pending chan Record
	stopped bool
	wg      sync.WaitGroup
}

func NewReplicator(log *slog.Logger, instanceID string, directory *Directory, bridge fanout.Bridge) *Replicator {
	return &Replicator{
		instanceID: instanceID,
		directory:  directory,
		bridge:     bridge,
		log:        log,
		pending:    make(chan Record, announceQueueSize),
	}
}

// Start subscribes to the directory channel and registers the replicator as
// an observer of local room creations.
func (r *Replicator) Start(ctx context.Context) error {
	sub, err := r.bridge.Subscribe(ctx, fanout.DirectoryChannel)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.sub = sub
	r.mu.Unlock()

	r.directory.Observe(r)
	r.wg.Add(2)
	go r.consume(sub)
	go r.announce()
	return nil
}

// RoomCreated queues a locally created room for announcement. It never waits
// on the bridge; when the queue is full the announcement is dropped.
func (r *Replicator) RoomCreated(record Record) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.stopped {
		return
	}
	select {
	case r.pending <- record:
	default:
		r.log.Warn("Room announcement dropped", "room", record.Name, "reason", "queue full")
	}
}

func (r *Replicator) announce() {
	defer r.wg.Done()
	for record := range r.pending {
		if err := r.publish(record); err != nil {
			r.log.Warn("Room announcement failed", "room", record.Name, "error", err)
		}
	}
}

func (r *Replicator) publish(record Record) error {
	evt, err := fanout.NewEvent(TypeRoomCreated, record.Name, r.instanceID, announcement{
		Name:      record.Name,
		Code:      record.Code,
		CreatorID: record.CreatorID,
		CreatedAt: record.CreatedAt,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), announceTimeout)
	defer cancel()
	return r.bridge.Publish(ctx, fanout.DirectoryChannel, evt)
}

func (r *Replicator) consume(sub fanout.Subscription) {
	defer r.wg.Done()
	for evt := range sub.Events() {
		if evt.Type != TypeRoomCreated || evt.Origin == r.instanceID {
			continue
		}
		var a announcement
		if err := evt.Decode(&a); err != nil {
			r.log.Warn("Malformed room announcement", "origin", evt.Origin, "error", err)
			continue
		}
		err := r.directory.Import(Record{
			Name:      a.Name,
			Code:      a.Code,
			CreatorID: a.CreatorID,
			CreatedAt: a.CreatedAt,
		})
		switch {
		case err == nil:
			r.log.Debug("Imported remote room", "room", a.Name, "origin", evt.Origin)
		case errors.Is(err, ErrRoomAlreadyExists), errors.Is(err, ErrCodeTaken):
			r.log.Warn("Conflicting remote room ignored", "room", a.Name, "origin", evt.Origin, "error", err)
		default:
			r.log.Warn("Remote room rejected", "room", a.Name, "error", err)
		}
	}
}

// Stop publishes the announcements still queued, then cancels the directory
// subscription.
func (r *Replicator) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.pending)
	sub := r.sub
	r.sub = nil
	r.mu.Unlock()

	if sub != nil {
		_ = sub.Close()
	}
	r.wg.Wait()
}
