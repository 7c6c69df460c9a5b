package presence

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/thereayou/letstalk/internal/chat"
	"github.com/thereayou/letstalk/internal/fanout"
	"github.com/thereayou/letstalk/internal/rooms"
)

// Deliverer hands an event to one local connection. It must not block.
type Deliverer interface {
	Deliver(connID string, evt fanout.Event)
}

// Coordinator drives the Absent -> Present -> Absent cycle of connections.
// Joins and leaves touching the same room are serialized; rooms are
// independent of each other.
type Coordinator struct {
	instanceID string
	directory  *rooms.Directory
	registry   *Registry
	bridge     fanout.Bridge
	router     *fanout.Router
	deliverer  Deliverer
	locks      *keyedMutex
	rosters    *rosterBook
	log        *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewCoordinator(
	log *slog.Logger,
	instanceID string,
	directory *rooms.Directory,
	registry *Registry,
	bridge fanout.Bridge,
	deliverer Deliverer,
) *Coordinator {
	c := &Coordinator{
		instanceID: instanceID,
		directory:  directory,
		registry:   registry,
		bridge:     bridge,
		deliverer:  deliverer,
		locks:      newKeyedMutex(),
		rosters:    newRosterBook(),
		log:        log,
		stop:       make(chan struct{}),
	}
	c.router = fanout.NewRouter(log, bridge, c)
	return c
}

// Join places connID in the room owning code and returns the room name.
// On any error the connection is left Absent and the room untouched.
func (c *Coordinator) Join(ctx context.Context, connID, displayName, code string) (string, error) {
	room, err := c.directory.ResolveByCode(code)
	if err != nil {
		return "", err
	}

	// Subscribe before anything is published so the joiner sees its own roster.
	first, err := c.router.Acquire(ctx, room)
	if err != nil {
		return "", err
	}
	if first {
		c.requestRosterSync(ctx, room)
	}

	unlock := c.locks.Lock(room)
	defer unlock()

	user, err := c.registry.Register(connID, displayName, room)
	if err != nil {
		c.release(room)
		return "", err
	}
	if err := c.directory.AddMember(room, connID); err != nil {
		_, _ = c.registry.Unregister(connID)
		c.release(room)
		return "", err
	}

	if err := c.announceJoin(ctx, user); err != nil {
		_, _ = c.registry.Unregister(connID)
		_ = c.directory.RemoveMember(room, connID)
		c.release(room)
		return "", err
	}

	c.log.Info("User joined room", "conn", connID, "user", displayName, "room", room)
	return room, nil
}

func (c *Coordinator) announceJoin(ctx context.Context, user PresentUser) error {
	joined := chat.NewBotMessage(user.Room, chat.JoinedText(user.DisplayName))
	if err := c.Broadcast(ctx, joined, user.ConnectionID); err != nil {
		return err
	}

	welcome, err := chat.NewBotMessage(user.Room, chat.WelcomeText()).Event(c.instanceID, "")
	if err == nil {
		c.deliverer.Deliver(user.ConnectionID, welcome)
	}

	return c.publishRoster(ctx, user.Room)
}

// Leave removes connID from its room. A connection that is already Absent is
// not an error: transports may report the same disconnect more than once.
func (c *Coordinator) Leave(ctx context.Context, connID string) error {
	current, err := c.registry.Lookup(connID)
	if errors.Is(err, ErrNotPresent) {
		return nil
	}
	if err != nil {
		return err
	}

	unlock := c.locks.Lock(current.Room)
	user, err := c.registry.Unregister(connID)
	if err != nil {
		unlock()
		if errors.Is(err, ErrNotPresent) {
			return nil
		}
		return err
	}
	if err := c.directory.RemoveMember(user.Room, connID); err != nil {
		c.log.Warn("Room vanished while leaving", "room", user.Room, "error", err)
	}

	left := chat.NewBotMessage(user.Room, chat.LeftText(user.DisplayName))
	publishErr := errors.Join(
		c.Broadcast(ctx, left, ""),
		c.publishRoster(ctx, user.Room),
	)
	unlock()

	c.release(user.Room)
	c.log.Info("User left room", "conn", connID, "user", user.DisplayName, "room", user.Room)
	return publishErr
}

// CurrentRoom returns the room connID is present in.
func (c *Coordinator) CurrentRoom(connID string) (string, error) {
	user, err := c.registry.Lookup(connID)
	if err != nil {
		return "", err
	}
	return user.Room, nil
}

// Lookup returns the present user behind connID.
func (c *Coordinator) Lookup(connID string) (PresentUser, error) {
	return c.registry.Lookup(connID)
}

// Roster lists the display names present on this instance, in join order.
func (c *Coordinator) Roster(room string) []string {
	return lo.Map(c.registry.ListByRoom(room), func(u PresentUser, _ int) string {
		return u.DisplayName
	})
}

// Broadcast publishes msg to every member of its room on every instance,
// except the connection named by except.
func (c *Coordinator) Broadcast(ctx context.Context, msg chat.Message, except string) error {
	evt, err := msg.Event(c.instanceID, except)
	if err != nil {
		return err
	}
	return c.bridge.Publish(ctx, fanout.RoomChannel(msg.Room), evt)
}

func (c *Coordinator) publishRoster(ctx context.Context, room string) error {
	members := lo.Map(c.registry.ListByRoom(room), func(u PresentUser, _ int) chat.RosterEntry {
		return chat.RosterEntry{Name: u.DisplayName, JoinedAt: u.JoinedAt}
	})
	evt, err := fanout.NewEvent(chat.TypeRoster, room, c.instanceID, chat.PartialRoster{
		Room:    room,
		Members: members,
	})
	if err != nil {
		return err
	}
	return c.bridge.Publish(ctx, fanout.RoomChannel(room), evt)
}

func (c *Coordinator) requestRosterSync(ctx context.Context, room string) {
	evt, err := fanout.NewEvent(chat.TypeRosterSync, room, c.instanceID, nil)
	if err != nil {
		return
	}
	if err := c.bridge.Publish(ctx, fanout.RoomChannel(room), evt); err != nil {
		c.log.Warn("Roster sync request failed", "room", room, "error", err)
	}
}

func (c *Coordinator) answerRosterSync(room string) {
	unlock := c.locks.Lock(room)
	defer unlock()

	if len(c.registry.ListByRoom(room)) == 0 {
		return
	}
	if err := c.publishRoster(context.Background(), room); err != nil {
		c.log.Warn("Roster sync answer failed", "room", room, "error", err)
	}
}

func (c *Coordinator) release(room string) {
	c.router.Release(room)
	if !c.router.Active(room) {
		c.rosters.drop(room)
	}
}

// HandleEvent receives the events of every room followed by this instance.
func (c *Coordinator) HandleEvent(room string, evt fanout.Event) {
	switch evt.Type {
	case chat.TypeMessage:
		c.deliverToRoom(room, evt)

	case chat.TypeRoster:
		var partial chat.PartialRoster
		if err := evt.Decode(&partial); err != nil {
			c.log.Warn("Malformed roster event", "room", room, "error", err)
			return
		}
		if merged, changed := c.rosters.update(room, evt.Origin, partial.Members, time.Now()); changed {
			c.deliverRoster(room, merged)
		}

	case chat.TypeRosterSync:
		if evt.Origin != c.instanceID {
			go c.answerRosterSync(room)
		}

	default:
		c.log.Debug("Ignoring room event", "room", room, "type", evt.Type)
	}
}

func (c *Coordinator) deliverRoster(room string, users []string) {
	evt, err := fanout.NewEvent(chat.TypeRoomUsers, room, c.instanceID, chat.RoomUsers{
		Room:  room,
		Users: users,
	})
	if err != nil {
		return
	}
	c.deliverToRoom(room, evt)
}

func (c *Coordinator) deliverToRoom(room string, evt fanout.Event) {
	for _, user := range c.registry.ListByRoom(room) {
		if user.ConnectionID == evt.Except {
			continue
		}
		c.deliverer.Deliver(user.ConnectionID, evt)
	}
}

// StartRosterRefresh re-announces this instance's rosters every interval and
// forgets the rosters of instances silent for three intervals, which removes
// the users of an instance that died without leaving.
func (c *Coordinator) StartRosterRefresh(interval time.Duration) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case now := <-ticker.C:
				c.refreshRosters(now, 3*interval)
			}
		}
	}()
}

func (c *Coordinator) refreshRosters(now time.Time, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), ttl)
	defer cancel()

	for _, room := range c.registry.Rooms() {
		unlock := c.locks.Lock(room)
		if len(c.registry.ListByRoom(room)) > 0 {
			if err := c.publishRoster(ctx, room); err != nil {
				c.log.Warn("Roster refresh failed", "room", room, "error", err)
			}
		}
		unlock()
	}

	for room, users := range c.rosters.expire(now, ttl, c.instanceID) {
		c.log.Info("Dropped rosters of silent instances", "room", room)
		c.deliverRoster(room, users)
	}
}

// Close stops the roster refresh and cancels the room subscriptions of this
// instance.
func (c *Coordinator) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.wg.Wait()
	c.router.Close()
}
