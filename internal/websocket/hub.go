// Package websocket adapts gorilla websocket connections to the room
// presence and message flow.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/thereayou/letstalk/internal/chat"
	"github.com/thereayou/letstalk/internal/fanout"
)

// MessageType names commands sent by clients and events sent to them.
type MessageType string

const (
	// Commands
	TypeCreateRoom  MessageType = "createRoom"
	TypeJoinRoom    MessageType = "joinRoom"
	TypeChatMessage MessageType = "chatMessage"

	// Events
	TypeMessage     MessageType = "message"
	TypeRoomUsers   MessageType = "roomUsers"
	TypeError       MessageType = "error"
	TypeRoomCreated MessageType = "roomCreated"
)

// Message is the envelope of every websocket frame, in both directions.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// ConnReporter tracks open connections.
type ConnReporter interface {
	IncConn()
	DecConn()
}

// Hub maps connection ids to live clients and hands room events to them.
type Hub struct {
	clients  map[string]*Client
	mu       sync.RWMutex
	stopped  bool
	readers  sync.WaitGroup
	reporter ConnReporter
	log      *slog.Logger
}

func NewHub(log *slog.Logger, reporter ConnReporter) *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		reporter: reporter,
		log:      log,
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	if h.reporter != nil {
		h.reporter.IncConn()
	}
	h.log.Debug("Client registered", "conn", client.ID)
}

// Unregister forgets client and closes its send queue. It is safe to call
// more than once.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.clients[client.ID]; !ok || current != client {
		return
	}
	delete(h.clients, client.ID)
	client.closeSend()
	if h.reporter != nil {
		h.reporter.DecConn()
	}
	h.log.Debug("Client unregistered", "conn", client.ID)
}

// Deliver translates a room event into a client frame. It never blocks: a
// client whose queue is full misses the event.
func (h *Hub) Deliver(connID string, evt fanout.Event) {
	var msgType MessageType
	switch evt.Type {
	case chat.TypeMessage:
		msgType = TypeMessage
	case chat.TypeRoomUsers:
		msgType = TypeRoomUsers
	default:
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[connID]
	if !ok {
		return
	}
	if err := client.sendRaw(msgType, evt.Data); err != nil {
		h.log.Warn("Dropping event for slow client", "conn", connID, "type", msgType, "error", err)
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// trackReader counts a starting read pump. It fails once Stop has begun.
func (h *Hub) trackReader() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	h.readers.Add(1)
	return true
}

// Stop closes every connection and waits until each read pump has reported
// its disconnect, or until ctx ends.
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	h.stopped = true
	for _, client := range h.clients {
		_ = client.Conn.Close()
	}
	h.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		h.readers.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		h.log.Warn("Stopped before every disconnect was handled", "error", ctx.Err())
		return ctx.Err()
	}
}
