package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// slowLeaver takes delay to handle each disconnect.
type slowLeaver struct {
	delay time.Duration

	mu   sync.Mutex
	seen []string
	left []string
}

func (h *slowLeaver) HandleMessage(client *Client, _ *Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, client.ID)
	return nil
}

func (h *slowLeaver) HandleDisconnect(client *Client) {
	time.Sleep(h.delay)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.left = append(h.left, client.ID)
}

func (h *slowLeaver) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen), len(h.left)
}

func (h *slowLeaver) leftIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.left)
}

// serveHub upgrades every request into a client of hub and returns the
// websocket URL.
func serveHub(t *testing.T, hub *Hub, handler ClientMessageHandler) string {
	t.Helper()
	upgrader := gws.Upgrader{}
	var next atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn, fmt.Sprintf("c%d", next.Add(1)))
		hub.Register(client)
		go client.WritePump()
		go client.ReadPump(handler)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// connect dials url and waits until the server side read pump handled one
// command, so the pump is known to be running.
func connect(t *testing.T, url string, handler *slowLeaver, want int) *gws.Conn {
	t.Helper()
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.WriteJSON(Message{Type: "ping"}))
	require.Eventually(t, func() bool {
		seen, _ := handler.counts()
		return seen == want
	}, time.Second, 5*time.Millisecond)
	return conn
}

func TestHub_StopWaitsForDisconnects(t *testing.T) {
	req := require.New(t)
	hub := NewHub(logs.GetLoggerFromLevel(slog.LevelDebug), nil)
	handler := &slowLeaver{delay: 50 * time.Millisecond}
	url := serveHub(t, hub, handler)

	// Given three running connections
	for i := 1; i <= 3; i++ {
		connect(t, url, handler, i)
	}

	// When the hub stops
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req.NoError(hub.Stop(ctx))

	// Then every disconnect has already been handled
	req.ElementsMatch([]string{"c1", "c2", "c3"}, handler.leftIDs())
	req.Equal(0, hub.Count())
}

func TestHub_StopGivesUpWhenContextEnds(t *testing.T) {
	req := require.New(t)
	hub := NewHub(logs.GetLoggerFromLevel(slog.LevelDebug), nil)
	handler := &slowLeaver{delay: 300 * time.Millisecond}
	url := serveHub(t, hub, handler)
	connect(t, url, handler, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req.ErrorIs(hub.Stop(ctx), context.DeadlineExceeded)

	// The disconnect still completes in the background
	req.Eventually(func() bool {
		_, left := handler.counts()
		return left == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHub_StoppedHubRefusesConnections(t *testing.T) {
	req := require.New(t)
	hub := NewHub(logs.GetLoggerFromLevel(slog.LevelDebug), nil)
	handler := &slowLeaver{}
	url := serveHub(t, hub, handler)
	req.NoError(hub.Stop(context.Background()))

	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	req.NoError(err)
	defer conn.Close()

	// The server closes the connection without reading from it
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err = conn.ReadMessage()
	req.Error(err)
	req.Eventually(func() bool { return hub.Count() == 0 }, time.Second, 5*time.Millisecond)

	seen, left := handler.counts()
	req.Zero(seen)
	req.Zero(left)
}
