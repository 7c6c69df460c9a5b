package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	sendBuffer = 256
)

// ClientMessageHandler executes the commands read from a client.
type ClientMessageHandler interface {
	HandleMessage(client *Client, msg *Message) error
	HandleDisconnect(client *Client)
}

type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
	Hub  *Hub
	log  *slog.Logger

	mu     sync.RWMutex
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, id string) *Client {
	return &Client{
		ID:   id,
		Conn: conn,
		Send: make(chan []byte, sendBuffer),
		Hub:  hub,
		log:  hub.log.With("conn", id),
	}
}

// ReadPump reads commands until the connection drops, then reports the
// disconnect to handler exactly once. A hub that is stopping refuses the
// connection.
func (c *Client) ReadPump(handler ClientMessageHandler) {
	if !c.Hub.trackReader() {
		c.Hub.Unregister(c)
		_ = c.Conn.Close()
		return
	}
	defer func() {
		handler.HandleDisconnect(c)
		c.Hub.Unregister(c)
		_ = c.Conn.Close()
		c.Hub.readers.Done()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
			c.SendError(ErrInvalidMessage.Error())
			continue
		}

		if err := handler.HandleMessage(c, &msg); err != nil {
			c.log.Debug("Command rejected", "type", msg.Type, "error", err)
			c.SendError(err.Error())
		}
	}
}

// WritePump flushes the send queue and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) SendMessage(msgType MessageType, data interface{}) error {
	var raw json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return err
		}
		raw = encoded
	}
	return c.sendRaw(msgType, raw)
}

func (c *Client) sendRaw(msgType MessageType, data json.RawMessage) error {
	frame, err := json.Marshal(Message{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.Send <- frame:
		return nil
	default:
		return ErrClientQueueFull
	}
}

// SendError sends an error event carrying reason.
func (c *Client) SendError(reason string) {
	if err := c.SendMessage(TypeError, reason); err != nil {
		c.log.Debug("Error event not sent", "reason", reason, "error", err)
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}
