package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	ws "github.com/thereayou/letstalk/internal/websocket"
)

// WebSocketHandler upgrades connections and starts their pumps. Connecting
// needs no token: joining and chatting are open to anyone.
type WebSocketHandler struct {
	hub            *ws.Hub
	messageHandler ws.ClientMessageHandler
	upgrader       websocket.Upgrader
	log            *slog.Logger
}

func NewWebSocketHandler(log *slog.Logger, hub *ws.Hub, messageHandler ws.ClientMessageHandler) *WebSocketHandler {
	return &WebSocketHandler{
		hub:            hub,
		messageHandler: messageHandler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: log,
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	client := ws.NewClient(h.hub, conn, uuid.NewString())
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.messageHandler)
}
