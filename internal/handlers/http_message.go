package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/thereayou/letstalk/internal/chat"
	"github.com/thereayou/letstalk/internal/database"
	"github.com/thereayou/letstalk/internal/handlers/dto"
	"github.com/thereayou/letstalk/internal/rooms"
)

const maxHistoryLimit = 200

type HTTPMessageHandler struct {
	db        *database.Database
	directory *rooms.Directory
}

func NewHTTPMessageHandler(db *database.Database, directory *rooms.Directory) *HTTPMessageHandler {
	return &HTTPMessageHandler{db: db, directory: directory}
}

// GetRoomMessages returns the archived history of a room, oldest first.
func (h *HTTPMessageHandler) GetRoomMessages(c *gin.Context) {
	room := c.Param("name")
	if !h.directory.Exists(room) {
		c.JSON(http.StatusNotFound, gin.H{"error": rooms.ErrRoomNotFound.Error()})
		return
	}

	limit := database.DefaultHistoryLimit
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxHistoryLimit {
			limit = parsed
		}
	}

	messages, err := h.db.GetRoomMessages(c.Request.Context(), room, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	response := lo.Map(messages, func(m chat.Message, _ int) dto.MessageResponse {
		return dto.MessageResponse{
			ID:        m.ID,
			Username:  m.Sender,
			Text:      m.Text,
			Sentiment: m.Sentiment,
			Emoji:     m.Emoji,
			Language:  m.Language,
			Time:      m.Timestamp,
		}
	})
	c.JSON(http.StatusOK, gin.H{"room": room, "messages": response})
}
