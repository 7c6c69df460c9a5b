package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/letstalk/internal/handlers/dto"
	"github.com/thereayou/letstalk/internal/metrics"
	"github.com/thereayou/letstalk/internal/middleware"
	"github.com/thereayou/letstalk/internal/rooms"
)

type RoomHandler struct {
	directory *rooms.Directory
	metrics   *metrics.Metrics
}

func NewRoomHandler(directory *rooms.Directory, m *metrics.Metrics) *RoomHandler {
	return &RoomHandler{directory: directory, metrics: m}
}

// ListRooms returns every room name, predefined rooms first.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, h.directory.Names())
}

// CreateRoom registers a room for the authenticated caller and returns its
// join code.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	identity, ok := middleware.Identity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user is not authenticated"})
		return
	}

	var req dto.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	code, err := h.directory.CreateRoom(req.Name, identity.UserID)
	switch {
	case errors.Is(err, rooms.ErrRoomAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, rooms.ErrInvalidRoomName):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.metrics.IncRoomCreated()

	c.JSON(http.StatusCreated, dto.CreateRoomResponse{Success: true, RoomCode: code})
}
