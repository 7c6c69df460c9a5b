package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/letstalk/internal/handlers"
	"github.com/thereayou/letstalk/internal/metrics"
	"github.com/thereayou/letstalk/internal/middleware"
	"github.com/thereayou/letstalk/pkg/auth"
)

type Endpoints struct {
	Auth      *handlers.AuthHandler
	Rooms     *handlers.RoomHandler
	Messages  *handlers.HTTPMessageHandler
	Users     *handlers.UserHandler
	WebSocket *handlers.WebSocketHandler
	Metrics   *metrics.Metrics
	Gate      auth.Gate
}

func APIEndpoints(r *gin.Engine, e Endpoints) {
	requireIdentity := middleware.RequireIdentity(e.Gate)

	// Accounts
	r.POST("/signup", e.Auth.Signup)
	r.POST("/signin", e.Auth.Signin)
	r.POST("/logout", requireIdentity, e.Auth.Logout)
	r.GET("/me", requireIdentity, e.Users.GetMe)

	// Rooms
	r.GET("/rooms", e.Rooms.ListRooms)
	r.POST("/createRoom", requireIdentity, e.Rooms.CreateRoom)
	r.GET("/rooms/:name/messages", e.Messages.GetRoomMessages)

	r.GET("/ws", e.WebSocket.HandleWebSocket)

	r.GET("/metrics", gin.WrapH(e.Metrics))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
