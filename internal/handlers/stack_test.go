package handlers_test

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/letstalk/internal/annotate"
	"github.com/thereayou/letstalk/internal/database"
	"github.com/thereayou/letstalk/internal/durability"
	"github.com/thereayou/letstalk/internal/fanout"
	"github.com/thereayou/letstalk/internal/handlers"
	"github.com/thereayou/letstalk/internal/metrics"
	"github.com/thereayou/letstalk/internal/middleware"
	"github.com/thereayou/letstalk/internal/pipeline"
	"github.com/thereayou/letstalk/internal/presence"
	"github.com/thereayou/letstalk/internal/rooms"
	ws "github.com/thereayou/letstalk/internal/websocket"
	"github.com/thereayou/letstalk/pkg/auth"
)

// stack is a single instance wired the way the server wires it, on SQLite and
// the in-process bridge.
type stack struct {
	server    *httptest.Server
	db        *database.Database
	directory *rooms.Directory
	jwt       *auth.JWTManager
	metrics   *metrics.Metrics
}

func newStack(t *testing.T) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logs.GetLoggerFromLevel(slog.LevelError)

	db := &database.Database{}
	name := strings.ReplaceAll(t.Name(), "/", "_")
	require.NoError(t, db.Connect(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)))

	m := metrics.New()
	generate, err := rooms.NewCodeGenerator(rooms.DefaultCodeLength)
	require.NoError(t, err)
	directory, err := rooms.NewDirectory(log, generate, "JavaScript", "Python")
	require.NoError(t, err)

	writer := durability.NewWriter(log, db, m, durability.Options{})
	directory.Observe(writer)
	writer.Start()

	bridge := fanout.NewLocalBridge(fanout.DefaultBuffer)
	hub := ws.NewHub(log, m)
	coordinator := presence.NewCoordinator(log, "test-instance", directory, presence.NewRegistry(), bridge, hub)
	lexicon, err := annotate.NewDefaultLexicon()
	require.NoError(t, err)
	pipe := pipeline.New(log, coordinator, lexicon, writer, pipeline.DefaultMaxLength)

	jwtMgr := auth.NewJWTManager("test-secret", time.Hour)
	gate := auth.NewTokenGate(jwtMgr, nil)

	authHandler := handlers.NewAuthHandler(db, jwtMgr, gate, m)
	roomHandler := handlers.NewRoomHandler(directory, m)
	historyHandler := handlers.NewHTTPMessageHandler(db, directory)
	userHandler := handlers.NewUserHandler(db)
	messageHandler := handlers.NewMessageHandler(log, directory, coordinator, pipe, gate, m)
	wsHandler := handlers.NewWebSocketHandler(log, hub, messageHandler)

	r := gin.New()
	requireIdentity := middleware.RequireIdentity(gate)
	r.POST("/signup", authHandler.Signup)
	r.POST("/signin", authHandler.Signin)
	r.POST("/logout", requireIdentity, authHandler.Logout)
	r.GET("/me", requireIdentity, userHandler.GetMe)
	r.GET("/rooms", roomHandler.ListRooms)
	r.POST("/createRoom", requireIdentity, roomHandler.CreateRoom)
	r.GET("/rooms/:name/messages", historyHandler.GetRoomMessages)
	r.GET("/ws", wsHandler.HandleWebSocket)

	server := httptest.NewServer(r)
	t.Cleanup(func() {
		server.Close()
		_ = hub.Stop(context.Background())
		coordinator.Close()
		writer.Stop()
		_ = bridge.Close()
		_ = db.Close()
	})

	return &stack{
		server:    server,
		db:        db,
		directory: directory,
		jwt:       jwtMgr,
		metrics:   m,
	}
}

func (s *stack) token(t *testing.T, userID, username string) string {
	t.Helper()
	token, err := s.jwt.Generate(userID, username)
	require.NoError(t, err)
	return token
}
