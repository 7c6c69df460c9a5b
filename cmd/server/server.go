package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/thereayou/letstalk/internal/annotate"
	"github.com/thereayou/letstalk/internal/config"
	"github.com/thereayou/letstalk/internal/database"
	"github.com/thereayou/letstalk/internal/durability"
	"github.com/thereayou/letstalk/internal/fanout"
	"github.com/thereayou/letstalk/internal/handlers"
	"github.com/thereayou/letstalk/internal/metrics"
	"github.com/thereayou/letstalk/internal/pipeline"
	"github.com/thereayou/letstalk/internal/presence"
	"github.com/thereayou/letstalk/internal/rooms"
	"github.com/thereayou/letstalk/internal/websocket"
	"github.com/thereayou/letstalk/pkg/auth"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	Router      *gin.Engine
	DB          *database.Database
	Redis       *redis.Client
	Bridge      fanout.Bridge
	Directory   *rooms.Directory
	Coordinator *presence.Coordinator
	Replicator  *rooms.Replicator
	Writer      *durability.Writer
	Hub         *websocket.Hub
	Metrics     *metrics.Metrics

	port int
	log  *slog.Logger
}

func NewServer(ctx context.Context, cfg config.Config, log *slog.Logger) (*Server, error) {
	m := metrics.New()

	db := &database.Database{}
	if err := db.Connect(cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("database connect failed: %w", err)
	}

	var rdb *redis.Client
	var bridge fanout.Bridge
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(redisOpts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis connect failed: %w", err)
		}
		bridge = fanout.NewRedisBridge(rdb, log, fanout.RedisOptions{
			Prefix:        cfg.RedisPrefix,
			LocalFallback: cfg.BridgeLocalFallback,
			OnDegraded: func(string, error) {
				m.IncBridgeDegraded()
			},
		})
	} else {
		log.Info("REDIS_URL not set, running as a single instance")
		bridge = fanout.NewLocalBridge(fanout.DefaultBuffer)
	}

	generate, err := rooms.NewCodeGenerator(cfg.JoinCodeLength)
	if err != nil {
		return nil, err
	}
	directory, err := rooms.NewDirectory(log, generate, cfg.PredefinedRooms...)
	if err != nil {
		return nil, err
	}
	if err := warmDirectory(ctx, log, db, directory); err != nil {
		return nil, err
	}

	writer := durability.NewWriter(log, db, m, durability.Options{
		QueueSize: cfg.ArchiveQueueSize,
		Workers:   cfg.ArchiveWorkers,
		Timeout:   cfg.ArchiveTimeout,
	})
	directory.Observe(writer)

	replicator := rooms.NewReplicator(log, cfg.InstanceID, directory, bridge)
	if err := replicator.Start(ctx); err != nil {
		return nil, fmt.Errorf("directory replication failed: %w", err)
	}

	lexicon, err := annotate.NewDefaultLexicon()
	if err != nil {
		return nil, err
	}

	hub := websocket.NewHub(log, m)
	coordinator := presence.NewCoordinator(log, cfg.InstanceID, directory, presence.NewRegistry(), bridge, hub)
	coordinator.StartRosterRefresh(cfg.RosterRefreshInterval)
	pipe := pipeline.New(log, coordinator, lexicon, writer, cfg.MaxMessageLength)

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)
	gate := auth.NewTokenGate(jwtMgr, rdb)

	router := gin.New()
	router.Use(gin.Recovery())
	APIEndpoints(router, Endpoints{
		Auth:      handlers.NewAuthHandler(db, jwtMgr, gate, m),
		Rooms:     handlers.NewRoomHandler(directory, m),
		Messages:  handlers.NewHTTPMessageHandler(db, directory),
		Users:     handlers.NewUserHandler(db),
		WebSocket: handlers.NewWebSocketHandler(log, hub, handlers.NewMessageHandler(log, directory, coordinator, pipe, gate, m)),
		Metrics:   m,
		Gate:      gate,
	})

	writer.Start()

	return &Server{
		Router:      router,
		DB:          db,
		Redis:       rdb,
		Bridge:      bridge,
		Directory:   directory,
		Coordinator: coordinator,
		Replicator:  replicator,
		Writer:      writer,
		Hub:         hub,
		Metrics:     m,
		port:        cfg.Port,
		log:         log,
	}, nil
}

// warmDirectory loads the rooms created by earlier runs.
func warmDirectory(ctx context.Context, log *slog.Logger, db *database.Database, directory *rooms.Directory) error {
	records, err := db.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("loading rooms failed: %w", err)
	}
	for _, record := range records {
		if err := directory.Import(record); err != nil {
			log.Warn("Stored room skipped", "room", record.Name, "error", err)
		}
	}
	log.Info("Room directory ready", "stored", len(records), "total", len(directory.Names()))
	return nil
}

// Run serves HTTP until ctx is cancelled, then shuts everything down.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Router,
	}

	errChan := make(chan error, 1)
	go func() {
		s.log.Info("Server starting", "port", s.port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		s.log.Info("Shutting down gracefully...")
	case runErr = <-errChan:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("HTTP shutdown failed", "error", err)
	}
	s.close(shutdownCtx)
	return runErr
}

// close lets every connection leave its room while the bridge is still up,
// then tears the rest down.
func (s *Server) close(ctx context.Context) {
	_ = s.Hub.Stop(ctx)
	s.Replicator.Stop()
	s.Coordinator.Close()
	s.Writer.Stop()
	_ = s.Bridge.Close()
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	_ = s.DB.Close()
	s.log.Info("Server stopped cleanly")
}
