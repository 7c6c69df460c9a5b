package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/thereayou/letstalk/internal/chat"
	"github.com/thereayou/letstalk/internal/fanout"
	"github.com/thereayou/letstalk/internal/handlers/dto"
	"github.com/thereayou/letstalk/internal/metrics"
	"github.com/thereayou/letstalk/internal/pipeline"
	"github.com/thereayou/letstalk/internal/presence"
	"github.com/thereayou/letstalk/internal/rooms"
	"github.com/thereayou/letstalk/internal/websocket"
	"github.com/thereayou/letstalk/pkg/auth"
)

const commandTimeout = 10 * time.Second

var (
	ErrReservedName = errors.New("this name is reserved")
	ErrServer       = errors.New("server error, please try again")
)

// MessageHandler executes the commands read from websocket clients.
type MessageHandler struct {
	directory   *rooms.Directory
	coordinator *presence.Coordinator
	pipeline    *pipeline.Pipeline
	gate        auth.Gate
	metrics     *metrics.Metrics
	validate    *validator.Validate
	log         *slog.Logger
}

func NewMessageHandler(
	log *slog.Logger,
	directory *rooms.Directory,
	coordinator *presence.Coordinator,
	pipe *pipeline.Pipeline,
	gate auth.Gate,
	m *metrics.Metrics,
) *MessageHandler {
	return &MessageHandler{
		directory:   directory,
		coordinator: coordinator,
		pipeline:    pipe,
		gate:        gate,
		metrics:     m,
		validate:    validator.New(),
		log:         log,
	}
}

func (h *MessageHandler) HandleMessage(client *websocket.Client, msg *websocket.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var err error
	switch msg.Type {
	case websocket.TypeCreateRoom:
		err = h.handleCreateRoom(ctx, client, msg)
	case websocket.TypeJoinRoom:
		err = h.handleJoinRoom(ctx, client, msg)
	case websocket.TypeChatMessage:
		err = h.handleChatMessage(ctx, client, msg)
	default:
		err = websocket.ErrUnknownCommand
	}
	return h.clientError(msg.Type, err)
}

func (h *MessageHandler) handleCreateRoom(ctx context.Context, client *websocket.Client, msg *websocket.Message) error {
	var payload dto.CreateRoomPayload
	if err := h.decode(msg.Data, &payload); err != nil {
		return err
	}

	identity, err := h.gate.Authorize(ctx, payload.Token)
	if err != nil {
		return auth.ErrUnauthenticated
	}

	code, err := h.directory.CreateRoom(payload.Name, identity.UserID)
	if err != nil {
		return err
	}
	h.metrics.IncRoomCreated()

	return client.SendMessage(websocket.TypeRoomCreated, dto.RoomCreatedEvent{
		Room:     payload.Name,
		RoomCode: code,
	})
}

func (h *MessageHandler) handleJoinRoom(ctx context.Context, client *websocket.Client, msg *websocket.Message) error {
	var payload dto.JoinRoomPayload
	if err := h.decode(msg.Data, &payload); err != nil {
		return err
	}
	if payload.Username == chat.BotName {
		return ErrReservedName
	}

	_, err := h.coordinator.Join(ctx, client.ID, payload.Username, payload.RoomCode)
	return err
}

func (h *MessageHandler) handleChatMessage(ctx context.Context, client *websocket.Client, msg *websocket.Message) error {
	var text string
	if err := json.Unmarshal(msg.Data, &text); err != nil {
		return websocket.ErrInvalidMessage
	}

	if _, err := h.pipeline.Submit(ctx, client.ID, text); err != nil {
		return err
	}
	h.metrics.IncMessage()
	return nil
}

// HandleDisconnect takes the connection out of its room, if any.
func (h *MessageHandler) HandleDisconnect(client *websocket.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := h.coordinator.Leave(ctx, client.ID); err != nil {
		h.log.Warn("Leave after disconnect failed", "conn", client.ID, "error", err)
	}
}

func (h *MessageHandler) decode(data json.RawMessage, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return websocket.ErrInvalidMessage
	}
	if err := h.validate.Struct(dst); err != nil {
		return websocket.ErrInvalidMessage
	}
	return nil
}

// clientError keeps domain errors readable for the client and hides
// infrastructure failures behind ErrServer.
func (h *MessageHandler) clientError(command websocket.MessageType, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fanout.ErrBridgeUnavailable),
		errors.Is(err, fanout.ErrBridgeClosed),
		errors.Is(err, context.DeadlineExceeded):
		h.metrics.IncBridgeFailure()
		h.log.Error("Command failed", "command", command, "error", err)
		return ErrServer
	default:
		return err
	}
}
