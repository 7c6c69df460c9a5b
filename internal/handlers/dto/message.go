package dto

import (
	"time"

	"github.com/google/uuid"
)

// CreateRoomPayload is the data of a createRoom command.
type CreateRoomPayload struct {
	Name  string `json:"name" validate:"required,max=64"`
	Token string `json:"token"`
}

// JoinRoomPayload is the data of a joinRoom command.
type JoinRoomPayload struct {
	Username string `json:"username" validate:"required,max=32"`
	RoomCode string `json:"roomCode" validate:"required"`
}

type RoomCreatedEvent struct {
	Room     string `json:"room"`
	RoomCode string `json:"roomCode"`
}

type MessageResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Sentiment string    `json:"sentiment,omitempty"`
	Emoji     string    `json:"emoji,omitempty"`
	Language  string    `json:"language,omitempty"`
	Time      time.Time `json:"time"`
}
