package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is an archived chat message. Rooms are referenced by name because
// predefined rooms have no row.
type Message struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Room      string    `gorm:"index:idx_messages_room_created;not null"`
	Username  string    `gorm:"not null"`
	Text      string    `gorm:"not null"`
	Sentiment string
	Emoji     string
	Language  string
	CreatedAt time.Time `gorm:"index:idx_messages_room_created"`
}
