package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Room is a user-created chat room. Predefined rooms are configuration and
// are never stored.
type Room struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"uniqueIndex;not null"`
	Code      string    `gorm:"uniqueIndex;not null"`
	CreatedBy string
	CreatedAt time.Time
}

func (r *Room) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
