package database

import (
	"context"
	"slices"

	"github.com/thereayou/letstalk/internal/chat"
	"github.com/thereayou/letstalk/internal/models"
)

const DefaultHistoryLimit = 50

// SaveMessage archives an accepted chat message.
func (d *Database) SaveMessage(ctx context.Context, msg chat.Message) error {
	row := models.Message{
		ID:        msg.ID,
		Room:      msg.Room,
		Username:  msg.Sender,
		Text:      msg.Text,
		Sentiment: msg.Sentiment,
		Emoji:     msg.Emoji,
		Language:  msg.Language,
		CreatedAt: msg.Timestamp,
	}
	return d.db.WithContext(ctx).Create(&row).Error
}

// GetRoomMessages returns the latest limit messages of room, oldest first.
func (d *Database) GetRoomMessages(ctx context.Context, room string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	var rows []models.Message
	err := d.db.WithContext(ctx).
		Where("room = ?", room).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	// oldest first
	slices.Reverse(rows)

	messages := make([]chat.Message, 0, len(rows))
	for _, r := range rows {
		messages = append(messages, chat.Message{
			ID:     r.ID,
			Sender: r.Username,
			Room:   r.Room,
			Text:   r.Text,
			Tags: chat.Tags{
				Sentiment: r.Sentiment,
				Emoji:     r.Emoji,
				Language:  r.Language,
			},
			Timestamp: r.CreatedAt,
		})
	}
	return messages, nil
}
