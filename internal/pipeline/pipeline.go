// Package pipeline turns raw chat submissions into annotated messages,
// broadcasts them to the sender's room and hands them to durable storage.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/thereayou/letstalk/internal/chat"
	"github.com/thereayou/letstalk/internal/presence"
)

const DefaultMaxLength = 2000

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message is too long")
)

// Presence resolves senders and reaches every member of a room.
type Presence interface {
	Lookup(connID string) (presence.PresentUser, error)
	Broadcast(ctx context.Context, msg chat.Message, except string) error
}

// Archiver stores messages. ArchiveMessage must return without waiting for
// the write.
type Archiver interface {
	ArchiveMessage(msg chat.Message)
}

type Pipeline struct {
	presence  Presence
	annotator chat.Annotator
	archiver  Archiver
	maxLength int
	log       *slog.Logger
}

func New(log *slog.Logger, p Presence, annotator chat.Annotator, archiver Archiver, maxLength int) *Pipeline {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Pipeline{
		presence:  p,
		annotator: annotator,
		archiver:  archiver,
		maxLength: maxLength,
		log:       log,
	}
}

// Submit annotates text from connID and broadcasts it before returning, so
// two sequential submissions reach every subscriber in submission order.
// Storage happens afterwards and never affects the broadcast.
func (p *Pipeline) Submit(ctx context.Context, connID, text string) (chat.Message, error) {
	sender, err := p.presence.Lookup(connID)
	if err != nil {
		return chat.Message{}, err
	}
	if strings.TrimSpace(text) == "" {
		return chat.Message{}, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > p.maxLength {
		return chat.Message{}, ErrMessageTooLong
	}

	var tags chat.Tags
	if p.annotator != nil {
		tags = p.annotator.Annotate(text)
	}
	msg := chat.NewMessage(sender.DisplayName, sender.Room, text, tags)

	if err := p.presence.Broadcast(ctx, msg, ""); err != nil {
		p.log.Warn("Broadcast failed", "room", msg.Room, "conn", connID, "error", err)
		return chat.Message{}, err
	}

	if p.archiver != nil {
		p.archiver.ArchiveMessage(msg)
	}
	return msg, nil
}
