// Package chat holds the values exchanged in a room: annotated chat messages
// and roster snapshots, and their bridge event types.
package chat

import (
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/letstalk/internal/fanout"
)

const BotName = "LetsTalk Bot"

// Bridge event types.
const (
	TypeMessage    fanout.EventType = "message"
	TypeRoster     fanout.EventType = "roster"
	TypeRosterSync fanout.EventType = "rosterSync"
	// TypeRoomUsers is the merged roster handed to local connections.
	TypeRoomUsers fanout.EventType = "roomUsers"
)

// Tags are derived from the message text by an Annotator.
type Tags struct {
	Sentiment string `json:"sentiment"`
	Emoji     string `json:"emoji"`
	Language  string `json:"language,omitempty"`
}

// Annotator derives tags from text. Implementations must be deterministic.
type Annotator interface {
	Annotate(text string) Tags
}

// Message is immutable once built.
type Message struct {
	ID     uuid.UUID `json:"id"`
	Sender string    `json:"username"`
	Room   string    `json:"room"`
	Text   string    `json:"text"`
	Tags
	Timestamp time.Time `json:"time"`
}

func NewMessage(sender, room, text string, tags Tags) Message {
	return Message{
		ID:        uuid.New(),
		Sender:    sender,
		Room:      room,
		Text:      text,
		Tags:      tags,
		Timestamp: time.Now().UTC(),
	}
}

// NewBotMessage builds a system notice. Notices are broadcast but never stored.
func NewBotMessage(room, text string) Message {
	return NewMessage(BotName, room, text, Tags{})
}

// IsBot reports whether the message is a system notice.
func (m Message) IsBot() bool {
	return m.Sender == BotName
}

// Event wraps the message for the bridge. except, when set, names a
// connection that must not receive it.
func (m Message) Event(origin, except string) (fanout.Event, error) {
	evt, err := fanout.NewEvent(TypeMessage, m.Room, origin, m)
	if err != nil {
		return fanout.Event{}, err
	}
	evt.Except = except
	return evt, nil
}

// RoomUsers is a roster snapshot: display names in join order.
type RoomUsers struct {
	Room  string   `json:"room"`
	Users []string `json:"users"`
}

type RosterEntry struct {
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// PartialRoster is the share of a room's roster held by one instance, in
// join order.
type PartialRoster struct {
	Room    string        `json:"room"`
	Members []RosterEntry `json:"members"`
}

func WelcomeText() string {
	return "Welcome to LetsTalk!"
}

func JoinedText(name string) string {
	return name + " has joined the chat"
}

func LeftText(name string) string {
	return name + " has left the chat"
}
