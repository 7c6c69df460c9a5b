package fanout

import (
	"encoding/json"
	"time"
)

// EventType names the payload carried in Event.Data.
type EventType string

// DirectoryChannel carries room directory announcements between instances.
const DirectoryChannel = "directory"

// RoomChannel returns the channel carrying a room's events.
func RoomChannel(room string) string {
	return "room:" + room
}

// Event is the envelope replicated across instances. Origin identifies the
// publishing instance, Except an optional connection that must not receive it.
type Event struct {
	Type      EventType       `json:"type"`
	Room      string          `json:"room,omitempty"`
	Origin    string          `json:"origin"`
	Except    string          `json:"except,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent marshals data into a fresh envelope.
func NewEvent(eventType EventType, room, origin string, data any) (Event, error) {
	evt := Event{
		Type:      eventType,
		Room:      room,
		Origin:    origin,
		Timestamp: time.Now().UTC(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Event{}, err
		}
		evt.Data = raw
	}
	return evt, nil
}

// Decode unmarshals the event payload into dst.
func (e Event) Decode(dst any) error {
	return json.Unmarshal(e.Data, dst)
}
