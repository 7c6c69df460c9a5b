package chat_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/letstalk/internal/chat"
	"github.com/thereayou/letstalk/internal/fanout"
)

func TestMessage_Event(t *testing.T) {
	req := require.New(t)
	msg := chat.NewMessage("Alice", "Demo", "hi", chat.Tags{Sentiment: "neutral", Emoji: "😐"})
	req.NotEqual(uuid.Nil, msg.ID)
	req.False(msg.IsBot())

	evt, err := msg.Event("instance-a", "c1")
	req.NoError(err)
	req.Equal(chat.TypeMessage, evt.Type)
	req.Equal("Demo", evt.Room)
	req.Equal("instance-a", evt.Origin)
	req.Equal("c1", evt.Except)

	var decoded chat.Message
	req.NoError(evt.Decode(&decoded))
	req.Equal(msg.ID, decoded.ID)
	req.Equal("Alice", decoded.Sender)
	req.Equal("neutral", decoded.Sentiment)
	req.True(msg.Timestamp.Equal(decoded.Timestamp))
}

func TestMessage_WireFormat(t *testing.T) {
	evt, err := chat.NewMessage("Alice", "Demo", "hi", chat.Tags{Emoji: "😐"}).Event("a", "")
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, fanout.Event{Data: evt.Data}.Decode(&fields))
	require.Equal(t, "Alice", fields["username"])
	require.Equal(t, "hi", fields["text"])
	require.Contains(t, fields, "time")
	require.NotContains(t, fields, "language")
}

func TestBotMessage(t *testing.T) {
	req := require.New(t)
	msg := chat.NewBotMessage("Demo", chat.JoinedText("Bob"))

	req.True(msg.IsBot())
	req.Equal("LetsTalk Bot", msg.Sender)
	req.Equal("Bob has joined the chat", msg.Text)
	req.Equal("Bob has left the chat", chat.LeftText("Bob"))
	req.Equal("Welcome to LetsTalk!", chat.WelcomeText())
}
