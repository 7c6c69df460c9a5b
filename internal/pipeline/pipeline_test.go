package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/letstalk/internal/annotate"
	"github.com/thereayou/letstalk/internal/chat"
	"github.com/thereayou/letstalk/internal/durability"
	"github.com/thereayou/letstalk/internal/fanout"
	"github.com/thereayou/letstalk/internal/metrics"
	"github.com/thereayou/letstalk/internal/mocks"
	"github.com/thereayou/letstalk/internal/pipeline"
	"github.com/thereayou/letstalk/internal/presence"
	"github.com/thereayou/letstalk/internal/rooms"
	"go.uber.org/mock/gomock"
)

type inbox struct {
	mu       sync.Mutex
	messages map[string][]chat.Message
}

func (i *inbox) Deliver(connID string, evt fanout.Event) {
	if evt.Type != chat.TypeMessage {
		return
	}
	var msg chat.Message
	if err := evt.Decode(&msg); err != nil || msg.IsBot() {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.messages[connID] = append(i.messages[connID], msg)
}

func (i *inbox) texts(connID string) []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]string, 0, len(i.messages[connID]))
	for _, m := range i.messages[connID] {
		out = append(out, m.Text)
	}
	return out
}

type recordingArchiver struct {
	mu       sync.Mutex
	archived []chat.Message
}

func (a *recordingArchiver) ArchiveMessage(msg chat.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archived = append(a.archived, msg)
}

func setup(t *testing.T, archiver pipeline.Archiver) (*pipeline.Pipeline, *presence.Coordinator, *inbox) {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	generate, err := rooms.NewCodeGenerator(rooms.DefaultCodeLength)
	require.NoError(t, err)
	directory, err := rooms.NewDirectory(log, generate)
	require.NoError(t, err)
	require.NoError(t, directory.Import(rooms.Record{Name: "Demo", Code: "DEMO"}))

	bridge := fanout.NewLocalBridge(1024)
	box := &inbox{messages: make(map[string][]chat.Message)}
	coordinator := presence.NewCoordinator(log, "instance-a", directory, presence.NewRegistry(), bridge, box)
	t.Cleanup(func() {
		coordinator.Close()
		_ = bridge.Close()
	})

	lexicon, err := annotate.NewDefaultLexicon()
	require.NoError(t, err)
	return pipeline.New(log, coordinator, lexicon, archiver, 100), coordinator, box
}

func TestPipeline_SubmitBroadcastsAnnotatedMessage(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	archiver := &recordingArchiver{}
	p, coordinator, box := setup(t, archiver)

	_, err := coordinator.Join(ctx, "c1", "Alice", "DEMO")
	req.NoError(err)
	_, err = coordinator.Join(ctx, "c2", "Bob", "DEMO")
	req.NoError(err)

	// When Alice submits a message
	msg, err := p.Submit(ctx, "c1", "I love this great room")

	// Then it carries the sender's identity and tags
	req.NoError(err)
	req.Equal("Alice", msg.Sender)
	req.Equal("Demo", msg.Room)
	req.Equal(annotate.Positive, msg.Sentiment)
	req.Equal("😊", msg.Emoji)

	// And reaches both members, sender included
	for _, conn := range []string{"c1", "c2"} {
		req.Eventually(func() bool {
			return slices.Equal([]string{"I love this great room"}, box.texts(conn))
		}, time.Second, 5*time.Millisecond, conn)
	}

	archiver.mu.Lock()
	defer archiver.mu.Unlock()
	req.Len(archiver.archived, 1)
	req.Equal(msg.ID, archiver.archived[0].ID)
}

func TestPipeline_PreservesSubmissionOrder(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	p, coordinator, box := setup(t, nil)

	_, err := coordinator.Join(ctx, "c1", "Alice", "DEMO")
	req.NoError(err)
	_, err = coordinator.Join(ctx, "c2", "Bob", "DEMO")
	req.NoError(err)

	var sent []string
	for i := 0; i < 50; i++ {
		text := fmt.Sprintf("message %d", i)
		sent = append(sent, text)
		sender := []string{"c1", "c2"}[i%2]
		_, err := p.Submit(ctx, sender, text)
		req.NoError(err)
	}

	for _, conn := range []string{"c1", "c2"} {
		req.Eventually(func() bool {
			return len(box.texts(conn)) == len(sent)
		}, time.Second, 5*time.Millisecond)
		req.Equal(sent, box.texts(conn))
	}
}

func TestPipeline_RejectsInvalidSubmissions(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	archiver := &recordingArchiver{}
	p, coordinator, _ := setup(t, archiver)

	// A sender must be present
	_, err := p.Submit(ctx, "ghost", "hello")
	req.ErrorIs(err, presence.ErrNotPresent)

	_, err = coordinator.Join(ctx, "c1", "Alice", "DEMO")
	req.NoError(err)

	_, err = p.Submit(ctx, "c1", "   ")
	req.ErrorIs(err, pipeline.ErrEmptyMessage)

	_, err = p.Submit(ctx, "c1", strings.Repeat("a", 101))
	req.ErrorIs(err, pipeline.ErrMessageTooLong)

	req.Empty(archiver.archived)
}

func TestPipeline_BroadcastSurvivesFailingStorage(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// Given a sink that always fails
	sink := mocks.NewMockSink(ctrl)
	sink.EXPECT().SaveMessage(gomock.Any(), gomock.Any()).Return(errors.New("disk on fire")).AnyTimes()
	m := metrics.New()
	writer := durability.NewWriter(logs.GetLoggerFromLevel(slog.LevelDebug), sink, m, durability.Options{})
	writer.Start()

	p, coordinator, box := setup(t, writer)
	_, err := coordinator.Join(ctx, "c1", "Alice", "DEMO")
	req.NoError(err)
	_, err = coordinator.Join(ctx, "c2", "Bob", "DEMO")
	req.NoError(err)

	// When messages are submitted
	for _, text := range []string{"one", "two", "three"} {
		_, err := p.Submit(ctx, "c1", text)
		req.NoError(err)
	}

	// Then every member still receives them
	req.Eventually(func() bool {
		return slices.Equal([]string{"one", "two", "three"}, box.texts("c2"))
	}, time.Second, 5*time.Millisecond)

	// And the failures are counted
	writer.Stop()
	req.Equal(uint64(3), m.Snapshot()["archive_failures_total"])
}
