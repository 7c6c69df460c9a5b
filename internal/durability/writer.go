//go:generate go run go.uber.org/mock/mockgen -source=writer.go -destination=../mocks/mock_durability.go -package=mocks

// Package durability persists accepted messages and created rooms off the
// delivery path. Writes are not retried: a failed write is logged, counted
// and dropped, never surfaced to the sender.
package durability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/thereayou/letstalk/internal/chat"
	"github.com/thereayou/letstalk/internal/rooms"
)

const (
	DefaultQueueSize = 1024
	DefaultWorkers   = 2
	DefaultTimeout   = 5 * time.Second
)

var (
	ErrDurabilityFailure = errors.New("durability failure")
	ErrQueueFull         = errors.New("archive queue full")
	ErrWriterStopped     = errors.New("archive writer stopped")
)

// Sink is the storage behind the writer.
type Sink interface {
	SaveMessage(ctx context.Context, msg chat.Message) error
	SaveRoom(ctx context.Context, record rooms.Record) error
}

// Reporter counts what the writer could not persist.
type Reporter interface {
	IncArchiveFailure()
	IncArchiveDropped()
}

type Options struct {
	QueueSize int
	Workers   int
	Timeout   time.Duration
}

type job struct {
	msg  *chat.Message
	room *rooms.Record
}

func (j job) String() string {
	if j.msg != nil {
		return "message " + j.msg.ID.String()
	}
	return "room " + j.room.Name
}

// Writer drains a bounded queue into a Sink with a fixed set of workers.
type Writer struct {
	sink     Sink
	reporter Reporter
	log      *slog.Logger
	timeout  time.Duration
	workers  int

	mu      sync.RWMutex
	queue   chan job
	stopped bool
	started bool
	wg      sync.WaitGroup
}

func NewWriter(log *slog.Logger, sink Sink, reporter Reporter, opts Options) *Writer {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Writer{
		sink:     sink,
		reporter: reporter,
		log:      log,
		timeout:  opts.Timeout,
		workers:  opts.Workers,
		queue:    make(chan job, opts.QueueSize),
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (w *Writer) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.run()
	}
}

// Stop refuses new work, lets the workers drain what is queued and waits for
// them.
func (w *Writer) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.queue)
	w.mu.Unlock()

	w.wg.Wait()
}

// ArchiveMessage queues msg. System notices are not stored.
func (w *Writer) ArchiveMessage(msg chat.Message) {
	if msg.IsBot() {
		return
	}
	w.enqueue(job{msg: &msg})
}

// RoomCreated queues a freshly created room.
func (w *Writer) RoomCreated(record rooms.Record) {
	w.enqueue(job{room: &record})
}

func (w *Writer) enqueue(j job) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		w.drop(j, ErrWriterStopped)
		return
	}
	select {
	case w.queue <- j:
	default:
		w.drop(j, ErrQueueFull)
	}
}

func (w *Writer) drop(j job, reason error) {
	w.log.Warn("Archive write dropped", "item", j.String(), "reason", reason)
	if w.reporter != nil {
		w.reporter.IncArchiveDropped()
	}
}

func (w *Writer) run() {
	defer w.wg.Done()
	for j := range w.queue {
		if err := w.write(j); err != nil {
			w.log.Error("Archive write failed", "item", j.String(), "error", err)
			if w.reporter != nil {
				w.reporter.IncArchiveFailure()
			}
		}
	}
}

func (w *Writer) write(j job) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	var err error
	switch {
	case j.msg != nil:
		err = w.sink.SaveMessage(ctx, *j.msg)
	case j.room != nil:
		err = w.sink.SaveRoom(ctx, *j.room)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDurabilityFailure, j, err)
	}
	return nil
}
