// Package track implements the performance-tracking event sink. Events
// are dispatched onto a bounded background queue; delivery failures are
// logged and swallowed so tracking can never affect a request's outcome.
package track

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event is one model-call performance sample.
type Event struct {
	ID           string        `json:"id"`
	Purpose      string        `json:"purpose"` // "router", "conversation", "eval"
	Model        string        `json:"model"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Latency      time.Duration `json:"latency"`
	At           time.Time     `json:"at"`
}

// Sink receives tracking events. Implementations may fail; the queue
// absorbs those failures.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// Tracker is the non-blocking front of a Sink.
type Tracker interface {
	// Track enqueues an event. It never blocks and never fails.
	Track(ev Event)
}

// NopTracker discards all events.
type NopTracker struct{}

func (NopTracker) Track(Event) {}

// LogSink writes events to the debug log. It is the default sink for
// deployments without a metrics backend.
type LogSink struct {
	Log zerolog.Logger
}

func (s LogSink) Record(_ context.Context, ev Event) error {
	s.Log.Debug().
		Str("purpose", ev.Purpose).
		Str("model", ev.Model).
		Int("input_tokens", ev.InputTokens).
		Int("output_tokens", ev.OutputTokens).
		Dur("latency", ev.Latency).
		Msg("model call")
	return nil
}

// Queue is a Tracker backed by a buffered channel and one consumer
// goroutine. When the buffer is full, events are dropped rather than
// blocking the caller.
type Queue struct {
	sink    Sink
	events  chan Event
	done    chan struct{}
	log     zerolog.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

// NewQueue starts a tracker delivering to sink. Close releases it.
func NewQueue(sink Sink, log zerolog.Logger) *Queue {
	q := &Queue{
		sink:    sink,
		events:  make(chan Event, 256),
		done:    make(chan struct{}),
		log:     log,
		timeout: 5 * time.Second,
	}
	go q.run()
	return q
}

// Track implements Tracker.
func (q *Queue) Track(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.log.Debug().Str("purpose", ev.Purpose).Msg("tracking queue closed, event dropped")
		return
	}
	select {
	case q.events <- ev:
	default:
		q.log.Debug().Str("purpose", ev.Purpose).Msg("tracking queue full, event dropped")
	}
}

// Close drains pending events and stops the consumer. Events tracked
// after Close are dropped.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.events)
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for ev := range q.events {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		if err := q.sink.Record(ctx, ev); err != nil {
			q.log.Warn().Err(err).Str("purpose", ev.Purpose).Msg("performance event delivery failed")
		}
		cancel()
	}
}
