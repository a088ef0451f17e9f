// internal/notify/queue.go
package notify

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-master/internal/registry"
)

// DefaultQueueSize bounds the events waiting for a slow sink.
const DefaultQueueSize = 1024

// QueueSink hands events to a wrapped sink on its own goroutine so the caller
// never waits on a broker. When the queue is full new events are dropped.
type QueueSink struct {
	next   registry.Sink
	events chan func(registry.Sink)

	quit chan struct{}
	done chan struct{}
	once sync.Once

	dropped atomic.Uint64
	log     zerolog.Logger
}

// NewQueueSink starts the delivery goroutine. Close stops it.
func NewQueueSink(next registry.Sink, size int, log zerolog.Logger) *QueueSink {
	if size <= 0 {
		size = DefaultQueueSize
	}

	q := &QueueSink{
		next:   next,
		events: make(chan func(registry.Sink), size),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		log:    log.With().Str("component", "notify").Logger(),
	}
	go q.run()
	return q
}

func (q *QueueSink) RegisterChanged(ev registry.RegisterEvent) {
	q.enqueue(func(s registry.Sink) { s.RegisterChanged(ev) })
}

func (q *QueueSink) AttributeChanged(ev registry.AttributeEvent) {
	q.enqueue(func(s registry.Sink) { s.AttributeChanged(ev) })
}

// Dropped is the number of events discarded because the queue was full.
func (q *QueueSink) Dropped() uint64 {
	return q.dropped.Load()
}

// Close stops delivery. Events still queued are discarded.
func (q *QueueSink) Close() {
	q.once.Do(func() { close(q.quit) })
	<-q.done

	if n := len(q.events); n > 0 {
		q.log.Warn().Int("pending", n).Msg("queued changes discarded on close")
	}
}

func (q *QueueSink) enqueue(fn func(registry.Sink)) {
	select {
	case q.events <- fn:
	default:
		n := q.dropped.Add(1)
		if n == 1 || n%100 == 0 {
			q.log.Warn().Uint64("dropped", n).Msg("change queue full, dropping events")
		}
	}
}

func (q *QueueSink) run() {
	defer close(q.done)

	for {
		select {
		case <-q.quit:
			return
		case fn := <-q.events:
			fn(q.next)
		}
	}
}
