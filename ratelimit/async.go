package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// DefaultAsyncBuffer is the queue length used when NewAsyncRecorder gets a
// non-positive buffer.
const DefaultAsyncBuffer = 1024

var (
	// ErrRecorderFull is returned by AsyncRecorder.Record when the queue is
	// full. The event is dropped.
	ErrRecorderFull = errors.New("ratelimit: recorder queue full, event dropped")

	// ErrRecorderClosed is returned by AsyncRecorder.Record after Close.
	ErrRecorderClosed = errors.New("ratelimit: recorder closed")
)

// AsyncRecorder forwards events to another Recorder from a single background
// goroutine, so a network-backed recorder such as RedisRecorder adds no
// latency to Acquire. Events are delivered in order. When the queue is full
// new events are dropped rather than blocking the caller.
//
// Usage:
//
//	rec := ratelimit.NewAsyncRecorder(ratelimit.NewRedisRecorder(rdb), 0)
//	defer rec.Close()
type AsyncRecorder struct {
	next   Recorder
	events chan Event
	done   chan struct{}
	logger Logger

	mu     sync.RWMutex
	closed bool

	dropped atomic.Int64
}

// AsyncOption configures an AsyncRecorder.
type AsyncOption func(*AsyncRecorder)

// WithAsyncLogger logs errors returned by the wrapped recorder.
func WithAsyncLogger(logger Logger) AsyncOption {
	return func(r *AsyncRecorder) {
		r.logger = logger
	}
}

// NewAsyncRecorder starts the delivery goroutine. Call Close to flush queued
// events and stop it.
func NewAsyncRecorder(next Recorder, buffer int, opts ...AsyncOption) *AsyncRecorder {
	if buffer <= 0 {
		buffer = DefaultAsyncBuffer
	}

	r := &AsyncRecorder{
		next:   next,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	go r.run()

	return r
}

// Record queues ev without blocking.
func (r *AsyncRecorder) Record(_ context.Context, ev Event) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrRecorderClosed
	}

	select {
	case r.events <- ev:
		return nil
	default:
		r.dropped.Add(1)
		return ErrRecorderFull
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (r *AsyncRecorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops accepting events and waits until the queued ones have been
// delivered. It is safe to call more than once.
func (r *AsyncRecorder) Close() error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	r.mu.Unlock()

	<-r.done
	return nil
}

func (r *AsyncRecorder) run() {
	defer close(r.done)

	for ev := range r.events {
		if r.next == nil {
			continue
		}
		if err := r.next.Record(context.Background(), ev); err != nil && r.logger != nil {
			r.logger.Printf("ratelimit: async recorder: %v", err)
		}
	}
}
