package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Event is one admission decision.
type Event struct {
	// Key identifies the limiter, typically the OAuth2 client ID.
	Key string
	// Admitted is false for TryAcquire rejections and cancelled waits.
	Admitted bool
	// Waited is the time spent queued before the decision.
	Waited time.Duration
	At     time.Time
}

// Recorder persists admission statistics. Implementations are called
// synchronously from Acquire and TryAcquire, after the limiter lock is
// released, so their latency is added to every admission. Wrap slow ones in
// an AsyncRecorder. Errors are logged and otherwise ignored.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Counters aggregates decisions for one key.
type Counters struct {
	Admitted int64
	Rejected int64
	Waited   time.Duration
}

// MemoryRecorder keeps counters in process memory. It does not expire
// anything and is meant for tests and diagnostics.
type MemoryRecorder struct {
	mu    sync.Mutex
	total Counters
	byKey map[string]Counters
}

// NewMemoryRecorder creates an empty MemoryRecorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{byKey: make(map[string]Counters)}
}

// Record implements Recorder.
func (r *MemoryRecorder) Record(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.byKey[ev.Key]
	if ev.Admitted {
		r.total.Admitted++
		c.Admitted++
	} else {
		r.total.Rejected++
		c.Rejected++
	}
	r.total.Waited += ev.Waited
	c.Waited += ev.Waited
	r.byKey[ev.Key] = c

	return nil
}

// Total returns counters across all keys.
func (r *MemoryRecorder) Total() Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// ByKey returns a copy of the per-key counters.
func (r *MemoryRecorder) ByKey() map[string]Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Counters, len(r.byKey))
	for k, v := range r.byKey {
		out[k] = v
	}
	return out
}
