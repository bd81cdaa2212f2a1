package ratelimit

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultPerSecond is the burst ceiling used when none is configured.
	DefaultPerSecond = 2
	// DefaultPerHour is the volume ceiling used when none is configured.
	DefaultPerHour = 1200
)

var (
	// ErrInvalidLimit is returned by New when a quota is zero or negative.
	// A zero quota would block every caller forever.
	ErrInvalidLimit = errors.New("ratelimit: limit must be positive")

	// ErrCancelled is wrapped by Acquire when the caller's context ends
	// before a unit is admitted.
	ErrCancelled = errors.New("ratelimit: acquire cancelled")
)

// Limits holds the two independent ceilings. Either may bind first.
type Limits struct {
	PerSecond int
	PerHour   int
}

// DefaultLimits returns 2 per second and 1200 per hour.
func DefaultLimits() Limits {
	return Limits{PerSecond: DefaultPerSecond, PerHour: DefaultPerHour}
}

// Validate reports whether both ceilings are positive.
func (l Limits) Validate() error {
	if l.PerSecond <= 0 {
		return fmt.Errorf("%w: per-second limit is %d", ErrInvalidLimit, l.PerSecond)
	}
	if l.PerHour <= 0 {
		return fmt.Errorf("%w: per-hour limit is %d", ErrInvalidLimit, l.PerHour)
	}
	return nil
}

// Logger is an interface for optional logging in RateLimiter.
type Logger interface {
	Printf(format string, args ...any)
}

// Option is a functional option for configuring RateLimiter.
type Option func(*RateLimiter)

// WithClock overrides time.Now. Timers still run on the real clock.
func WithClock(now func() time.Time) Option {
	return func(l *RateLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets a logger for wait notices. Notices are throttled to one
// per second per limiter.
func WithLogger(logger Logger) Option {
	return func(l *RateLimiter) {
		l.logger = logger
	}
}

// WithLoggingEnabled logs wait notices through log.Default().
func WithLoggingEnabled() Option {
	return func(l *RateLimiter) {
		l.logger = log.Default()
	}
}

// WithRecorder reports every admission decision to r under key. r runs on
// the caller's goroutine; use NewAsyncRecorder for network-backed recorders.
func WithRecorder(r Recorder, key string) Option {
	return func(l *RateLimiter) {
		l.recorder = r
		l.key = key
	}
}

// RateLimiter admits units of work under a rolling one-second window and a
// rolling one-hour window at the same time. Waiters are served in arrival
// order. It is safe for concurrent use.
type RateLimiter struct {
	mu      sync.Mutex
	second  *window
	hour    *window
	waiters list.List // of *waiter, FIFO

	limits   Limits
	now      func() time.Time
	logger   Logger
	waitLog  rate.Sometimes
	recorder Recorder
	key      string
}

type waiter struct {
	// wake is buffered so a hand-off is never lost between the head check
	// and the select.
	wake chan struct{}
}

// New creates a RateLimiter. It fails with ErrInvalidLimit when either
// ceiling is not positive.
func New(limits Limits, opts ...Option) (*RateLimiter, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}

	l := &RateLimiter{
		second:  newWindow(time.Second, limits.PerSecond),
		hour:    newWindow(time.Hour, limits.PerHour),
		limits:  limits,
		now:     time.Now,
		waitLog: rate.Sometimes{Interval: time.Second},
	}

	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// Limits returns the configured ceilings.
func (l *RateLimiter) Limits() Limits {
	return l.limits
}

// Acquire blocks until both windows admit one more unit, then consumes it.
// If ctx ends first, Acquire returns an error wrapping ErrCancelled and
// ctx.Err() and no unit is consumed.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		l.record(ctx, false, 0)
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	// Timestamps are taken under the lock so the window logs stay sorted.
	l.mu.Lock()
	start := l.now()
	if l.waiters.Len() == 0 && l.delayLocked(start) == 0 {
		l.consumeLocked(start)
		l.mu.Unlock()
		l.record(ctx, true, 0)
		return nil
	}
	w := &waiter{wake: make(chan struct{}, 1)}
	elem := l.waiters.PushBack(w)
	queued := l.waiters.Len()
	l.mu.Unlock()

	l.logWait(queued)

	for {
		l.mu.Lock()
		if l.waiters.Front() != elem {
			l.mu.Unlock()
			select {
			case <-w.wake:
				continue
			case <-ctx.Done():
				return l.abandon(ctx, elem, start)
			}
		}

		now := l.now()
		d := l.delayLocked(now)
		if d <= 0 {
			l.consumeLocked(now)
			l.waiters.Remove(elem)
			l.wakeHeadLocked()
			l.mu.Unlock()
			l.record(ctx, true, now.Sub(start))
			return nil
		}
		l.mu.Unlock()

		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-w.wake:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return l.abandon(ctx, elem, start)
		}
	}
}

// TryAcquire admits one unit only if nobody is waiting and both windows have
// room right now. It never blocks.
func (l *RateLimiter) TryAcquire() bool {
	l.mu.Lock()
	now := l.now()
	ok := l.waiters.Len() == 0 && l.delayLocked(now) == 0
	if ok {
		l.consumeLocked(now)
	}
	l.mu.Unlock()

	l.record(context.Background(), ok, 0)
	return ok
}

// Delay returns how long an uncontended Acquire would wait right now.
func (l *RateLimiter) Delay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.delayLocked(l.now())
}

// Usage returns the number of admissions currently counted in the one-second
// and one-hour windows.
func (l *RateLimiter) Usage() (perSecond, perHour int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	return l.second.count(now), l.hour.count(now)
}

// Waiting returns the number of callers queued in Acquire.
func (l *RateLimiter) Waiting() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.waiters.Len()
}

func (l *RateLimiter) delayLocked(now time.Time) time.Duration {
	return max(l.second.wait(now), l.hour.wait(now))
}

func (l *RateLimiter) consumeLocked(now time.Time) {
	l.second.add(now)
	l.hour.add(now)
}

func (l *RateLimiter) wakeHeadLocked() {
	front := l.waiters.Front()
	if front == nil {
		return
	}
	select {
	case front.Value.(*waiter).wake <- struct{}{}:
	default:
	}
}

// abandon removes a cancelled waiter and passes headship on if needed.
func (l *RateLimiter) abandon(ctx context.Context, elem *list.Element, start time.Time) error {
	l.mu.Lock()
	wasHead := l.waiters.Front() == elem
	l.waiters.Remove(elem)
	if wasHead {
		l.wakeHeadLocked()
	}
	l.mu.Unlock()

	l.record(ctx, false, l.now().Sub(start))
	return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
}

func (l *RateLimiter) logWait(queued int) {
	if l.logger == nil {
		return
	}
	l.waitLog.Do(func() {
		l.logger.Printf("ratelimit: quota exhausted (%d/s, %d/h), %d caller(s) waiting", l.limits.PerSecond, l.limits.PerHour, queued)
	})
}

func (l *RateLimiter) record(ctx context.Context, admitted bool, waited time.Duration) {
	if l.recorder == nil {
		return
	}

	ev := Event{
		Key:      l.key,
		Admitted: admitted,
		Waited:   waited,
		At:       l.now(),
	}
	if err := l.recorder.Record(context.WithoutCancel(ctx), ev); err != nil && l.logger != nil {
		l.logger.Printf("ratelimit: failed to record admission: %v", err)
	}
}
