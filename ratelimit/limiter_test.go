package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stubLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *stubLogger) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf(format, args...))
}

func (l *stubLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

func mustNew(tb testing.TB, limits Limits, opts ...Option) *RateLimiter {
	tb.Helper()

	l, err := New(limits, opts...)
	if err != nil {
		tb.Fatalf("New failed: %v", err)
	}
	return l
}

// waitForWaiters polls until n callers are queued.
func waitForWaiters(tb testing.TB, l *RateLimiter, n int) {
	tb.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for l.Waiting() != n {
		if time.Now().After(deadline) {
			tb.Fatalf("expected %d waiters, got %d", n, l.Waiting())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNew_InvalidLimits(t *testing.T) {
	tests := []struct {
		name   string
		limits Limits
	}{
		{name: "zero per second", limits: Limits{PerSecond: 0, PerHour: 10}},
		{name: "zero per hour", limits: Limits{PerSecond: 1, PerHour: 0}},
		{name: "negative per second", limits: Limits{PerSecond: -1, PerHour: 10}},
		{name: "negative per hour", limits: Limits{PerSecond: 1, PerHour: -3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.limits)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalidLimit) {
				t.Errorf("expected ErrInvalidLimit, got %v", err)
			}
			if l != nil {
				t.Error("limiter should be nil on error")
			}
		})
	}
}

func TestDefaultLimits(t *testing.T) {
	l := mustNew(t, DefaultLimits())

	if got := l.Limits(); got.PerSecond != 2 || got.PerHour != 1200 {
		t.Errorf("unexpected defaults: %+v", got)
	}
}

func TestAcquire_PerSecondBurst(t *testing.T) {
	l := mustNew(t, Limits{PerSecond: 2, PerHour: 1000})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 2; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("Acquire %d failed: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("first two acquisitions should be immediate, took %v", elapsed)
	}

	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("third Acquire failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Errorf("third acquisition should wait for the next second, took %v", elapsed)
	}
}

func TestAcquire_PerHourCeiling(t *testing.T) {
	l := mustNew(t, Limits{PerSecond: 1000, PerHour: 5})

	for i := 0; i < 5; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire %d failed: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded in chain, got %v", err)
	}

	perSecond, perHour := l.Usage()
	if perHour != 5 {
		t.Errorf("cancelled waiter must not consume: expected 5 per hour, got %d", perHour)
	}
	if perSecond > 5 {
		t.Errorf("unexpected per-second usage %d", perSecond)
	}

	if d := l.Delay(); d < 59*time.Minute {
		t.Errorf("expected close to an hour of delay, got %v", d)
	}
}

func TestAcquire_AlreadyCancelled(t *testing.T) {
	l := mustNew(t, DefaultLimits())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Acquire(ctx)
	if !errors.Is(err, ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}

	if _, perHour := l.Usage(); perHour != 0 {
		t.Errorf("expected no consumption, got %d", perHour)
	}
}

func TestAcquire_NilContext(t *testing.T) {
	l := mustNew(t, DefaultLimits())

	//lint:ignore SA1012 intentionally verify nil context falls back to background
	//nolint:staticcheck // golangci-lint
	if err := l.Acquire(nil); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
}

func TestAcquire_FIFO(t *testing.T) {
	l := mustNew(t, Limits{PerSecond: 1, PerHour: 100})

	if !l.TryAcquire() {
		t.Fatal("first TryAcquire should succeed")
	}

	const waiters = 3
	order := make(chan int, waiters)
	var wg sync.WaitGroup

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := l.Acquire(context.Background()); err != nil {
				t.Errorf("waiter %d failed: %v", id, err)
				return
			}
			order <- id
		}(i)
		waitForWaiters(t, l, i+1)
	}

	wg.Wait()
	close(order)

	want := 0
	for id := range order {
		if id != want {
			t.Errorf("expected waiter %d to be admitted, got %d", want, id)
		}
		want++
	}
}

func TestAcquire_CancelledHeadHandsOver(t *testing.T) {
	l := mustNew(t, Limits{PerSecond: 1, PerHour: 100})

	if !l.TryAcquire() {
		t.Fatal("first TryAcquire should succeed")
	}

	headCtx, cancelHead := context.WithCancel(context.Background())
	headErr := make(chan error, 1)
	go func() { headErr <- l.Acquire(headCtx) }()
	waitForWaiters(t, l, 1)

	nextErr := make(chan error, 1)
	go func() { nextErr <- l.Acquire(context.Background()) }()
	waitForWaiters(t, l, 2)

	cancelHead()

	select {
	case err := <-headErr:
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("expected ErrCancelled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled head did not return")
	}

	select {
	case err := <-nextErr:
		if err != nil {
			t.Fatalf("second waiter failed: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("second waiter was never admitted")
	}

	if _, perHour := l.Usage(); perHour != 2 {
		t.Errorf("expected 2 admissions, got %d", perHour)
	}
	if l.Waiting() != 0 {
		t.Errorf("expected empty queue, got %d", l.Waiting())
	}
}

func TestTryAcquire_RollingWindowEdges(t *testing.T) {
	clock := newFakeClock()
	l := mustNew(t, Limits{PerSecond: 2, PerHour: 1000}, WithClock(clock.Now))

	if !l.TryAcquire() || !l.TryAcquire() {
		t.Fatal("first two TryAcquire calls should succeed")
	}
	if l.TryAcquire() {
		t.Fatal("third TryAcquire should be rejected")
	}

	if d := l.Delay(); d != time.Second {
		t.Errorf("expected delay 1s, got %v", d)
	}

	clock.Advance(999 * time.Millisecond)
	if l.TryAcquire() {
		t.Fatal("window has not rolled yet")
	}

	clock.Advance(time.Millisecond)
	if !l.TryAcquire() {
		t.Fatal("window should admit once the first admission ages out")
	}
}

func TestTryAcquire_RollingNotFixed(t *testing.T) {
	clock := newFakeClock()
	l := mustNew(t, Limits{PerSecond: 2, PerHour: 1000}, WithClock(clock.Now))

	if !l.TryAcquire() {
		t.Fatal("first TryAcquire should succeed")
	}
	clock.Advance(600 * time.Millisecond)
	if !l.TryAcquire() {
		t.Fatal("second TryAcquire should succeed")
	}

	// A fixed calendar window would reset here; a rolling one still counts
	// the admission made 600ms ago.
	clock.Advance(500 * time.Millisecond)
	if !l.TryAcquire() {
		t.Fatal("first admission aged out, one slot should be free")
	}
	if l.TryAcquire() {
		t.Fatal("second admission is still inside the window")
	}
}

func TestTryAcquire_HourWindow(t *testing.T) {
	clock := newFakeClock()
	l := mustNew(t, Limits{PerSecond: 1000, PerHour: 5}, WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		if !l.TryAcquire() {
			t.Fatalf("TryAcquire %d should succeed", i)
		}
		clock.Advance(time.Minute)
	}

	if l.TryAcquire() {
		t.Fatal("sixth TryAcquire within the hour should be rejected")
	}
	if d := l.Delay(); d != 55*time.Minute {
		t.Errorf("expected 55m delay, got %v", d)
	}

	clock.Advance(55 * time.Minute)
	if !l.TryAcquire() {
		t.Fatal("oldest admission aged out, TryAcquire should succeed")
	}
}

func TestTryAcquire_DoesNotJumpQueue(t *testing.T) {
	l := mustNew(t, Limits{PerSecond: 1, PerHour: 100})

	if !l.TryAcquire() {
		t.Fatal("first TryAcquire should succeed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Acquire(ctx) }()
	waitForWaiters(t, l, 1)

	if l.TryAcquire() {
		t.Error("TryAcquire must not admit while callers are queued")
	}

	cancel()
	<-done
}

func TestTryAcquire_Concurrent(t *testing.T) {
	clock := newFakeClock()
	l := mustNew(t, Limits{PerSecond: 10, PerHour: 1000}, WithClock(clock.Now))

	const goroutines = 50
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire() {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 10 {
		t.Errorf("expected exactly 10 admissions, got %d", admitted)
	}
}

func TestAcquire_Concurrent(t *testing.T) {
	l := mustNew(t, Limits{PerSecond: 20, PerHour: 1000})

	const goroutines = 20
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("20 acquisitions under a 20/s ceiling should not wait, took %v", elapsed)
	}
	if perSecond, _ := l.Usage(); perSecond != goroutines {
		t.Errorf("expected %d admissions, got %d", goroutines, perSecond)
	}
}

func TestClockReadUnderLock(t *testing.T) {
	clock := newFakeClock()

	var (
		l        *RateLimiter
		unlocked atomic.Int32
	)
	l = mustNew(t, Limits{PerSecond: 1, PerHour: 100}, WithClock(func() time.Time {
		if l.mu.TryLock() {
			l.mu.Unlock()
			unlocked.Add(1)
		}
		return clock.Now()
	}))

	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	clock.Advance(time.Second)
	if !l.TryAcquire() {
		t.Fatal("TryAcquire should succeed after the window moved")
	}
	_ = l.Delay()
	_, _ = l.Usage()

	if n := unlocked.Load(); n != 0 {
		t.Errorf("clock read %d time(s) without holding the limiter lock", n)
	}
}

func TestAcquire_ConcurrentLogStaysSorted(t *testing.T) {
	l := mustNew(t, Limits{PerSecond: 1000, PerHour: 100000})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if err := l.Acquire(context.Background()); err != nil {
					t.Errorf("Acquire failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, w := range []*window{l.second, l.hour} {
		for i := 1; i < len(w.log); i++ {
			if w.log[i].Before(w.log[i-1]) {
				t.Fatalf("%v window log out of order at %d", w.span, i)
			}
		}
	}
	if len(l.hour.log) != 500 {
		t.Errorf("expected 500 admissions in the hour window, got %d", len(l.hour.log))
	}
}

func TestWithLogger_ThrottlesWaitNotices(t *testing.T) {
	logger := &stubLogger{}
	l := mustNew(t, Limits{PerSecond: 1, PerHour: 100}, WithLogger(logger))

	if !l.TryAcquire() {
		t.Fatal("first TryAcquire should succeed")
	}

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		_ = l.Acquire(ctx)
		cancel()
	}

	if got := logger.count(); got != 1 {
		t.Errorf("expected a single throttled wait notice, got %d", got)
	}
}

func TestWithLoggingEnabled_SetsLogger(t *testing.T) {
	l := mustNew(t, DefaultLimits(), WithLoggingEnabled())
	if l.logger == nil {
		t.Fatal("expected logger to be set")
	}
}

func BenchmarkTryAcquire(b *testing.B) {
	clock := newFakeClock()
	l := mustNew(b, Limits{PerSecond: 1, PerHour: 1}, WithClock(clock.Now))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		clock.Advance(time.Hour)
		_ = l.TryAcquire()
	}
}
