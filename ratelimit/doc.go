// Package ratelimit implements admission control under two simultaneous
// rolling-window quotas: a burst ceiling per second and a volume ceiling per
// hour.
//
// One RateLimiter is attached to every access token issued by oauth2client;
// it is discarded together with the token on refresh.
//
// # Quick Start
//
//	lim, err := ratelimit.New(ratelimit.Limits{PerSecond: 2, PerHour: 1200})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := lim.Acquire(ctx); err != nil {
//	    return err // wraps ratelimit.ErrCancelled
//	}
//	// issue the call
//
// # Semantics
//
//   - Both windows are exact: an admission at t counts until t+1s and t+1h.
//   - Acquire is FIFO; a cancelled waiter consumes nothing and never delays
//     the callers behind it.
//   - TryAcquire never blocks and never jumps the queue.
//   - Admission decisions can be exported through a Recorder (MemoryRecorder,
//     RedisRecorder). AsyncRecorder moves a slow recorder off the Acquire path.
package ratelimit
