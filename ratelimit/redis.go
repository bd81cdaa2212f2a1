package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRecorder writes admission counters to Redis hashes:
//
//	<prefix>:total             admitted / rejected / waited_ms
//	<prefix>:minute:<yyyymmddhhmm>  same fields, expiring after ttl
//	<prefix>:key:<key>         same fields, expiring after ttl
//
// Each Record is one pipelined round trip. Wrap it in an AsyncRecorder to
// keep that round trip off the Acquire path.
type RedisRecorder struct {
	rdb     redis.Cmdable
	prefix  string
	ttl     time.Duration
	timeout time.Duration
}

// RedisOption configures a RedisRecorder.
type RedisOption func(*RedisRecorder)

// WithRedisPrefix sets the key prefix. Default "tokengate:ratelimit".
func WithRedisPrefix(prefix string) RedisOption {
	return func(r *RedisRecorder) { r.prefix = strings.Trim(prefix, ":") }
}

// WithRedisTTL sets the expiry of minute and per-key hashes. Default 24h;
// zero disables expiry.
func WithRedisTTL(d time.Duration) RedisOption {
	return func(r *RedisRecorder) { r.ttl = d }
}

// WithRedisTimeout bounds each Record call. Default 500ms.
func WithRedisTimeout(d time.Duration) RedisOption {
	return func(r *RedisRecorder) { r.timeout = d }
}

// NewRedisRecorder creates a recorder on top of any go-redis client.
func NewRedisRecorder(rdb redis.Cmdable, opts ...RedisOption) *RedisRecorder {
	r := &RedisRecorder{
		rdb:     rdb,
		prefix:  "tokengate:ratelimit",
		ttl:     24 * time.Hour,
		timeout: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record implements Recorder.
func (r *RedisRecorder) Record(ctx context.Context, ev Event) error {
	if r == nil || r.rdb == nil {
		return nil
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "rejected"
	if ev.Admitted {
		field = "admitted"
	}
	waitedMs := ev.Waited.Milliseconds()

	keys := []string{r.prefix + ":total"}
	expiring := []string{fmt.Sprintf("%s:minute:%s", r.prefix, at.UTC().Format("200601021504"))}
	if k := strings.TrimSpace(ev.Key); k != "" {
		expiring = append(expiring, r.prefix+":key:"+k)
	}
	keys = append(keys, expiring...)

	pipe := r.rdb.Pipeline()
	for _, key := range keys {
		pipe.HIncrBy(ctx, key, field, 1)
		if waitedMs > 0 {
			pipe.HIncrBy(ctx, key, "waited_ms", waitedMs)
		}
	}
	if r.ttl > 0 {
		for _, key := range expiring {
			pipe.Expire(ctx, key, r.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ratelimit: redis record failed: %w", err)
	}
	return nil
}
