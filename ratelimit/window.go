package ratelimit

import "time"

// window is an exact rolling counter: it keeps the admission instants of the
// last span and never more than limit of them.
type window struct {
	span  time.Duration
	limit int
	log   []time.Time
}

func newWindow(span time.Duration, limit int) *window {
	capacity := limit
	if capacity > 64 {
		capacity = 64
	}
	return &window{
		span:  span,
		limit: limit,
		log:   make([]time.Time, 0, capacity),
	}
}

// evict drops admissions that have left the window at now. An admission at t
// stops counting at exactly t+span.
func (w *window) evict(now time.Time) {
	i := 0
	for i < len(w.log) && !w.log[i].Add(w.span).After(now) {
		i++
	}
	if i > 0 {
		w.log = w.log[i:]
	}
}

// wait returns how long until the window admits one more unit.
func (w *window) wait(now time.Time) time.Duration {
	w.evict(now)
	if len(w.log) < w.limit {
		return 0
	}
	return w.log[len(w.log)-w.limit].Add(w.span).Sub(now)
}

func (w *window) add(now time.Time) {
	w.log = append(w.log, now)
}

func (w *window) count(now time.Time) int {
	w.evict(now)
	return len(w.log)
}
