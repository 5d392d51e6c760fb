package queue

import (
	"sync"
	"time"
)

// Window is a sliding-window rate limiter. It keeps the instants of recent
// sends and allows a new one only while fewer than limit sends happened in
// the trailing span. Unlike a token bucket it never lets a burst borrow
// against future capacity: exactly limit sends fit in any span-sized
// interval.
type Window struct {
	mu     sync.Mutex
	limit  int
	span   time.Duration
	stamps []time.Time

	now func() time.Time // swapped in tests
}

// NewWindow creates a limiter admitting at most limit sends per span.
func NewWindow(limit int, span time.Duration) *Window {
	if limit < 1 {
		limit = 1
	}
	if span <= 0 {
		span = time.Second
	}
	return &Window{
		limit:  limit,
		span:   span,
		stamps: make([]time.Time, 0, limit),
		now:    time.Now,
	}
}

// Allow reports whether a send may happen now, recording it if so. A false
// return records nothing; the caller retries later.
func (w *Window) Allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.prune(now)
	if len(w.stamps) >= w.limit {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

// Headroom returns how many sends the current window still admits.
func (w *Window) Headroom() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(w.now())
	return w.limit - len(w.stamps)
}

// prune drops instants older than span. Caller holds mu.
func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}
