// Package backoff provides the reconnection delay policy shared by both
// chat transports. Each transport owns its own instance; a failure on one
// never changes the other's delay.
package backoff

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Backoff produces exponentially increasing delays between reconnection
// attempts. The first NextDelay returns the base delay; each subsequent call
// doubles it up to the cap. Reset returns the sequence to the base and is
// called after a successful handshake.
type Backoff struct {
	mu      sync.Mutex
	base    time.Duration
	max     time.Duration
	current time.Duration
}

// New creates a Backoff starting at base and capped at max. A non-positive
// base falls back to 1s, a cap below the base is raised to the base.
func New(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return &Backoff{
		base:    base,
		max:     max,
		current: base,
	}
}

// NextDelay returns the delay to wait before the next attempt and advances
// the sequence (double, capped at max).
func (b *Backoff) NextDelay() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := b.current
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

// Reset returns the sequence to the base delay.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.base
}

// Current reports the delay the next NextDelay call would return.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Jitter spreads a delay over [d/2, 3d/2) so that many clients rescheduled
// by the same server outage do not reconnect in lockstep.
func Jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int64N(int64(d)))
}
