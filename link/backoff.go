package link

import (
	"sync"
	"time"
)

const (
	DefaultBackoffMin  = time.Second     // Least time between connection attempts
	DefaultBackoffHard = 5 * time.Second // Wait after a failed attempt or a dropped link
)

// Backoff spaces out connection attempts.
type Backoff struct {
	Min, Hard time.Duration

	mu   sync.Mutex
	next time.Time
	now  func() time.Time
}

// NewBackoff returns a Backoff that allows an attempt immediately.
// Non-positive durations are replaced by the defaults.
func NewBackoff(min, hard time.Duration) *Backoff {
	if min <= 0 {
		min = DefaultBackoffMin
	}
	if hard <= 0 {
		hard = DefaultBackoffHard
	}
	return &Backoff{Min: min, Hard: hard, now: time.Now}
}

// Attempt reports whether an attempt may be made now and, if so, starts the
// Min interval before the next one.
func (b *Backoff) Attempt() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.now()
	if t.Before(b.next) {
		return false
	}
	b.next = t.Add(b.Min)
	return true
}

// Failed pushes the next attempt out by Hard.
func (b *Backoff) Failed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next = b.now().Add(b.Hard)
}

// Reset allows an attempt immediately.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next = time.Time{}
}
