// Package ratelimit budgets calls against the paid summarization backend.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Limiter is a windowed request budget. The counter resets when the window
// elapses; a max of zero disables the limit.
type Limiter struct {
	mu        sync.Mutex
	count     int
	max       int
	window    time.Duration
	resetTime time.Time
	now       func() time.Time
}

func New(max int, window time.Duration) *Limiter {
	l := &Limiter{max: max, window: window, now: time.Now}
	l.resetTime = l.now().Add(window)
	return l
}

// Take consumes one request from the budget or reports that the window is
// exhausted.
func (l *Limiter) Take() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.checkReset()

	if l.max > 0 && l.count >= l.max {
		return fmt.Errorf("rate limit exhausted (%d/%d until %s)", l.count, l.max, l.resetTime.Format(time.RFC3339))
	}
	l.count++
	return nil
}

// Remaining reports how many requests are left in the current window; -1
// means unlimited.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.checkReset()
	if l.max <= 0 {
		return -1
	}
	return l.max - l.count
}

func (l *Limiter) checkReset() {
	if l.now().After(l.resetTime) {
		l.count = 0
		l.resetTime = l.now().Add(l.window)
	}
}

// SetClock overrides the clock and re-anchors the current window; tests only.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	l.resetTime = now().Add(l.window)
}
