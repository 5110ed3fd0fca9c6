package session

import (
	"sync"
	"time"
)

// StopTimer fires a callback once after a fixed duration unless cancelled.
type StopTimer struct {
	deadline time.Time

	mu        sync.Mutex
	timer     *time.Timer
	fired     bool
	cancelled bool
}

// NewStopTimer arms fn to run after d. fn runs on its own goroutine.
func NewStopTimer(d time.Duration, fn func()) *StopTimer {
	t := &StopTimer{deadline: time.Now().Add(d)}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		if t.cancelled {
			t.mu.Unlock()
			return
		}
		t.fired = true
		t.mu.Unlock()
		fn()
	})
	return t
}

// Cancel prevents the callback from running. It reports whether this call
// did so; cancelling twice or after the callback was dispatched is a no-op.
func (t *StopTimer) Cancel() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired || t.cancelled {
		return false
	}
	t.cancelled = true
	t.timer.Stop()
	return true
}

// Fired reports whether the callback was dispatched.
func (t *StopTimer) Fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

// Deadline returns when the timer fires.
func (t *StopTimer) Deadline() time.Time {
	return t.deadline
}
