package util

import (
	"sync"
	"time"
)

// IdleTimer runs a callback once after a period without activity.
// Every Touch pushes the deadline back by the full duration.
//
// Example usage:
//
//	idle := NewIdleTimer(30*time.Second, func() {
//	    endCall("inactivity timeout")
//	})
//	defer idle.Stop()
//
//	for chunk := range chunks {
//	    idle.Touch()
//	    forward(chunk)
//	}
type IdleTimer struct {
	duration time.Duration
	timer    *time.Timer
	mu       sync.Mutex
	stopped  bool
	fired    bool
}

// NewIdleTimer arms a timer that calls fn after duration of inactivity.
// fn runs on its own goroutine, at most once.
func NewIdleTimer(duration time.Duration, fn func()) *IdleTimer {
	t := &IdleTimer{duration: duration}
	t.timer = time.AfterFunc(duration, func() {
		t.mu.Lock()
		if t.stopped || t.fired {
			t.mu.Unlock()
			return
		}
		t.fired = true
		t.mu.Unlock()
		fn()
	})
	return t
}

// Touch records activity and restarts the countdown. No-op once the timer
// has fired or been stopped.
func (t *IdleTimer) Touch() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped || t.fired {
		return
	}
	t.timer.Reset(t.duration)
}

// Stop disarms the timer. Safe to call more than once.
func (t *IdleTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.stopped {
		t.timer.Stop()
		t.stopped = true
	}
}

// Fired reports whether the callback has been triggered.
func (t *IdleTimer) Fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}
