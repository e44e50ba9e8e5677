package util

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIdleTimer(t *testing.T) {
	t.Run("fires after inactivity", func(t *testing.T) {
		fired := make(chan struct{})
		it := NewIdleTimer(30*time.Millisecond, func() { close(fired) })
		defer it.Stop()

		select {
		case <-fired:
			assert.True(t, it.Fired())
		case <-time.After(time.Second):
			t.Fatal("idle timer did not fire")
		}
	})

	t.Run("touch postpones firing", func(t *testing.T) {
		var calls atomic.Int32
		it := NewIdleTimer(60*time.Millisecond, func() { calls.Add(1) })
		defer it.Stop()

		for i := 0; i < 5; i++ {
			time.Sleep(20 * time.Millisecond)
			it.Touch()
		}
		assert.Zero(t, calls.Load(), "fired while being touched")

		assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	})

	t.Run("stop prevents firing", func(t *testing.T) {
		var calls atomic.Int32
		it := NewIdleTimer(20*time.Millisecond, func() { calls.Add(1) })
		it.Stop()
		it.Stop()

		time.Sleep(60 * time.Millisecond)
		assert.Zero(t, calls.Load())
		assert.False(t, it.Fired())
	})

	t.Run("touch after stop is no-op", func(t *testing.T) {
		var calls atomic.Int32
		it := NewIdleTimer(20*time.Millisecond, func() { calls.Add(1) })
		it.Stop()
		it.Touch()

		time.Sleep(60 * time.Millisecond)
		assert.Zero(t, calls.Load())
	})

	t.Run("fires at most once", func(t *testing.T) {
		var calls atomic.Int32
		it := NewIdleTimer(10*time.Millisecond, func() { calls.Add(1) })
		defer it.Stop()

		assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
		it.Touch()
		time.Sleep(40 * time.Millisecond)
		assert.Equal(t, int32(1), calls.Load())
	})
}
