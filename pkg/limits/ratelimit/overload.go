package ratelimit

import (
	"sync/atomic"
)

// loadState is one overload episode. It is immutable once published; the
// wake channel is closed exactly once, by the goroutine that ends the
// episode.
type loadState struct {
	start uint64
	wake  chan struct{}
}

// notOverloaded is the sentinel state between overload episodes.
var notOverloaded = &loadState{}

// overloadTracker records whether the limiter is saturated, wakes waiters
// when it stops being saturated, and accumulates how long it was saturated.
//
// State machine:
//
//	NotOverloaded --denial--> Overloaded(start, wake)
//	Overloaded    --grant---> NotOverloaded   (wake closed, duration folded in)
//
// Repeated denials while overloaded, or grants while not overloaded, leave
// the state alone.
type overloadTracker struct {
	state         atomic.Pointer[loadState]
	overloadNanos atomic.Uint64
	interval      uint64
}

func newOverloadTracker(interval uint64) *overloadTracker {
	t := &overloadTracker{interval: interval}
	t.state.Store(notOverloaded)
	return t
}

// record updates the state after an acquisition attempt made at now.
func (t *overloadTracker) record(granted bool, now uint64) {
	current := t.state.Load()
	if granted {
		if current == notOverloaded {
			return
		}
		if !t.state.CompareAndSwap(current, notOverloaded) {
			return
		}
		close(current.wake)
		t.overloadNanos.Add(min(saturatingSub(now, current.start), t.interval))
		return
	}

	if current != notOverloaded {
		return
	}
	// Only one goroutine opens the episode; losers see the winner's state.
	t.state.CompareAndSwap(notOverloaded, &loadState{
		start: now,
		wake:  make(chan struct{}),
	})
}

// latch returns a channel that is closed when the current overload episode
// ends, or nil when the limiter is not overloaded.
func (t *overloadTracker) latch() <-chan struct{} {
	current := t.state.Load()
	if current == notOverloaded {
		return nil
	}
	return current.wake
}

// current returns whether an episode is open and when it started.
func (t *overloadTracker) current() (overloaded bool, start uint64) {
	s := t.state.Load()
	if s == notOverloaded {
		return false, 0
	}
	return true, s.start
}

// accumulated returns the total overload time folded in so far.
func (t *overloadTracker) accumulated() uint64 {
	return t.overloadNanos.Load()
}

// saturatingSub returns a-b, or zero when b is ahead of a. Readings taken by
// different goroutines may arrive out of order.
func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
