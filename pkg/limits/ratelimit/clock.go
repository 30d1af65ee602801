package ratelimit

import (
	"math"
	"sync/atomic"
	"time"
)

// processStart anchors the raw monotonic readings of every MonotonicClock in
// this process. time.Since on it reads the runtime's monotonic counter.
var processStart = time.Now()

// Clock provides elapsed nanoseconds since an arbitrary, fixed epoch.
//
// Implementations must be safe for concurrent use and must never go
// backwards under normal operation. Only differences between readings are
// meaningful.
type Clock interface {
	// Now returns nanoseconds elapsed since the clock's epoch.
	Now() uint64
}

// MonotonicClock is the production Clock.
//
// It captures a raw monotonic reading at construction together with an
// estimate of how long the process has been running, and reports the
// process age plus the unsigned distance between the current raw reading and
// the captured one. The distance stays correct even if the raw signed counter
// wraps past math.MaxInt64.
type MonotonicClock struct {
	raw      func() int64
	startRaw int64
	base     uint64
}

// NewMonotonicClock creates a MonotonicClock backed by the runtime's
// monotonic clock.
func NewMonotonicClock() *MonotonicClock {
	return newMonotonicClock(func() int64 {
		return int64(time.Since(processStart))
	})
}

func newMonotonicClock(raw func() int64) *MonotonicClock {
	start := raw()
	base := int64(time.Since(processStart))
	if base < 0 {
		base = 0
	}
	return &MonotonicClock{
		raw:      raw,
		startRaw: start,
		base:     uint64(base),
	}
}

// Now returns the process age at construction plus the time elapsed since.
func (c *MonotonicClock) Now() uint64 {
	return c.base + distance(c.startRaw, c.raw())
}

// distance returns how far the counter has advanced from start to now.
//
// Both readings are reinterpreted as unsigned values so that a counter which
// crossed from math.MaxInt64 into the negative range still yields the small
// forward distance. A result in the upper half of the range means now is
// behind start; that is reported as zero.
func distance(start, now int64) uint64 {
	d := uint64(now) - uint64(start)
	if d > math.MaxInt64 {
		return 0
	}
	return d
}

// ManualClock is a Clock whose time only moves when told to. It is used by
// tests and by simulations that need deterministic time.
type ManualClock struct {
	now atomic.Uint64
}

// NewManualClock creates a ManualClock reading start.
func NewManualClock(start time.Duration) *ManualClock {
	c := &ManualClock{}
	c.now.Store(uint64(start))
	return c
}

// Now returns the current virtual time.
func (c *ManualClock) Now() uint64 {
	return c.now.Load()
}

// Advance moves the clock forward by d. Negative durations are ignored.
func (c *ManualClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.now.Add(uint64(d))
}

// Set moves the clock to t. Setting an earlier time is allowed so tests can
// exercise out-of-order readings between goroutines.
func (c *ManualClock) Set(t time.Duration) {
	c.now.Store(uint64(t))
}
