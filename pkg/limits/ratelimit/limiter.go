package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

// Limiter bounds how many events are admitted within a rolling interval.
//
// A Limiter with limit N and interval I grants at most N permissions whose
// validity windows overlap: each granted permission occupies one slot until
// I has passed. The hot path is lock-free; any number of goroutines may call
// TryAcquireNow concurrently.
//
// Slot selection is round-robin over request tickets, so a request can be
// denied while a different slot is free. This approximation is accepted in
// exchange for a single CAS per attempt.
//
// # Example
//
//	limiter, err := ratelimit.New(100, time.Second)
//	if err != nil {
//	    return err
//	}
//	if !limiter.TryAcquireNow() {
//	    // over the limit
//	}
type Limiter struct {
	name     string
	limit    int
	interval time.Duration
	clock    Clock

	slots    *slotTable
	overload *overloadTracker

	granted atomic.Uint64
	denied  atomic.Uint64
}

// New creates a Limiter that admits limit events per interval.
func New(limit int, interval time.Duration) (*Limiter, error) {
	return NewWithConfig(Config{
		Limit:    limit,
		Interval: interval,
	})
}

// NewWithConfig creates a Limiter from cfg.
//
// Returns an error wrapping ErrInvalidConfiguration when the limit is not
// positive or the interval is outside [1ns, MaxInterval].
func NewWithConfig(cfg Config) (*Limiter, error) {
	if cfg.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidConfiguration, cfg.Limit)
	}
	if cfg.Interval < 1 || cfg.Interval > MaxInterval {
		return nil, fmt.Errorf("%w: interval must be within [1ns, %s], got %s",
			ErrInvalidConfiguration, MaxInterval, cfg.Interval)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = NewMonotonicClock()
	}

	interval := uint64(cfg.Interval)
	return &Limiter{
		name:     cfg.Name,
		limit:    cfg.Limit,
		interval: cfg.Interval,
		clock:    clock,
		slots:    newSlotTable(cfg.Limit, interval, clock.Now()),
		overload: newOverloadTracker(interval),
	}, nil
}

// TryAcquireNow makes a single attempt to obtain a permission and reports
// whether one was granted. It never blocks.
func (l *Limiter) TryAcquireNow() bool {
	now := l.clock.Now()
	granted := l.slots.tryAcquire(now)
	if granted {
		l.granted.Add(1)
	} else {
		l.denied.Add(1)
	}
	l.overload.record(granted, now)
	return granted
}

// TryAcquire obtains a permission, waiting up to timeout for one to become
// available. It returns false once the timeout has elapsed without a grant.
//
// A non-positive timeout makes a single attempt. If ctx is done while
// waiting, the returned error wraps both ErrCancelled and ctx.Err(); no
// permission is held across a wait, so cancellation leaves the limiter
// untouched.
func (l *Limiter) TryAcquire(ctx context.Context, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		return l.TryAcquireNow(), nil
	}
	now := l.clock.Now()
	deadline := now + uint64(timeout)
	if deadline < now {
		deadline = math.MaxUint64
	}
	return l.acquire(ctx, deadline)
}

// Acquire blocks until a permission is granted or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	_, err := l.acquire(ctx, math.MaxUint64)
	return err
}

// acquire retries until a grant, the deadline, or cancellation. Between
// attempts it parks on the overload latch for at most half an interval, so a
// missed wakeup costs at most one extra interval.
func (l *Limiter) acquire(ctx context.Context, deadline uint64) (bool, error) {
	maxWait := l.interval / 2
	if maxWait <= 0 {
		maxWait = 1
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return false, fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		if l.TryAcquireNow() {
			return true, nil
		}

		now := l.clock.Now()
		if now >= deadline {
			return false, nil
		}

		latch := l.overload.latch()
		if latch == nil {
			// The episode ended between our denial and now; retry at once.
			continue
		}

		wait := maxWait
		if remaining := deadline - now; remaining < uint64(wait) {
			wait = time.Duration(remaining)
		}
		if timer == nil {
			timer = time.NewTimer(wait)
		} else {
			timer.Reset(wait)
		}

		select {
		case <-latch:
			timer.Stop()
		case <-timer.C:
		case <-ctx.Done():
			return false, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
	}
}

// Granted returns the number of permissions granted so far.
func (l *Limiter) Granted() uint64 {
	return l.granted.Load()
}

// Denied returns the number of requests denied so far. A blocking call that
// retries counts one denial per failed attempt.
func (l *Limiter) Denied() uint64 {
	return l.denied.Load()
}

// Limit returns the configured number of permissions per interval.
func (l *Limiter) Limit() int {
	return l.limit
}

// Interval returns how long each permission stays valid.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Name returns the configured limiter name.
func (l *Limiter) Name() string {
	return l.name
}

// Overloaded reports whether the limiter is currently denying requests.
func (l *Limiter) Overloaded() bool {
	overloaded, _ := l.overload.current()
	return overloaded
}

// Snapshot reads the limiter's counters and overload state.
func (l *Limiter) Snapshot() Snapshot {
	now := l.clock.Now()
	overloaded, start := l.overload.current()
	return Snapshot{
		Time:          now,
		Granted:       l.granted.Load(),
		Denied:        l.denied.Load(),
		OverloadNanos: l.overload.accumulated(),
		Overloaded:    overloaded,
		OverloadStart: start,
	}
}
