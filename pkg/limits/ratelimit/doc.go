// Package ratelimit provides a lock-free sliding-window admission controller.
//
// # Overview
//
// A Limiter answers one question: may one more event be admitted right now?
// It admits at most Limit events whose validity windows overlap, where each
// admitted event stays valid for Interval:
//
//	limiter, err := ratelimit.New(100, time.Second) // 100 events per rolling second
//	if err != nil {
//	    return err
//	}
//
//	if limiter.TryAcquireNow() {
//	    // admitted
//	}
//
//	// Wait up to 50ms for a permission
//	ok, err := limiter.TryAcquire(ctx, 50*time.Millisecond)
//
//	// Wait until a permission is available or ctx is done
//	err = limiter.Acquire(ctx)
//
// # Algorithm
//
// The limiter keeps one 64-bit word per permission ("slot"). Each word packs
// a 10-bit collision counter and a 54-bit expiry time. A request:
//
//  1. Computes the expiry a new permission would have (now + Interval)
//  2. Draws a ticket and maps it to a slot (ticket mod Limit)
//  3. Grants only if the slot's permission expired at least one interval
//     before the new one, publishing the new word with compare-and-swap
//
// A lost compare-and-swap is a denial for that attempt; retrying draws a
// fresh ticket.
//
// # Overload Tracking
//
// The first denial opens an overload episode; the next grant closes it,
// wakes every goroutine blocked in TryAcquire or Acquire, and adds the
// episode's length (capped at one interval) to an accumulated counter that
// observers turn into overload statistics.
//
// # Time
//
// Limiters read time from a Clock. MonotonicClock is the production clock;
// ManualClock gives tests full control over time.
//
// # Thread Safety
//
// TryAcquireNow never blocks and never takes a lock. All counters are
// updated with atomic operations and may be read concurrently.
package ratelimit
