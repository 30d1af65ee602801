package ratelimit

import (
	"sync/atomic"
)

// slotTable is the lock-free core of the limiter: a fixed array of permit
// words, one per admissible event within an interval.
//
// Every request draws a ticket, and the ticket picks a slot. A slot grants a
// new permit only when the permit it currently holds has expired, and the
// grant is published with a single compare-and-swap. Losing the CAS is a
// denial; a caller that wants to retry draws a fresh ticket.
type slotTable struct {
	slots    []atomic.Uint64
	tickets  atomic.Int64
	interval uint64
}

// newSlotTable creates n slots whose permits all expire at now.
func newSlotTable(n int, interval uint64, now uint64) *slotTable {
	t := &slotTable{
		slots:    make([]atomic.Uint64, n),
		interval: interval,
	}
	expired := encodePermit(permit{expiry: foldExpiry(now)})
	for i := range t.slots {
		t.slots[i].Store(expired)
	}
	return t
}

// tryAcquire reports whether a permit valid until now+interval was granted.
func (t *slotTable) tryAcquire(now uint64) bool {
	newExpiry := foldExpiry(foldExpiry(now) + t.interval)

	ticket := t.tickets.Add(1)
	slot := &t.slots[uint64(ticket)%uint64(len(t.slots))]

	old := slot.Load()
	diff := expiryDiff(newExpiry, decodePermit(old).expiry)

	// The held permit is still valid unless its expiry lies at least one
	// interval behind ours. An expiry more than one interval ahead of ours
	// cannot come from this cycle and is overwritten as well.
	interval := int64(t.interval)
	if diff < interval && -diff <= interval {
		return false
	}

	word := encodePermit(permit{
		collision: collisionFor(ticket),
		expiry:    newExpiry,
	})
	return slot.CompareAndSwap(old, word)
}

// size returns the number of slots.
func (t *slotTable) size() int {
	return len(t.slots)
}
