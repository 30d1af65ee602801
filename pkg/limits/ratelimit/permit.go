package ratelimit

import "time"

const (
	// expiryBits is the width of the expiry field in a permit word.
	expiryBits = 54

	// collisionBits is the width of the collision counter in a permit word.
	collisionBits = 64 - expiryBits

	// expiryPeriod is the wraparound period of permit expiries, about 208 days.
	expiryPeriod uint64 = 1 << expiryBits

	expiryMask = expiryPeriod - 1

	// collisionModulus is how many distinct collision counters exist.
	collisionModulus = 1 << collisionBits

	// MaxInterval is the longest limiter interval. Keeping it at a quarter
	// of the expiry period leaves room for twice the interval on either side
	// of a signed expiry comparison.
	MaxInterval = time.Duration(expiryPeriod / 4)
)

// permit is the decoded form of one slot word: a signed 10-bit collision
// counter in the high bits and an absolute expiry in the low 54 bits.
type permit struct {
	collision int16
	expiry    uint64
}

// encodePermit packs p into a single word suitable for compare-and-swap.
func encodePermit(p permit) uint64 {
	return uint64(p.collision)<<expiryBits | p.expiry&expiryMask
}

// decodePermit unpacks a slot word.
func decodePermit(word uint64) permit {
	return permit{
		// Arithmetic shift restores the sign of the 10-bit counter.
		collision: int16(int64(word) >> expiryBits),
		expiry:    word & expiryMask,
	}
}

// collisionFor derives a ticket's collision counter: ticket mod 1024,
// projected into [-512, 511].
func collisionFor(ticket int64) int16 {
	c := int16(uint64(ticket) % collisionModulus)
	if c >= collisionModulus/2 {
		c -= collisionModulus
	}
	return c
}

// foldExpiry maps an absolute time onto the expiry period.
func foldExpiry(t uint64) uint64 {
	return t & expiryMask
}

// expiryDiff returns newExpiry-oldExpiry as the shortest signed distance
// around the expiry period, so comparisons keep working across a wrap.
func expiryDiff(newExpiry, oldExpiry uint64) int64 {
	d := (newExpiry - oldExpiry) & expiryMask
	if d >= expiryPeriod/2 {
		return int64(d) - int64(expiryPeriod)
	}
	return int64(d)
}
