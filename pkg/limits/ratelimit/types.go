package ratelimit

import "time"

// Config configures a Limiter.
type Config struct {
	// Name identifies the limiter in logs, metrics and stored events.
	// Optional.
	Name string

	// Limit is the number of permissions that may be valid at once, which
	// is also the number of slots. Must be positive.
	Limit int

	// Interval is how long each granted permission stays valid.
	// Must be within [1ns, MaxInterval].
	Interval time.Duration

	// Clock supplies time. Defaults to a MonotonicClock.
	Clock Clock
}

// Snapshot is a point-in-time reading of a limiter's counters.
//
// The fields are read one after another without coordination, so a snapshot
// taken under contention may be slightly inconsistent. Consumers are expected
// to tolerate that.
type Snapshot struct {
	// Time is the limiter clock reading at which the snapshot was taken.
	Time uint64

	// Granted is the total number of permissions granted.
	Granted uint64

	// Denied is the total number of requests denied.
	Denied uint64

	// OverloadNanos is the overload time accumulated by closed episodes.
	OverloadNanos uint64

	// Overloaded reports whether an overload episode is open.
	Overloaded bool

	// OverloadStart is when the open episode started. Zero when
	// Overloaded is false.
	OverloadStart uint64
}
