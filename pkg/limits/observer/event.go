package observer

import (
	"time"

	"mercator-hq/throttle/pkg/limits/ratelimit"
)

// ThroughputEvent is one sampler tick's view of a limiter.
//
// Events are created fresh for every tick and handed to exactly one
// listener; they are never mutated afterwards.
type ThroughputEvent struct {
	// SampleTime is the limiter clock reading at which the sample was taken.
	SampleTime time.Duration `json:"sample_time"`

	// Interval is the time covered by this event, since the previous tick.
	// Zero for the first event after registration.
	Interval time.Duration `json:"interval"`

	// IntervalOverload is how much of Interval the limiter spent overloaded.
	// Always within [0, Interval].
	IntervalOverload time.Duration `json:"interval_overload"`

	// Passed is the number of permissions granted during Interval.
	Passed uint64 `json:"passed"`

	// Denied is the number of requests denied during Interval.
	Denied uint64 `json:"denied"`

	// TotalPassed is the number of permissions granted since registration.
	TotalPassed uint64 `json:"total_passed"`

	// TotalDenied is the number of requests denied since registration.
	TotalDenied uint64 `json:"total_denied"`

	// Overloaded reports whether the limiter was overloaded at SampleTime.
	Overloaded bool `json:"overloaded"`

	// IntervalThroughput is Passed per second over Interval.
	IntervalThroughput float64 `json:"interval_throughput"`

	// TotalThroughput is TotalPassed per second since registration.
	TotalThroughput float64 `json:"total_throughput"`
}

// OverloadRatio returns the fraction of the interval spent overloaded.
func (e ThroughputEvent) OverloadRatio() float64 {
	if e.Interval <= 0 {
		return 0
	}
	return float64(e.IntervalOverload) / float64(e.Interval)
}

// sampleState turns successive snapshots into events. It is owned by a
// single sampler goroutine.
type sampleState struct {
	limiterInterval uint64

	started bool
	first   ratelimit.Snapshot
	last    ratelimit.Snapshot

	// lastOverload is the overload total observed at the previous tick,
	// including the live part of an open episode.
	lastOverload uint64
}

func newSampleState(limiterInterval time.Duration) *sampleState {
	return &sampleState{limiterInterval: uint64(limiterInterval)}
}

// next folds snap into the state and returns the event for this tick.
func (s *sampleState) next(snap ratelimit.Snapshot) ThroughputEvent {
	overload := s.overloadTotal(snap)

	if !s.started {
		s.started = true
		s.first = snap
		s.last = snap
		s.lastOverload = overload
		return ThroughputEvent{
			SampleTime: time.Duration(snap.Time),
			Overloaded: snap.Overloaded,
		}
	}

	interval := delta(snap.Time, s.last.Time)
	passed := delta(snap.Granted, s.last.Granted)
	denied := delta(snap.Denied, s.last.Denied)
	totalPassed := delta(snap.Granted, s.first.Granted)

	// Counters are read independently of each other, so the overload delta
	// can come out negative or longer than the interval under contention.
	var intervalOverload uint64
	if overload > s.lastOverload {
		intervalOverload = min(overload-s.lastOverload, interval)
	}

	event := ThroughputEvent{
		SampleTime:         time.Duration(snap.Time),
		Interval:           time.Duration(interval),
		IntervalOverload:   time.Duration(intervalOverload),
		Passed:             passed,
		Denied:             denied,
		TotalPassed:        totalPassed,
		TotalDenied:        delta(snap.Denied, s.first.Denied),
		Overloaded:         snap.Overloaded,
		IntervalThroughput: perSecond(passed, interval),
		TotalThroughput:    perSecond(totalPassed, delta(snap.Time, s.first.Time)),
	}

	s.last = snap
	s.lastOverload = overload
	return event
}

// overloadTotal is the accumulated overload plus the live part of an open
// episode, capped the same way the limiter caps a closed one.
func (s *sampleState) overloadTotal(snap ratelimit.Snapshot) uint64 {
	total := snap.OverloadNanos
	if snap.Overloaded && snap.Time > snap.OverloadStart {
		total += min(snap.Time-snap.OverloadStart, s.limiterInterval)
	}
	return total
}

// delta returns cur-prev, or zero if prev is ahead.
func delta(cur, prev uint64) uint64 {
	if prev > cur {
		return 0
	}
	return cur - prev
}

func perSecond(count, nanos uint64) float64 {
	if nanos == 0 {
		return 0
	}
	return float64(count) / (float64(nanos) / float64(time.Second))
}
