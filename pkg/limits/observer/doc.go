// Package observer samples rate limiters in the background and reports
// throughput statistics to listeners.
//
// # Overview
//
// A Registry owns one sampler goroutine per Listener. Each sampler wakes on
// its own period, reads the limiter's counters, and delivers a
// ThroughputEvent describing the interval since its previous tick:
//
//   - Passed / Denied: grants and denials during the interval
//   - IntervalThroughput: grants per second during the interval
//   - TotalThroughput: grants per second since registration
//   - IntervalOverload: time the limiter spent overloaded, within [0, Interval]
//
// The first event after registration only establishes the baseline and
// reports zero throughput.
//
// # Interval Skew
//
// Sampling periods and limiter intervals are independent. With a limit of
// 100 per 5s sampled every 2s, a burst of 100 grants in the first second is
// reported as 50/s for the first tick and 0/s for the next, because the
// limiter keeps denying for the rest of its 5s window.
//
// # Failure Handling
//
//   - Errors returned and panics raised by a listener are logged; sampling
//     continues with the next tick
//   - A failure of the sampler itself is reported once through
//     OnSamplerFailed as a *SamplerError, after which the sampler exits
//
// # Lifecycle
//
// Deliveries to one listener never overlap. A listener removed and added
// again while its old sampler is still inside OnSample starts receiving
// from the new sampler only after that call returns. Listeners must be
// usable as map keys; a value holding a slice or map is rejected with
// ErrInvalidListener.
//
// Registries hold goroutines and must be closed explicitly:
//
//	registry := observer.NewRegistry(limiter)
//	defer registry.Close()
package observer
