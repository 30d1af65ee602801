// Package limits manages the named rate limiters of a Mercator Throttle
// process.
//
// # Overview
//
// Each configured limiter is a lock-free sliding-window limiter
// (ratelimit.Limiter) paired with an observer.Registry that samples its
// throughput in the background. The sampling section of a limiter decides
// which listeners are attached:
//
//   - log: every sample is written to the structured log
//   - metrics: samples are exported through the Prometheus collector
//   - record: samples are persisted to the storage backend
//
// # Architecture
//
// The package is organized into sub-packages:
//
//   - ratelimit: the limiter, its permit slots, clocks and overload tracking
//   - observer: listener registry and per-listener sampler goroutines
//   - storage: throughput history backends (memory, SQLite)
//   - retention: age and count based pruning on a cron schedule
//
// # Usage
//
//	manager, err := limits.NewManager(cfg.Limits, limits.Options{
//	    Backend: backend,
//	    Metrics: collector,
//	    Tracer:  tracer,
//	    Health:  checker,
//	})
//	if err != nil {
//	    return err
//	}
//	defer manager.Close()
//
//	// Non-blocking
//	if ok, _ := manager.TryAcquire("api"); !ok {
//	    return errTooManyRequests
//	}
//
//	// Wait up to 50ms
//	ok, err := manager.Acquire(ctx, "api", 50*time.Millisecond)
//
// # Reloading
//
// Apply and Reconcile bring the manager in line with a new configuration.
// Limiters whose limit and interval are unchanged keep their counters; a
// sampling change only adjusts listeners. Changing the limit or interval
// replaces the limiter.
//
// # Thread Safety
//
// All Manager methods are safe for concurrent use. Acquire paths only take
// a read lock to find the limiter; the limiter itself is lock-free.
package limits
