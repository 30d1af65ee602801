// Package metrics provides Prometheus metrics collection for Mercator Throttle.
//
// # Overview
//
// The Collector exports two families of metrics, all labelled by limiter:
//
//   - Throughput metrics, fed by sampled observer.ThroughputEvent values:
//     permits passed and denied, overload time, throughput gauges and the
//     current overload flag.
//   - Acquire metrics, recorded by the limits manager on every acquire call:
//     call counts by mode and result, and a wait time histogram.
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	// Export sampled throughput for a limiter.
//	registry.AddListener(collector.Listener("api"), 10*time.Second)
//
//	// Record an acquire call.
//	collector.RecordAcquire("api", metrics.ModeNow, metrics.ResultGranted, 0)
//
//	// Serve the scrape endpoint.
//	mux.Handle("/metrics", collector.Handler())
//
// # Cardinality
//
// At most telemetry.metrics.max_limiters distinct limiter labels are
// exported. Further limiters are aggregated under the "other" label.
// RemoveLimiter releases a label when a limiter is deleted on reload.
package metrics
