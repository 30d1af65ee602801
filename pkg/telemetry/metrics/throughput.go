package metrics

import (
	"mercator-hq/throttle/pkg/config"
	"mercator-hq/throttle/pkg/limits/observer"

	"github.com/prometheus/client_golang/prometheus"
)

// ThroughputMetrics exports sampled throughput events.
//
// Metrics:
//   - <ns>_<sub>_permits_passed_total: permissions granted, by limiter
//   - <ns>_<sub>_permits_denied_total: requests denied, by limiter
//   - <ns>_<sub>_overload_seconds_total: time spent overloaded
//   - <ns>_<sub>_interval_throughput: permits per second over the last sample
//   - <ns>_<sub>_total_throughput: permits per second since sampling began
//   - <ns>_<sub>_overloaded: 1 while the limiter is overloaded
//   - <ns>_<sub>_overload_ratio: fraction of the last sample spent overloaded
//   - <ns>_<sub>_samples_total: samples delivered
//   - <ns>_<sub>_sampler_failures_total: samplers stopped by a failure
type ThroughputMetrics struct {
	passedTotal        *prometheus.CounterVec
	deniedTotal        *prometheus.CounterVec
	overloadSeconds    *prometheus.CounterVec
	intervalThroughput *prometheus.GaugeVec
	totalThroughput    *prometheus.GaugeVec
	overloaded         *prometheus.GaugeVec
	overloadRatio      *prometheus.GaugeVec
	samplesTotal       *prometheus.CounterVec
	samplerFailures    *prometheus.CounterVec
}

// NewThroughputMetrics creates and registers throughput metrics with the
// provided registry.
func NewThroughputMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ThroughputMetrics {
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      name,
				Help:      help,
			},
			[]string{"limiter"},
		)
	}
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      name,
				Help:      help,
			},
			[]string{"limiter"},
		)
	}

	tm := &ThroughputMetrics{
		passedTotal:        counter("permits_passed_total", "Total number of permissions granted"),
		deniedTotal:        counter("permits_denied_total", "Total number of requests denied"),
		overloadSeconds:    counter("overload_seconds_total", "Total time the limiter spent overloaded"),
		intervalThroughput: gauge("interval_throughput", "Permissions granted per second over the last sample interval"),
		totalThroughput:    gauge("total_throughput", "Permissions granted per second since sampling began"),
		overloaded:         gauge("overloaded", "Whether the limiter is currently overloaded (1) or not (0)"),
		overloadRatio:      gauge("overload_ratio", "Fraction of the last sample interval spent overloaded"),
		samplesTotal:       counter("samples_total", "Total number of throughput samples delivered"),
		samplerFailures:    counter("sampler_failures_total", "Total number of samplers stopped by a failure"),
	}

	registry.MustRegister(
		tm.passedTotal,
		tm.deniedTotal,
		tm.overloadSeconds,
		tm.intervalThroughput,
		tm.totalThroughput,
		tm.overloaded,
		tm.overloadRatio,
		tm.samplesTotal,
		tm.samplerFailures,
	)

	return tm
}

// Observe folds one throughput event into the metrics. Counters advance by
// the per-interval deltas so they stay monotonic across sampler restarts.
func (tm *ThroughputMetrics) Observe(limiter string, event observer.ThroughputEvent) {
	tm.passedTotal.WithLabelValues(limiter).Add(float64(event.Passed))
	tm.deniedTotal.WithLabelValues(limiter).Add(float64(event.Denied))
	tm.overloadSeconds.WithLabelValues(limiter).Add(event.IntervalOverload.Seconds())
	tm.samplesTotal.WithLabelValues(limiter).Inc()

	tm.intervalThroughput.WithLabelValues(limiter).Set(event.IntervalThroughput)
	tm.totalThroughput.WithLabelValues(limiter).Set(event.TotalThroughput)
	tm.overloadRatio.WithLabelValues(limiter).Set(event.OverloadRatio())

	overloaded := 0.0
	if event.Overloaded {
		overloaded = 1
	}
	tm.overloaded.WithLabelValues(limiter).Set(overloaded)
}

// RecordFailure counts a stopped sampler.
func (tm *ThroughputMetrics) RecordFailure(limiter string) {
	tm.samplerFailures.WithLabelValues(limiter).Inc()
}

// Delete removes every series for limiter.
func (tm *ThroughputMetrics) Delete(limiter string) {
	for _, vec := range []*prometheus.MetricVec{
		tm.passedTotal.MetricVec,
		tm.deniedTotal.MetricVec,
		tm.overloadSeconds.MetricVec,
		tm.intervalThroughput.MetricVec,
		tm.totalThroughput.MetricVec,
		tm.overloaded.MetricVec,
		tm.overloadRatio.MetricVec,
		tm.samplesTotal.MetricVec,
		tm.samplerFailures.MetricVec,
	} {
		vec.DeleteLabelValues(limiter)
	}
}
