package metrics

import (
	"time"

	"mercator-hq/throttle/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Acquire modes.
const (
	ModeNow      = "now"
	ModeTimeout  = "timeout"
	ModeBlocking = "blocking"
)

// Acquire results.
const (
	ResultGranted   = "granted"
	ResultDenied    = "denied"
	ResultCancelled = "cancelled"
)

// AcquireMetrics tracks acquire calls made through the limits manager and the
// static parameters of each limiter.
//
// Metrics:
//   - <ns>_<sub>_acquires_total: acquire calls by limiter, mode, result
//   - <ns>_<sub>_acquire_wait_seconds: time spent in acquire calls
//   - <ns>_<sub>_limit: configured permits per interval
//   - <ns>_<sub>_interval_seconds: configured interval
type AcquireMetrics struct {
	acquiresTotal   *prometheus.CounterVec
	waitDuration    *prometheus.HistogramVec
	limit           *prometheus.GaugeVec
	intervalSeconds *prometheus.GaugeVec
}

// NewAcquireMetrics creates and registers acquire metrics with the provided
// registry.
func NewAcquireMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *AcquireMetrics {
	am := &AcquireMetrics{
		acquiresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "acquires_total",
				Help:      "Total number of acquire calls",
			},
			[]string{"limiter", "mode", "result"},
		),

		waitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "acquire_wait_seconds",
				Help:      "Time spent in acquire calls in seconds",
				Buckets:   cfg.WaitDurationBuckets,
			},
			[]string{"limiter", "mode"},
		),

		limit: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "limit",
				Help:      "Configured number of permissions per interval",
			},
			[]string{"limiter"},
		),

		intervalSeconds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "interval_seconds",
				Help:      "Configured limiter interval in seconds",
			},
			[]string{"limiter"},
		),
	}

	registry.MustRegister(
		am.acquiresTotal,
		am.waitDuration,
		am.limit,
		am.intervalSeconds,
	)

	return am
}

// RecordAcquire records one acquire call.
func (am *AcquireMetrics) RecordAcquire(limiter, mode, result string, wait time.Duration) {
	am.acquiresTotal.WithLabelValues(limiter, mode, result).Inc()
	am.waitDuration.WithLabelValues(limiter, mode).Observe(wait.Seconds())
}

// SetLimiter publishes a limiter's configuration.
func (am *AcquireMetrics) SetLimiter(limiter string, limit int, interval time.Duration) {
	am.limit.WithLabelValues(limiter).Set(float64(limit))
	am.intervalSeconds.WithLabelValues(limiter).Set(interval.Seconds())
}

// Delete removes every series for limiter.
func (am *AcquireMetrics) Delete(limiter string) {
	am.acquiresTotal.DeletePartialMatch(prometheus.Labels{"limiter": limiter})
	am.waitDuration.DeletePartialMatch(prometheus.Labels{"limiter": limiter})
	am.limit.DeleteLabelValues(limiter)
	am.intervalSeconds.DeleteLabelValues(limiter)
}
