package metrics

import (
	"sync"
	"time"

	"mercator-hq/throttle/pkg/config"
	"mercator-hq/throttle/pkg/limits/observer"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// OtherLimiter is the label value used for limiters beyond the cardinality
// cap.
const OtherLimiter = "other"

// Collector is the main orchestrator for all Prometheus metrics in Mercator
// Throttle. It owns the registry, hands out per-limiter throughput listeners
// and records acquire calls.
//
// Every recording method is a no-op when metrics are disabled.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	throughputMetrics *ThroughputMetrics
	acquireMetrics    *AcquireMetrics

	// Cardinality tracking
	cardinalityLimiter *CardinalityLimiter

	mu        sync.Mutex
	listeners map[string]*limiterListener
}

// NewCollector creates a new metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a fresh registry carrying the
// Go runtime and process collectors is created.
//
// Example:
//
//	cfg := &config.MetricsConfig{
//		Enabled:    true,
//		Namespace:  "mercator",
//		Subsystem:  "throttle",
//	}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	// Set defaults if not specified
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.WaitDurationBuckets) == 0 {
		cfg.WaitDurationBuckets = append([]float64(nil), config.DefaultWaitDurationBuckets...)
	}
	maxLimiters := cfg.MaxLimiters
	if maxLimiters <= 0 {
		maxLimiters = config.DefaultMetricsMaxLimiters
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		throughputMetrics:  NewThroughputMetrics(cfg, registry),
		acquireMetrics:     NewAcquireMetrics(cfg, registry),
		cardinalityLimiter: NewCardinalityLimiter(maxLimiters),
		listeners:          make(map[string]*limiterListener),
	}
}

// Enabled reports whether metrics are being recorded.
func (c *Collector) Enabled() bool {
	return c.config.Enabled
}

// label returns the label value for limiter, folding names beyond the
// cardinality cap into OtherLimiter.
func (c *Collector) label(limiter string) string {
	if !c.cardinalityLimiter.Allow(limiter) {
		return OtherLimiter
	}
	return limiter
}

// Listener returns the throughput listener for limiter. The same listener is
// returned for the same name, so registering it twice with an
// observer.Registry adjusts the sampling interval instead of adding a second
// sampler.
func (c *Collector) Listener(limiter string) observer.Listener {
	c.mu.Lock()
	defer c.mu.Unlock()

	if l, ok := c.listeners[limiter]; ok {
		return l
	}
	l := &limiterListener{collector: c, limiter: limiter}
	c.listeners[limiter] = l
	return l
}

// RecordAcquire records one acquire call made in mode with the given result
// and time spent waiting.
//
// Example:
//
//	collector.RecordAcquire("api", metrics.ModeBlocking, metrics.ResultGranted, 12*time.Millisecond)
func (c *Collector) RecordAcquire(limiter, mode, result string, wait time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.acquireMetrics.RecordAcquire(c.label(limiter), mode, result, wait)
}

// SetLimiterInfo publishes a limiter's configured limit and interval.
func (c *Collector) SetLimiterInfo(limiter string, limit int, interval time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.acquireMetrics.SetLimiter(c.label(limiter), limit, interval)
}

// RemoveLimiter drops every series and the cached listener for limiter.
// Series aggregated under OtherLimiter are left alone.
func (c *Collector) RemoveLimiter(limiter string) {
	c.mu.Lock()
	delete(c.listeners, limiter)
	c.mu.Unlock()

	if !c.cardinalityLimiter.Forget(limiter) {
		return
	}
	c.throughputMetrics.Delete(limiter)
	c.acquireMetrics.Delete(limiter)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// limiterListener feeds sampled events for one limiter into the collector.
type limiterListener struct {
	collector *Collector
	limiter   string
}

// OnSample implements observer.Listener.
func (l *limiterListener) OnSample(event observer.ThroughputEvent) error {
	if !l.collector.config.Enabled {
		return nil
	}
	l.collector.throughputMetrics.Observe(l.collector.label(l.limiter), event)
	return nil
}

// OnSamplerFailed implements observer.Listener.
func (l *limiterListener) OnSamplerFailed(error) {
	if !l.collector.config.Enabled {
		return
	}
	l.collector.throughputMetrics.RecordFailure(l.collector.label(l.limiter))
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label value is allowed. Returns true if the value
// already exists or if we haven't reached the cardinality limit yet.
// Returns false if adding this value would exceed the limit.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Forget releases a label value so its slot can be reused. It reports
// whether the value was tracked.
func (cl *CardinalityLimiter) Forget(labelSet string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; !exists {
		return false
	}
	delete(cl.current, labelSet)
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
