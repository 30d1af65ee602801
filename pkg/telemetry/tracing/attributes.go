package tracing

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for limiter spans. Custom keys use the "throttle.*"
// namespace.
const (
	AttrLimiter       = "throttle.limiter"
	AttrLimit         = "throttle.limit"
	AttrIntervalMs    = "throttle.interval_ms"
	AttrTimeoutMs     = "throttle.timeout_ms"
	AttrMode          = "throttle.mode"
	AttrGranted       = "throttle.granted"
	AttrWaitMs        = "throttle.wait_ms"
	AttrOverloaded    = "throttle.overloaded"
	AttrDeniedTotal   = "throttle.denied_total"
	AttrGrantedTotal  = "throttle.granted_total"
	AttrSamplerID     = "throttle.sampler_id"
	AttrRecordsPruned = "throttle.records_pruned"
)

// SetLimiterAttributes sets the static limiter parameters on a span.
func SetLimiterAttributes(span trace.Span, name string, limit int, interval time.Duration) {
	span.SetAttributes(
		attribute.String(AttrLimiter, name),
		attribute.Int(AttrLimit, limit),
		attribute.Int64(AttrIntervalMs, interval.Milliseconds()),
	)
}

// SetAcquireAttributes records the outcome of an acquire attempt.
func SetAcquireAttributes(span trace.Span, mode string, granted bool, wait time.Duration) {
	span.SetAttributes(
		attribute.String(AttrMode, mode),
		attribute.Bool(AttrGranted, granted),
		attribute.Float64(AttrWaitMs, float64(wait)/float64(time.Millisecond)),
	)
}

// SetCounterAttributes records the limiter counters at the end of a span.
func SetCounterAttributes(span trace.Span, granted, denied uint64, overloaded bool) {
	span.SetAttributes(
		attribute.Int64(AttrGrantedTotal, int64(granted)),
		attribute.Int64(AttrDeniedTotal, int64(denied)),
		attribute.Bool(AttrOverloaded, overloaded),
	)
}

// AddEvent adds an event to a span.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
