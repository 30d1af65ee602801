// Package tracing provides OpenTelemetry distributed tracing for limiter
// operations.
//
// # Overview
//
// When telemetry.tracing.enabled is true, New installs a global tracer
// provider that exports spans over OTLP gRPC and a W3C Trace Context
// propagator. When tracing is disabled, a noop tracer is returned and spans
// cost next to nothing.
//
// Blocking acquires are traced with the limiter name, limit, interval, wait
// time and outcome:
//
//	ctx, span := tracer.Start(ctx, "limiter.acquire")
//	defer span.End()
//	tracing.SetLimiterAttributes(span, "api", 100, 5*time.Second)
//
// # Sampling
//
// telemetry.tracing.sample_ratio selects the fraction of root traces kept.
// Child spans follow their parent's decision.
//
// # HTTP
//
// Tracer.HTTPMiddleware continues incoming traceparent headers, so a caller's
// trace spans the status endpoints.
package tracing
