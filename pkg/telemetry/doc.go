// Package telemetry groups the observability packages of Mercator Throttle.
//
// # Components
//
//   - logging: structured slog logging with a runtime-adjustable level
//   - metrics: Prometheus export of sampled throughput and acquire calls
//   - tracing: OpenTelemetry spans around acquire calls and HTTP requests
//   - health: liveness and readiness probes, with per-limiter checks
//
// # Wiring
//
// The run command builds each component from its section of the
// configuration and hands them to the limits manager:
//
//	logger, _ := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	tracer, _ := tracing.New(ctx, &cfg.Telemetry.Tracing)
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//
// Throughput events reach the metrics collector through observer listeners,
// so sampling cost is paid on the sampler goroutine and never on the acquire
// path.
package telemetry
