// Package health answers liveness and readiness probes for Mercator Throttle.
//
// Liveness (default /health/live) only says the process runs. Readiness
// (default /health/ready) looks at the limiters themselves:
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterLimiter("api", limiter)
//	checker.RegisterComponent("storage", func(ctx context.Context) error {
//	    _, err := backend.Count(ctx)
//	    return err
//	})
//	health.Register(mux, checker, cfg.Telemetry.Health, probeLimiter, version, commit, buildTime)
//
// The limits manager registers and unregisters its limiters as the
// configuration changes.
//
// # Limiter states
//
// Each limiter is reported with its limit, interval, counters and the length
// of the open overload episode, read on the limiter's own clock:
//   - ok: the last request was granted
//   - throttling: denying, for no longer than one interval
//   - overloaded: denying for longer than one interval
//
// Throttling is normal operation for a rate limiter and keeps the service
// ready. An overloaded limiter, or an unhealthy component, makes readiness
// "degraded" and the HTTP code 503. Component checks run concurrently, each
// bounded by the checker timeout.
//
// # Abuse Protection
//
// RateLimitedHandler wraps a probe with a sliding-window limiter and answers
// 429 once the window is full.
package health
