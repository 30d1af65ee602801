// Package server provides the HTTP server of Mercator Throttle.
//
// # Endpoints
//
//	GET  /limits                  status of every limiter
//	GET  /limits/{name}           status of one limiter
//	POST /limits/{name}/acquire   request a permission (?timeout=250ms)
//	GET  /metrics                 Prometheus scrape endpoint (telemetry.metrics.path)
//	GET  /health/live             liveness probe (telemetry.health.liveness_path)
//	GET  /health/ready            readiness probe (telemetry.health.readiness_path)
//	GET  /version                 build information
//
// An acquire request answers 200 when a permission was granted and 429 with
// a Retry-After header when it was not:
//
//	{"limiter": "api", "granted": false, "wait_ms": 250}
//
// Unknown limiters answer 404. Errors share one body shape:
//
//	{"error": {"message": "unknown limiter: \"nope\"", "type": "not_found"}}
//
// # Middleware
//
// Requests pass through, outermost first: request ID assignment
// (X-Request-ID), panic recovery, structured request logging, and a tracing
// span per limits route.
//
// With server.auth enabled the /limits routes require an API key (401
// without one). A key restricted to some limiters gets 403 for the others.
// Metrics, health and version stay open.
//
// # TLS
//
// With server.tls enabled the server serves HTTPS. The certificate pair is
// reloaded from disk every server.tls.reload_interval, so a renewed
// certificate is picked up without a restart.
//
// # Usage
//
//	srv, err := server.NewServer(cfg, server.Deps{
//	    Manager: manager,
//	    Metrics: collector,
//	    Health:  checker,
//	    Tracer:  tracer,
//	    Logger:  logger,
//	})
//	if err != nil {
//	    return err
//	}
//	return srv.Start(ctx) // returns after ctx is cancelled and shutdown completes
package server
