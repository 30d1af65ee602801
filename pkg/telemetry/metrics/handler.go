package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns an HTTP handler for the Prometheus metrics endpoint.
//
// It should be mounted at telemetry.metrics.path (default "/metrics"):
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(
		c.registry,
		promhttp.HandlerOpts{
			// Enable OpenMetrics encoding (preferred over Prometheus text format)
			EnableOpenMetrics: true,

			// Serve what could be gathered instead of failing the scrape
			ErrorHandling: promhttp.ContinueOnError,

			// Record scrape counts on the same registry
			Registry: c.registry,
		},
	)
}

// HandlerWithOptions returns an HTTP handler with custom options.
//
// This allows for more control over the handler behavior, such as:
//   - Setting a timeout for metric collection
//   - Limiting concurrent scrape requests
//   - Custom error handling
//
// Example:
//
//	handler := collector.HandlerWithOptions(promhttp.HandlerOpts{
//		Timeout: 10 * time.Second,
//		MaxRequestsInFlight: 5,
//		ErrorHandling: promhttp.HTTPErrorOnError,
//	})
//	http.Handle("/metrics", handler)
func (c *Collector) HandlerWithOptions(opts promhttp.HandlerOpts) http.Handler {
	return promhttp.HandlerFor(c.registry, opts)
}
