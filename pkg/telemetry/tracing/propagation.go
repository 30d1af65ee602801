package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Propagator returns the configured text map propagator. After New it
// handles W3C Trace Context and W3C Baggage.
func Propagator() propagation.TextMapPropagator {
	return otel.GetTextMapPropagator()
}

// Extract extracts trace context from HTTP headers and returns a context
// with the extracted trace context. If no trace context is found in the
// headers, the original context is returned.
func Extract(ctx context.Context, headers http.Header) context.Context {
	return Propagator().Extract(ctx, propagation.HeaderCarrier(headers))
}

// Inject injects trace context into HTTP headers.
func Inject(ctx context.Context, headers http.Header) {
	Propagator().Inject(ctx, propagation.HeaderCarrier(headers))
}

// HTTPMiddleware extracts trace context from incoming requests, starts a
// server span named after the route, and echoes the trace ID in the
// X-Trace-ID response header.
//
// Usage:
//
//	mux.Handle("/limits", tracer.HTTPMiddleware("limits", handler))
func (t *Tracer) HTTPMiddleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := Extract(r.Context(), r.Header)
		ctx, span := t.Start(ctx, "http "+route)
		defer span.End()

		if sc := span.SpanContext(); sc.IsValid() {
			w.Header().Set("X-Trace-ID", sc.TraceID().String())
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
