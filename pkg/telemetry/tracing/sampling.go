package tracing

import (
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// createSampler creates a parent-based sampler for the given ratio.
//
// A ratio of 1 samples every trace and 0 samples none. Anything in between
// uses TraceIDRatioBased, so the decision is consistent for a trace ID across
// services. Wrapping in ParentBased makes child spans follow the parent's
// decision when one is present.
func createSampler(ratio float64) (sdktrace.Sampler, error) {
	if ratio < 0.0 || ratio > 1.0 {
		return nil, fmt.Errorf("sample ratio must be between 0.0 and 1.0, got %f", ratio)
	}

	var base sdktrace.Sampler
	switch ratio {
	case 1:
		base = sdktrace.AlwaysSample()
	case 0:
		base = sdktrace.NeverSample()
	default:
		base = sdktrace.TraceIDRatioBased(ratio)
	}

	return sdktrace.ParentBased(base), nil
}
