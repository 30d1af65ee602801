package limits

import (
	"errors"
	"log/slog"
	"time"

	"mercator-hq/throttle/pkg/limits/ratelimit"
	"mercator-hq/throttle/pkg/limits/storage"
	"mercator-hq/throttle/pkg/telemetry/health"
	"mercator-hq/throttle/pkg/telemetry/metrics"
	"mercator-hq/throttle/pkg/telemetry/tracing"
)

var (
	// ErrUnknownLimiter is returned when a limiter name is not configured.
	ErrUnknownLimiter = errors.New("unknown limiter")

	// ErrManagerClosed is returned by operations on a closed Manager.
	ErrManagerClosed = errors.New("limits manager closed")
)

// WaitForever makes Manager.Acquire block until a permission is granted or
// the context ends.
const WaitForever time.Duration = -1

// Options carries the optional collaborators of a Manager. A nil field
// disables the corresponding feature.
type Options struct {
	// Backend persists sampled events for limiters with sampling.record set.
	Backend storage.Backend

	// Metrics exports sampled events and acquire calls.
	Metrics *metrics.Collector

	// Tracer wraps Acquire calls in spans. Defaults to a no-op tracer.
	Tracer *tracing.Tracer

	// Health receives one readiness check per limiter.
	Health *health.Checker

	// Logger is the base logger. Defaults to slog.Default.
	Logger *slog.Logger

	// Clock is handed to every limiter. Defaults to a MonotonicClock per
	// limiter.
	Clock ratelimit.Clock
}

// LimiterStatus is a point-in-time view of one named limiter.
type LimiterStatus struct {
	// Name is the configured limiter name.
	Name string `json:"name"`

	// Limit is the number of permissions per interval.
	Limit int `json:"limit"`

	// Interval is how long a granted permission stays valid.
	Interval string `json:"interval"`

	// Granted is the total number of permissions granted.
	Granted uint64 `json:"granted"`

	// Denied is the total number of denied requests.
	Denied uint64 `json:"denied"`

	// Overloaded reports whether the limiter is currently denying requests.
	Overloaded bool `json:"overloaded"`

	// OverloadedFor is how long the current overload episode has lasted.
	// Empty when not overloaded.
	OverloadedFor string `json:"overloaded_for,omitempty"`

	// Listeners is the number of active samplers.
	Listeners int `json:"listeners"`
}

// ApplyResult summarizes what Manager.Apply changed.
type ApplyResult struct {
	Added    []string
	Removed  []string
	Replaced []string
	Updated  []string
}

// Changed reports whether Apply touched any limiter.
func (r ApplyResult) Changed() bool {
	return len(r.Added)+len(r.Removed)+len(r.Replaced)+len(r.Updated) > 0
}
