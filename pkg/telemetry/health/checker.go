package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"mercator-hq/throttle/pkg/limits/ratelimit"
)

// Result and overall status values.
const (
	StatusOK         = "ok"
	StatusThrottling = "throttling"
	StatusOverloaded = "overloaded"
	StatusUnhealthy  = "unhealthy"
	StatusReady      = "ready"
	StatusDegraded   = "degraded"
)

// ErrCheckTimeout is reported when a component check outlives the checker
// timeout.
var ErrCheckTimeout = errors.New("health check timeout")

// CheckFunc checks one component, returning nil when it is healthy.
type CheckFunc func(ctx context.Context) error

// LimiterSource is what readiness reads from a limiter.
// *ratelimit.Limiter implements it.
type LimiterSource interface {
	Snapshot() ratelimit.Snapshot
	Limit() int
	Interval() time.Duration
}

// LimiterReport describes a limiter at the time of a readiness check.
type LimiterReport struct {
	Limit         int    `json:"limit"`
	Interval      string `json:"interval"`
	Granted       uint64 `json:"granted"`
	Denied        uint64 `json:"denied"`
	Overloaded    bool   `json:"overloaded"`
	OverloadedFor string `json:"overloaded_for,omitempty"`
}

// CheckResult is the outcome for one limiter or component.
//
// Limiters report "ok", "throttling" (denying for at most one interval) or
// "overloaded" (denying for longer). Components report "ok" or "unhealthy".
type CheckResult struct {
	Status     string         `json:"status"`
	Message    string         `json:"message,omitempty"`
	DurationMs float64        `json:"duration_ms,omitempty"`
	Limiter    *LimiterReport `json:"limiter,omitempty"`
}

// HealthStatus is a probe response.
type HealthStatus struct {
	// Status is "ok" for liveness, "ready" or "degraded" for readiness.
	Status     string                 `json:"status"`
	Limiters   map[string]CheckResult `json:"limiters,omitempty"`
	Components map[string]CheckResult `json:"components,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Checker answers liveness and readiness for a set of limiters and the
// components they depend on.
type Checker struct {
	mu         sync.RWMutex
	limiters   map[string]LimiterSource
	components map[string]CheckFunc
	timeout    time.Duration
}

// New creates a checker whose component checks are each bounded by
// timeout. A non-positive timeout means 5 seconds.
func New(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		limiters:   make(map[string]LimiterSource),
		components: make(map[string]CheckFunc),
		timeout:    timeout,
	}
}

// RegisterLimiter adds or replaces the limiter reported under name.
func (c *Checker) RegisterLimiter(name string, l LimiterSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limiters[name] = l
}

// UnregisterLimiter stops reporting the named limiter.
func (c *Checker) UnregisterLimiter(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.limiters, name)
}

// RegisterComponent adds or replaces a component check, such as the
// throughput store.
func (c *Checker) RegisterComponent(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components[name] = check
}

// UnregisterComponent removes a component check.
func (c *Checker) UnregisterComponent(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.components, name)
}

// Limiters returns the reported limiter names, sorted.
func (c *Checker) Limiters() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedKeys(c.limiters)
}

// Components returns the registered component names, sorted.
func (c *Checker) Components() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedKeys(c.components)
}

// CheckLiveness reports that the process is running. An overloaded limiter
// is not a reason to restart, so nothing is evaluated.
func (c *Checker) CheckLiveness(context.Context) HealthStatus {
	return HealthStatus{Status: StatusOK, Timestamp: time.Now()}
}

// CheckReadiness evaluates every limiter and runs every component check.
// The service is degraded while any limiter has been overloaded for longer
// than its interval or any component is unhealthy.
func (c *Checker) CheckReadiness(ctx context.Context) HealthStatus {
	c.mu.RLock()
	limiters := make(map[string]LimiterSource, len(c.limiters))
	for name, l := range c.limiters {
		limiters[name] = l
	}
	components := make(map[string]CheckFunc, len(c.components))
	for name, check := range c.components {
		components[name] = check
	}
	c.mu.RUnlock()

	status := HealthStatus{
		Status:     StatusReady,
		Limiters:   make(map[string]CheckResult, len(limiters)),
		Components: make(map[string]CheckResult, len(components)),
	}

	for name, l := range limiters {
		result := EvaluateLimiter(l)
		if result.Status == StatusOverloaded {
			result.Message = fmt.Sprintf("limiter %q overloaded for %s", name, result.Limiter.OverloadedFor)
			status.Status = StatusDegraded
		}
		status.Limiters[name] = result
	}

	for name, result := range c.runComponents(ctx, components) {
		if result.Status != StatusOK {
			status.Status = StatusDegraded
		}
		status.Components[name] = result
	}

	status.Timestamp = time.Now()
	return status
}

// EvaluateLimiter reports a limiter's state. Overload time is measured on
// the limiter's own clock.
func EvaluateLimiter(l LimiterSource) CheckResult {
	snap := l.Snapshot()
	interval := l.Interval()
	report := &LimiterReport{
		Limit:      l.Limit(),
		Interval:   interval.String(),
		Granted:    snap.Granted,
		Denied:     snap.Denied,
		Overloaded: snap.Overloaded,
	}

	result := CheckResult{Status: StatusOK, Limiter: report}
	if !snap.Overloaded {
		return result
	}

	d := OverloadedFor(snap)
	report.OverloadedFor = d.String()
	result.Status = StatusThrottling
	if d > interval {
		result.Status = StatusOverloaded
	}
	return result
}

// OverloadedFor returns how long the open overload episode in snap has
// lasted, or zero when there is none.
func OverloadedFor(snap ratelimit.Snapshot) time.Duration {
	if !snap.Overloaded || snap.Time < snap.OverloadStart {
		return 0
	}
	return time.Duration(snap.Time - snap.OverloadStart)
}

// runComponents runs the checks concurrently, each under its own timeout.
func (c *Checker) runComponents(ctx context.Context, checks map[string]CheckFunc) map[string]CheckResult {
	results := make(map[string]CheckResult, len(checks))
	var mu sync.Mutex
	var g errgroup.Group
	for name, check := range checks {
		g.Go(func() error {
			result := c.runComponent(ctx, check)
			mu.Lock()
			results[name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Checker) runComponent(ctx context.Context, check CheckFunc) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	errCh := make(chan error, 1)
	go func() { errCh <- check(ctx) }()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		err = ErrCheckTimeout
	}

	result := CheckResult{Status: StatusOK, DurationMs: millis(time.Since(start))}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = err.Error()
	}
	return result
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
