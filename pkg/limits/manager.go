package limits

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"mercator-hq/throttle/pkg/config"
	"mercator-hq/throttle/pkg/limits/observer"
	"mercator-hq/throttle/pkg/limits/ratelimit"
	"mercator-hq/throttle/pkg/limits/storage"
	"mercator-hq/throttle/pkg/telemetry/health"
	"mercator-hq/throttle/pkg/telemetry/metrics"
	"mercator-hq/throttle/pkg/telemetry/tracing"
)

// Manager owns the named rate limiters of a process and the throughput
// listeners attached to them.
//
// The Manager is the primary interface for acquiring permissions by limiter
// name. Each limiter gets its own observer.Registry; the configured sampling
// options decide which listeners (log, metrics, storage) are registered.
//
// # Example
//
//	manager, err := limits.NewManager(cfg.Limits, limits.Options{
//	    Metrics: collector,
//	    Tracer:  tracer,
//	    Health:  checker,
//	})
//	if err != nil {
//	    return err
//	}
//	defer manager.Close()
//
//	granted, err := manager.Acquire(ctx, "api", 100*time.Millisecond)
type Manager struct {
	backend   storage.Backend
	collector *metrics.Collector
	tracer    *tracing.Tracer
	checker   *health.Checker
	logger    *slog.Logger
	clock     ratelimit.Clock

	mu      sync.RWMutex
	entries map[string]*entry
	closed  bool
}

// entry is one named limiter and its listeners.
type entry struct {
	name     string
	cfg      config.LimitConfig
	limiter  *ratelimit.Limiter
	registry *observer.Registry

	logListener *observer.LogListener
	recorder    *storage.Recorder
	exporter    observer.Listener
}

// NewManager creates a manager with one limiter per entry in limits.
// It fails without starting anything if any limiter is invalid.
func NewManager(limits map[string]config.LimitConfig, opts Options) (*Manager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = tracing.Noop()
	}

	m := &Manager{
		backend:   opts.Backend,
		collector: opts.Metrics,
		tracer:    tracer,
		checker:   opts.Health,
		logger:    logger.With("component", "limits.manager"),
		clock:     opts.Clock,
		entries:   make(map[string]*entry),
	}

	if _, err := m.Reconcile(limits); err != nil {
		return nil, err
	}
	return m, nil
}

// TryAcquire grants a permission from the named limiter if one is free right
// now. It never blocks and is not traced.
func (m *Manager) TryAcquire(name string) (bool, error) {
	l, err := m.Limiter(name)
	if err != nil {
		return false, err
	}

	granted := l.TryAcquireNow()
	m.recordAcquire(name, metrics.ModeNow, granted, nil, 0)
	return granted, nil
}

// Acquire requests a permission from the named limiter.
//
// A zero timeout behaves like TryAcquire. A positive timeout waits up to
// that long. WaitForever (any negative timeout) waits until a permission is
// granted or ctx ends. Cancellation is reported as an error wrapping
// ratelimit.ErrCancelled.
func (m *Manager) Acquire(ctx context.Context, name string, timeout time.Duration) (bool, error) {
	l, err := m.Limiter(name)
	if err != nil {
		return false, err
	}

	mode := acquireMode(timeout)
	ctx, span := m.tracer.Start(ctx, "limits.acquire")
	defer span.End()
	tracing.SetLimiterAttributes(span, name, l.Limit(), l.Interval())

	start := time.Now()
	var granted bool
	switch {
	case timeout == 0:
		granted = l.TryAcquireNow()
	case timeout < 0:
		err = l.Acquire(ctx)
		granted = err == nil
	default:
		granted, err = l.TryAcquire(ctx, timeout)
	}
	wait := time.Since(start)

	m.recordAcquire(name, mode, granted, err, wait)
	tracing.SetAcquireAttributes(span, mode, granted, wait)
	tracing.SetCounterAttributes(span, l.Granted(), l.Denied(), l.Overloaded())

	if err != nil {
		tracing.SetError(span, err)
		return false, fmt.Errorf("acquire from %q: %w", name, err)
	}
	return granted, nil
}

func acquireMode(timeout time.Duration) string {
	switch {
	case timeout == 0:
		return metrics.ModeNow
	case timeout < 0:
		return metrics.ModeBlocking
	default:
		return metrics.ModeTimeout
	}
}

func (m *Manager) recordAcquire(name, mode string, granted bool, err error, wait time.Duration) {
	if m.collector == nil {
		return
	}
	result := metrics.ResultDenied
	switch {
	case err != nil:
		result = metrics.ResultCancelled
	case granted:
		result = metrics.ResultGranted
	}
	m.collector.RecordAcquire(name, mode, result, wait)
}

// Limiter returns the named limiter.
func (m *Manager) Limiter(name string) (*ratelimit.Limiter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	e, ok := m.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLimiter, name)
	}
	return e.limiter, nil
}

// Names returns the configured limiter names in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status returns a snapshot of every limiter, sorted by name.
func (m *Manager) Status() []LimiterStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]LimiterStatus, 0, len(m.entries))
	for _, e := range m.entries {
		statuses = append(statuses, e.status())
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Name < statuses[j].Name
	})
	return statuses
}

// LimiterStatus returns a snapshot of the named limiter.
func (m *Manager) LimiterStatus(name string) (LimiterStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return LimiterStatus{}, ErrManagerClosed
	}
	e, ok := m.entries[name]
	if !ok {
		return LimiterStatus{}, fmt.Errorf("%w: %q", ErrUnknownLimiter, name)
	}
	return e.status(), nil
}

func (e *entry) status() LimiterStatus {
	snap := e.limiter.Snapshot()
	status := LimiterStatus{
		Name:       e.name,
		Limit:      e.limiter.Limit(),
		Interval:   e.limiter.Interval().String(),
		Granted:    snap.Granted,
		Denied:     snap.Denied,
		Overloaded: snap.Overloaded,
		Listeners:  e.registry.Len(),
	}
	if snap.Overloaded {
		status.OverloadedFor = health.OverloadedFor(snap).String()
	}
	return status
}

// Apply reconciles the manager with a reloaded configuration. Its signature
// matches the config.Watcher reload callback.
func (m *Manager) Apply(cfg *config.Config) error {
	result, err := m.Reconcile(cfg.Limits)
	if err != nil {
		return err
	}
	if result.Changed() {
		m.logger.Info("limiters reconfigured",
			"added", result.Added,
			"removed", result.Removed,
			"replaced", result.Replaced,
			"updated", result.Updated,
		)
	}
	return nil
}

// Reconcile brings the set of limiters in line with limits:
//
//   - new names get a fresh limiter
//   - missing names are closed and removed
//   - a changed limit or interval replaces the limiter, resetting its counters
//   - a change confined to sampling adjusts the listeners in place
//
// New limiters are built before anything is changed, so an invalid entry
// leaves the manager untouched.
func (m *Manager) Reconcile(limits map[string]config.LimitConfig) (ApplyResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result ApplyResult
	if m.closed {
		return result, ErrManagerClosed
	}

	fresh := make(map[string]*entry)
	for name, cfg := range limits {
		old, ok := m.entries[name]
		if ok && sameLimiter(old.cfg, cfg) {
			continue
		}
		e, err := m.newEntry(name, cfg)
		if err != nil {
			for _, built := range fresh {
				built.registry.Close()
			}
			return ApplyResult{}, err
		}
		fresh[name] = e
	}

	for name, old := range m.entries {
		if _, ok := limits[name]; !ok {
			m.removeEntry(old)
			delete(m.entries, name)
			result.Removed = append(result.Removed, name)
		}
	}

	for name, cfg := range limits {
		e, built := fresh[name]
		old, existed := m.entries[name]

		switch {
		case built && existed:
			m.removeEntry(old)
			result.Replaced = append(result.Replaced, name)
		case built:
			result.Added = append(result.Added, name)
		default:
			e = old
			if sameSampling(e.cfg.Sampling, cfg.Sampling) {
				continue
			}
			e.cfg = cfg
			result.Updated = append(result.Updated, name)
		}

		m.entries[name] = e
		if err := m.syncListeners(e); err != nil {
			m.logger.Error("failed to register listeners", "limiter", name, "error", err)
		}
		if built {
			m.registerLimiter(e)
		}
	}

	sort.Strings(result.Added)
	sort.Strings(result.Removed)
	sort.Strings(result.Replaced)
	sort.Strings(result.Updated)
	return result, nil
}

func sameLimiter(a, b config.LimitConfig) bool {
	return a.Limit == b.Limit && a.Interval == b.Interval
}

func sameSampling(a, b config.SamplingConfig) bool {
	return a.Interval == b.Interval &&
		a.Log == b.Log &&
		a.Record == b.Record &&
		a.MetricsEnabled() == b.MetricsEnabled()
}

func (m *Manager) newEntry(name string, cfg config.LimitConfig) (*entry, error) {
	l, err := ratelimit.NewWithConfig(ratelimit.Config{
		Name:     name,
		Limit:    cfg.Limit,
		Interval: cfg.Interval,
		Clock:    m.clock,
	})
	if err != nil {
		return nil, fmt.Errorf("limiter %q: %w", name, err)
	}

	logger := m.logger.With("limiter", name)
	e := &entry{
		name:        name,
		cfg:         cfg,
		limiter:     l,
		registry:    observer.NewRegistryWithLogger(l, logger),
		logListener: observer.NewLogListener(logger, slog.LevelInfo),
	}
	if m.backend != nil {
		e.recorder = storage.NewRecorder(m.backend, name)
	}
	if m.collector != nil {
		e.exporter = m.collector.Listener(name)
	}
	return e, nil
}

// syncListeners registers or removes listeners to match the entry's
// sampling configuration. Re-adding a registered listener only changes its
// interval.
func (m *Manager) syncListeners(e *entry) error {
	interval := e.cfg.Sampling.Interval
	if interval <= 0 {
		interval = config.DefaultSamplingInterval
	}

	type toggle struct {
		listener observer.Listener
		enabled  bool
	}
	wanted := []toggle{{e.logListener, e.cfg.Sampling.Log}}
	if e.exporter != nil {
		wanted = append(wanted, toggle{e.exporter, m.collector.Enabled() && e.cfg.Sampling.MetricsEnabled()})
	}
	if e.recorder != nil {
		wanted = append(wanted, toggle{e.recorder, e.cfg.Sampling.Record})
	}

	for _, w := range wanted {
		if !w.enabled {
			e.registry.RemoveListener(w.listener)
			continue
		}
		if err := e.registry.AddListener(w.listener, interval); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) registerLimiter(e *entry) {
	if m.collector != nil {
		m.collector.SetLimiterInfo(e.name, e.cfg.Limit, e.cfg.Interval)
	}
	if m.checker != nil {
		m.checker.RegisterLimiter(e.name, e.limiter)
	}
}

func (m *Manager) removeEntry(e *entry) {
	e.registry.Close()
	if m.checker != nil {
		m.checker.UnregisterLimiter(e.name)
	}
	if m.collector != nil {
		m.collector.RemoveLimiter(e.name)
	}
}

// Check reports an error naming every limiter that has been overloaded for
// longer than its interval.
func (m *Manager) Check(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrManagerClosed
	}

	var failing []string
	for name, e := range m.entries {
		if health.EvaluateLimiter(e.limiter).Status == health.StatusOverloaded {
			failing = append(failing, name)
		}
	}
	if len(failing) > 0 {
		sort.Strings(failing)
		return fmt.Errorf("overloaded limiters: %v", failing)
	}
	return nil
}

// Close stops every sampler and unregisters health checks. The storage
// backend is owned by the caller and left open.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	for name, e := range m.entries {
		m.removeEntry(e)
		delete(m.entries, name)
	}
	m.logger.Info("limits manager closed")
	return nil
}
