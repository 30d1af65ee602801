package observer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/throttle/pkg/limits/ratelimit"
)

var (
	// ErrRegistryClosed is returned when adding a listener after Close.
	ErrRegistryClosed = errors.New("observer registry closed")

	// ErrInvalidListener is returned for nil or non-comparable listeners.
	ErrInvalidListener = errors.New("invalid listener")

	// ErrInvalidSampleInterval is returned for non-positive sample intervals.
	ErrInvalidSampleInterval = errors.New("sample interval must be positive")
)

// Source is what samplers read from. *ratelimit.Limiter implements it.
type Source interface {
	// Snapshot returns the current counters.
	Snapshot() ratelimit.Snapshot

	// Interval returns the limiter interval, used to cap overload time.
	Interval() time.Duration
}

// Registry runs one sampler goroutine per registered listener.
//
// Registration is rare and guarded by a mutex; sampling never touches the
// limiter's hot path beyond atomic loads. A Registry must be closed by its
// owner to stop its goroutines.
//
// # Example
//
//	registry := observer.NewRegistry(limiter)
//	defer registry.Close()
//
//	listener := &observer.ListenerFuncs{
//	    Sample: func(e observer.ThroughputEvent) error {
//	        fmt.Printf("%.1f/s\n", e.IntervalThroughput)
//	        return nil
//	    },
//	}
//	if err := registry.AddListener(listener, 2*time.Second); err != nil {
//	    return err
//	}
type Registry struct {
	source Source
	logger *slog.Logger

	mu       sync.Mutex
	samplers map[Listener]*sampler
	// retiring holds stopped samplers that may still be delivering.
	retiring map[Listener]*sampler
	closed   bool
	wg       sync.WaitGroup
}

// NewRegistry creates a Registry sampling source.
func NewRegistry(source Source) *Registry {
	return NewRegistryWithLogger(source, nil)
}

// NewRegistryWithLogger creates a Registry that logs through logger. A nil
// logger uses slog.Default.
func NewRegistryWithLogger(source Source, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		source:   source,
		logger:   logger.With("component", "limits.observer"),
		samplers: make(map[Listener]*sampler),
		retiring: make(map[Listener]*sampler),
	}
}

// usable reports whether listener can be used as a map key. Comparable
// types that hold slices, maps or funcs in interface fields fail only at
// hash time, so the check is done by hashing.
func usable(listener Listener) (ok bool) {
	if listener == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	_ = map[Listener]struct{}{listener: {}}
	return true
}

// AddListener starts sampling for listener every interval. The first event
// is delivered right away and reports zero throughput.
//
// Adding a listener that is already registered changes its interval instead
// of starting a second sampler. A listener removed while a delivery was in
// progress gets its first new event only after that delivery returns.
func (r *Registry) AddListener(listener Listener, interval time.Duration) error {
	if !usable(listener) {
		return ErrInvalidListener
	}
	if interval <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidSampleInterval, interval)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}

	if s, ok := r.samplers[listener]; ok {
		s.setInterval(interval)
		return nil
	}

	s := newSampler(r.source, listener, interval, r.logger)
	s.onExit = r.forget
	if prev, ok := r.retiring[listener]; ok {
		s.after = prev.done()
		delete(r.retiring, listener)
	}
	r.samplers[listener] = s

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		s.run()
		r.retired(s)
	}()

	r.logger.Debug("listener added", "sampler_id", s.id, "interval", interval)
	return nil
}

// RemoveListener stops the listener's sampler and reports whether the
// listener was registered. The sampler finishes any delivery in progress
// and exits; RemoveListener does not wait for it.
func (r *Registry) RemoveListener(listener Listener) bool {
	if !usable(listener) {
		return false
	}

	r.mu.Lock()
	s, ok := r.samplers[listener]
	if ok {
		delete(r.samplers, listener)
		r.retiring[listener] = s
	}
	r.mu.Unlock()

	if ok {
		s.stop()
		r.logger.Debug("listener removed", "sampler_id", s.id)
	}
	return ok
}

// RemoveAllListeners stops every sampler.
func (r *Registry) RemoveAllListeners() {
	r.mu.Lock()
	samplers := r.samplers
	r.samplers = make(map[Listener]*sampler)
	for l, s := range samplers {
		r.retiring[l] = s
	}
	r.mu.Unlock()

	for _, s := range samplers {
		s.stop()
	}
}

// Close removes all listeners, waits for their samplers to exit, and
// rejects later registrations. It must not be called from a listener
// callback.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.RemoveAllListeners()
	r.wg.Wait()
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samplers)
}

// SampleInterval returns the listener's current sample interval.
func (r *Registry) SampleInterval(listener Listener) (time.Duration, bool) {
	if !usable(listener) {
		return 0, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.samplers[listener]
	if !ok {
		return 0, false
	}
	return time.Duration(s.interval.Load()), true
}

// forget drops a sampler that exited after a failure, unless it has already
// been replaced or removed.
func (r *Registry) forget(s *sampler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.samplers[s.listener]; ok && current == s {
		delete(r.samplers, s.listener)
	}
}

// retired drops an exited sampler from the retiring set unless a newer
// sampler for the same listener took its place.
func (r *Registry) retired(s *sampler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.retiring[s.listener]; ok && prev == s {
		delete(r.retiring, s.listener)
	}
}
