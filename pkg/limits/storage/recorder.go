package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mercator-hq/throttle/pkg/limits/observer"
)

// Recorder is an observer.Listener that persists every event to a Backend.
//
// # Example
//
//	recorder := storage.NewRecorder(backend, "api")
//	registry.AddListener(recorder, 10*time.Second)
type Recorder struct {
	backend Backend
	limiter string
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewRecorder creates a Recorder writing events for the named limiter.
func NewRecorder(backend Backend, limiter string) *Recorder {
	return &Recorder{
		backend: backend,
		limiter: limiter,
		timeout: 5 * time.Second,
		now:     time.Now,
		logger:  slog.Default().With("component", "limits.storage.recorder", "limiter", limiter),
	}
}

// OnSample saves the event. A failed save is returned to the sampler, which
// logs it and keeps sampling.
func (r *Recorder) OnSample(event observer.ThroughputEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	record := &Record{
		ID:         uuid.NewString(),
		Limiter:    r.limiter,
		RecordedAt: r.now(),
		Event:      event,
	}
	if err := r.backend.Save(ctx, record); err != nil {
		return fmt.Errorf("record throughput event for %q: %w", r.limiter, err)
	}
	return nil
}

// OnSamplerFailed logs the failure; no further events will arrive.
func (r *Recorder) OnSamplerFailed(err error) {
	r.logger.Error("recording stopped, sampler failed", "error", err)
}
