package observer

import (
	"context"
	"fmt"
	"log/slog"
)

// Listener receives throughput events from a sampler.
//
// Listeners are identified by value when registered, so implementations
// must be comparable; pointer receivers are the usual choice.
type Listener interface {
	// OnSample is called once per tick from the listener's own sampler
	// goroutine. Calls for one listener never overlap. A returned error or a
	// panic is logged and sampling continues.
	OnSample(event ThroughputEvent) error

	// OnSamplerFailed is called at most once, when the sampler itself fails
	// and stops. No further events are delivered afterwards.
	OnSamplerFailed(err error)
}

// ListenerFuncs adapts plain functions to the Listener interface. Use a
// pointer to it as the registered listener. Nil functions are skipped.
type ListenerFuncs struct {
	Sample func(event ThroughputEvent) error
	Failed func(err error)
}

// OnSample calls Sample.
func (f *ListenerFuncs) OnSample(event ThroughputEvent) error {
	if f.Sample == nil {
		return nil
	}
	return f.Sample(event)
}

// OnSamplerFailed calls Failed.
func (f *ListenerFuncs) OnSamplerFailed(err error) {
	if f.Failed != nil {
		f.Failed(err)
	}
}

// LogListener writes every event to a structured logger.
type LogListener struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogListener creates a LogListener that logs at level. A nil logger
// uses slog.Default.
func NewLogListener(logger *slog.Logger, level slog.Level) *LogListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogListener{logger: logger, level: level}
}

// OnSample logs the event.
func (l *LogListener) OnSample(event ThroughputEvent) error {
	l.logger.Log(context.Background(), l.level, "throughput sample",
		"interval", event.Interval,
		"passed", event.Passed,
		"denied", event.Denied,
		"overloaded", event.Overloaded,
		"interval_overload", event.IntervalOverload,
		"interval_throughput", event.IntervalThroughput,
		"total_throughput", event.TotalThroughput,
	)
	return nil
}

// OnSamplerFailed logs the failure.
func (l *LogListener) OnSamplerFailed(err error) {
	l.logger.Error("throughput sampler failed", "error", err)
}

// SamplerError reports a failure of a sampler's own loop, as opposed to an
// error returned by its listener.
type SamplerError struct {
	// SamplerID identifies the failed sampler in logs.
	SamplerID string

	// Err is the underlying cause.
	Err error
}

func (e *SamplerError) Error() string {
	return fmt.Sprintf("sampler %s failed: %v", e.SamplerID, e.Err)
}

func (e *SamplerError) Unwrap() error {
	return e.Err
}
