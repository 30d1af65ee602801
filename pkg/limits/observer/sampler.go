package observer

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// sampler is the background goroutine serving one listener.
type sampler struct {
	id       string
	listener Listener
	source   Source
	logger   *slog.Logger

	interval atomic.Int64
	resetCh  chan time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	// after, when set, is closed once the previous sampler for the same
	// listener has exited. No event is delivered before that.
	after <-chan struct{}

	// onExit runs when the goroutine exits on its own after a failure.
	onExit func(*sampler)
}

func newSampler(source Source, listener Listener, interval time.Duration, logger *slog.Logger) *sampler {
	id := uuid.NewString()
	s := &sampler{
		id:       id,
		listener: listener,
		source:   source,
		logger:   logger.With("sampler_id", id),
		resetCh:  make(chan time.Duration, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	s.interval.Store(int64(interval))
	return s
}

// run samples immediately to set the baseline, then once per interval
// until stopped or failed.
func (s *sampler) run() {
	defer close(s.doneCh)

	if s.after != nil {
		// Unconditional, so a chain of re-adds exits in order.
		<-s.after
		select {
		case <-s.stopCh:
			return
		default:
		}
	}

	interval := time.Duration(s.interval.Load())
	s.logger.Debug("sampler started", "interval", interval)

	state := newSampleState(s.source.Interval())
	if !s.tick(state) {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			s.logger.Debug("sampler stopped")
			return

		case d := <-s.resetCh:
			ticker.Reset(d)
			s.logger.Debug("sampler interval adjusted", "interval", d)

		case <-ticker.C:
			// Stop wins over a tick that fired at the same time.
			select {
			case <-s.stopCh:
				s.logger.Debug("sampler stopped")
				return
			default:
			}
			if !s.tick(state) {
				return
			}
		}
	}
}

// tick takes one sample and delivers it. It returns false when the sampler
// failed and must exit.
func (s *sampler) tick(state *sampleState) bool {
	event, err := s.sample(state)
	if err != nil {
		failure := &SamplerError{SamplerID: s.id, Err: err}
		s.logger.Error("sampler failed, stopping", "error", err)
		s.notifyFailed(failure)
		if s.onExit != nil {
			s.onExit(s)
		}
		return false
	}

	s.deliver(event)
	return true
}

// sample reads the source and computes the event, converting a panic into
// an error.
func (s *sampler) sample(state *sampleState) (event ThroughputEvent, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while sampling: %v", r)
		}
	}()
	return state.next(s.source.Snapshot()), nil
}

// deliver hands the event to the listener. Listener failures are logged and
// never stop the sampler.
func (s *sampler) deliver(event ThroughputEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("listener panicked", "panic", r)
		}
	}()
	if err := s.listener.OnSample(event); err != nil {
		s.logger.Warn("listener returned error", "error", err)
	}
}

func (s *sampler) notifyFailed(err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("listener panicked in failure callback", "panic", r)
		}
	}()
	s.listener.OnSamplerFailed(err)
}

// setInterval changes the tick period. The newest value wins if the
// goroutine has not picked up an earlier one yet. Callers serialise calls.
func (s *sampler) setInterval(d time.Duration) {
	s.interval.Store(int64(d))
	select {
	case s.resetCh <- d:
	default:
		select {
		case <-s.resetCh:
		default:
		}
		s.resetCh <- d
	}
}

// stop asks the goroutine to exit and wakes it. It does not wait.
func (s *sampler) stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// done is closed once the goroutine has exited.
func (s *sampler) done() <-chan struct{} {
	return s.doneCh
}
