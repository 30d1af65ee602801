package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceInterval is how long the watcher waits for writes to settle.
const DefaultDebounceInterval = 200 * time.Millisecond

// Watcher reloads the configuration file when it changes.
//
// The watcher observes the file's directory rather than the file itself, so
// editors that replace the file through a rename are handled. Bursts of
// events are collapsed by a Debouncer.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce *Debouncer
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a watcher for the configuration file at path. A
// non-positive debounce uses DefaultDebounceInterval.
func NewWatcher(path string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounceInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", path, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		path:     abs,
		watcher:  fsw,
		debounce: NewDebouncer(debounce),
		logger:   logger.With("component", "config.watcher"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch blocks until ctx is cancelled or Stop is called. After each settled
// change it reloads the file through ReloadConfig and passes the new
// configuration to onReload. Invalid files are logged and skipped; the
// previous configuration stays in effect.
func (w *Watcher) Watch(ctx context.Context, onReload func(*Config) error) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer close(w.doneCh)

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %q: %w", filepath.Dir(w.path), err)
	}

	w.logger.Info("config watcher started",
		"path", w.path,
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config watcher stopped (context cancelled)")
			return nil

		case <-w.stopCh:
			w.logger.Info("config watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.relevant(event) {
				continue
			}

			w.logger.Debug("config file event", "op", event.Op.String())
			w.debounce.Trigger(func() {
				w.reload(onReload)
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

// reload loads the file and hands it to onReload.
func (w *Watcher) reload(onReload func(*Config) error) {
	cfg, err := ReloadConfig(w.path)
	if err != nil {
		w.logger.Error("config reload failed, keeping previous configuration", "error", err)
		return
	}

	if onReload != nil {
		if err := onReload(cfg); err != nil {
			w.logger.Error("applying reloaded configuration failed", "error", err)
			return
		}
	}
	w.logger.Info("configuration reloaded", "limiters", len(cfg.Limits))
}

// relevant reports whether event concerns the watched file.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	return filepath.Clean(event.Name) == w.path
}

// Stop stops the watcher, cancels any pending reload, and releases the
// fsnotify handle. It waits for Watch to return if it is running.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()

	if running {
		select {
		case <-w.stopCh:
		default:
			close(w.stopCh)
		}
		<-w.doneCh
	}

	w.debounce.Stop()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// Debouncer collapses bursts of triggers into one callback that runs after a
// quiet period.
type Debouncer struct {
	interval time.Duration
	timer    *time.Timer
	mu       sync.Mutex
	callback func()
	stopped  bool
}

// NewDebouncer creates a debouncer with the given quiet period.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger schedules callback after the quiet period, replacing any pending
// callback.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.callback = callback
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	cb := d.callback
	d.callback = nil
	stopped := d.stopped
	d.mu.Unlock()

	if cb != nil && !stopped {
		cb()
	}
}

// Stop cancels any pending callback. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
