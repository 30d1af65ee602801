package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressReporter reports progress for long-running operations.
type ProgressReporter interface {
	Start(total int64)
	Update(current int64)
	SetStatus(status string)
	Finish()
	Error(err error)
}

// SimpleProgress implements a single-line text progress bar. It is used by
// the bench command, where the unit is offered requests.
type SimpleProgress struct {
	mu      sync.Mutex
	total   int64
	current int64
	status  string
	started time.Time
	writer  io.Writer
	now     func() time.Time
}

// NewProgressReporter creates a new progress reporter that writes to w.
// If w is nil, it defaults to os.Stderr so progress never mixes with
// formatted results on stdout.
func NewProgressReporter(w io.Writer) ProgressReporter {
	if w == nil {
		w = os.Stderr
	}
	return &SimpleProgress{
		writer: w,
		now:    time.Now,
	}
}

// Start initializes the progress reporter with the total number of items.
func (p *SimpleProgress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.current = 0
	p.started = p.now()

	p.render()
}

// Update updates the current progress. Values beyond the total are clamped.
func (p *SimpleProgress) Update(current int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if current > p.total {
		current = p.total
	}
	p.current = current
	p.render()
}

// SetStatus sets a short message shown after the bar, such as the current
// grant ratio.
func (p *SimpleProgress) SetStatus(status string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = status
	p.render()
}

// Finish marks the progress as complete.
func (p *SimpleProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = p.total
	p.render()
	fmt.Fprintln(p.writer)
}

// Error reports an error during progress.
func (p *SimpleProgress) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.writer, "\n✗ Error: %v\n", err)
}

func (p *SimpleProgress) render() {
	if p.total <= 0 {
		return
	}

	percent := float64(p.current) / float64(p.total) * 100
	barWidth := 40
	filled := int(float64(barWidth) * percent / 100)

	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	var rate float64
	if elapsed := p.now().Sub(p.started).Seconds(); elapsed > 0 {
		rate = float64(p.current) / elapsed
	}

	fmt.Fprintf(p.writer, "\rProgress: [%s] %.1f%% (%d/%d) %.1f req/s",
		bar, percent, p.current, p.total, rate)
	if p.status != "" {
		fmt.Fprintf(p.writer, " %s", p.status)
	}
}
