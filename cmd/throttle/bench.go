package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"mercator-hq/throttle/pkg/cli"
	"mercator-hq/throttle/pkg/config"
	"mercator-hq/throttle/pkg/limits/observer"
	"mercator-hq/throttle/pkg/limits/ratelimit"
)

var benchFlags struct {
	limiter     string
	limit       int
	interval    time.Duration
	rate        float64
	concurrency int
	duration    time.Duration
	sample      time.Duration
	timeout     time.Duration
	output      string
	quiet       bool
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Drive a limiter at a paced offered load",
	Long: `Drive an in-process limiter with a paced offered load and report what it
admitted.

Workers share one pacer that offers --rate requests per second (0 offers as
fast as the workers can go). Each request calls the limiter without waiting,
or waits up to --timeout for a permission. A sampler reports the limiter's
throughput every --sample; the samples and a summary are printed at the end.

Examples:
  # 100 permits per second, offered 250 requests per second for 10s
  throttle bench --limit 100 --interval 1s --rate 250 --duration 10s

  # Use the "api" limiter from the config file with 8 workers
  throttle bench --limiter api --concurrency 8

  # Wait up to 50ms for each permission, JSON report
  throttle bench --timeout 50ms --output json`,
	RunE: runBench,
}

func init() {
	rootCmd.AddCommand(benchCmd)

	benchCmd.Flags().StringVar(&benchFlags.limiter, "limiter", "", "take limit and interval from this configured limiter")
	benchCmd.Flags().IntVar(&benchFlags.limit, "limit", 100, "permits per interval")
	benchCmd.Flags().DurationVar(&benchFlags.interval, "interval", time.Second, "limiter interval")
	benchCmd.Flags().Float64Var(&benchFlags.rate, "rate", 200, "offered requests per second (0 for unpaced)")
	benchCmd.Flags().IntVar(&benchFlags.concurrency, "concurrency", 4, "concurrent workers")
	benchCmd.Flags().DurationVar(&benchFlags.duration, "duration", 10*time.Second, "test duration")
	benchCmd.Flags().DurationVar(&benchFlags.sample, "sample", time.Second, "sampling interval")
	benchCmd.Flags().DurationVar(&benchFlags.timeout, "timeout", 0, "wait up to this long for each permission")
	benchCmd.Flags().StringVarP(&benchFlags.output, "output", "o", "text", "output format: text, json, csv")
	benchCmd.Flags().BoolVarP(&benchFlags.quiet, "quiet", "q", false, "hide the progress bar")
}

// benchOptions parameterizes one benchmark run.
type benchOptions struct {
	Limit       int
	Interval    time.Duration
	Rate        float64
	Concurrency int
	Duration    time.Duration
	Sample      time.Duration
	Timeout     time.Duration
}

func (o benchOptions) validate() error {
	switch {
	case o.Concurrency < 1:
		return cli.NewConfigError("--concurrency", "must be at least 1")
	case o.Duration <= 0:
		return cli.NewConfigError("--duration", "must be positive")
	case o.Sample <= 0:
		return cli.NewConfigError("--sample", "must be positive")
	case o.Rate < 0:
		return cli.NewConfigError("--rate", "must not be negative")
	case o.Timeout < 0:
		return cli.NewConfigError("--timeout", "must not be negative")
	}
	return nil
}

// benchReport is the result of a benchmark run.
type benchReport struct {
	Limit       int                        `json:"limit"`
	Interval    string                     `json:"interval"`
	OfferedRate float64                    `json:"offered_rate"`
	Elapsed     string                     `json:"elapsed"`
	Offered     uint64                     `json:"offered"`
	Granted     uint64                     `json:"granted"`
	Denied      uint64                     `json:"denied"`
	Cancelled   uint64                     `json:"cancelled"`
	Throughput  float64                    `json:"throughput"`
	Overloaded  bool                       `json:"overloaded"`
	Samples     []observer.ThroughputEvent `json:"samples"`
}

// Header implements cli.Table; the table lists the samples.
func (r *benchReport) Header() []string {
	return []string{"TIME", "INTERVAL", "PASSED", "DENIED", "THROUGHPUT", "TOTAL", "OVERLOAD", "OVERLOADED"}
}

// Rows implements cli.Table.
func (r *benchReport) Rows() [][]string {
	rows := make([][]string, len(r.Samples))
	for i, e := range r.Samples {
		rows[i] = []string{
			e.SampleTime.Truncate(time.Millisecond).String(),
			e.Interval.Truncate(time.Millisecond).String(),
			strconv.FormatUint(e.Passed, 10),
			strconv.FormatUint(e.Denied, 10),
			strconv.FormatFloat(e.IntervalThroughput, 'f', 2, 64),
			strconv.FormatFloat(e.TotalThroughput, 'f', 2, 64),
			fmt.Sprintf("%.1f%%", e.OverloadRatio()*100),
			strconv.FormatBool(e.Overloaded),
		}
	}
	return rows
}

func runBench(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(benchFlags.output)
	if err != nil {
		return cli.NewConfigError("--output", err.Error())
	}

	opts := benchOptions{
		Limit:       benchFlags.limit,
		Interval:    benchFlags.interval,
		Rate:        benchFlags.rate,
		Concurrency: benchFlags.concurrency,
		Duration:    benchFlags.duration,
		Sample:      benchFlags.sample,
		Timeout:     benchFlags.timeout,
	}
	if benchFlags.limiter != "" {
		cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
		if err != nil {
			return err
		}
		lc, ok := cfg.Limits[benchFlags.limiter]
		if !ok {
			return cli.NewConfigError("--limiter", fmt.Sprintf("limiter %q is not configured", benchFlags.limiter))
		}
		opts.Limit, opts.Interval = lc.Limit, lc.Interval
	}
	if err := opts.validate(); err != nil {
		return err
	}

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	var progress cli.ProgressReporter
	if !benchFlags.quiet {
		progress = cli.NewProgressReporter(cmd.ErrOrStderr())
	}

	out := cmd.OutOrStdout()
	if format == cli.FormatText {
		fmt.Fprintln(out, "Mercator Throttle Benchmark")
		fmt.Fprintln(out, "===========================")
		fmt.Fprintf(out, "Limiter: %d per %s\n", opts.Limit, opts.Interval)
		fmt.Fprintf(out, "Offered: %s with %d workers for %s\n\n", describeRate(opts.Rate), opts.Concurrency, opts.Duration)
	}

	report, err := benchmark(ctx, opts, progress)
	if err != nil {
		return err
	}

	if format == cli.FormatText {
		printBenchSummary(out, report)
	}
	return cli.NewFormatter(format).FormatTo(out, report)
}

// benchmark runs the offered load against a fresh limiter until
// opts.Duration elapses or ctx ends. progress may be nil.
func benchmark(ctx context.Context, opts benchOptions, progress cli.ProgressReporter) (*benchReport, error) {
	limiter, err := ratelimit.NewWithConfig(ratelimit.Config{
		Name:     "bench",
		Limit:    opts.Limit,
		Interval: opts.Interval,
	})
	if err != nil {
		return nil, cli.NewConfigError("limit", err.Error())
	}

	registry := observer.NewRegistryWithLogger(limiter, slog.Default())
	defer registry.Close()

	var mu sync.Mutex
	var samples []observer.ThroughputEvent
	listener := &observer.ListenerFuncs{
		Sample: func(e observer.ThroughputEvent) error {
			mu.Lock()
			samples = append(samples, e)
			mu.Unlock()
			return nil
		},
		Failed: func(err error) {
			slog.Default().Error("bench sampler failed", "error", err)
		},
	}
	if err := registry.AddListener(listener, opts.Sample); err != nil {
		return nil, fmt.Errorf("failed to start sampler: %w", err)
	}

	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	pacer := rate.NewLimiter(limit, opts.Concurrency)

	runCtx, cancel := context.WithTimeout(ctx, opts.Duration)
	defer cancel()

	var offered, cancelled atomic.Uint64
	start := time.Now()
	g, gctx := errgroup.WithContext(runCtx)
	for i := 0; i < opts.Concurrency; i++ {
		g.Go(func() error {
			for {
				if err := pacer.Wait(gctx); err != nil {
					// Deadline reached or the next token lies past it.
					return nil
				}
				offered.Add(1)
				if opts.Timeout == 0 {
					limiter.TryAcquireNow()
					continue
				}
				if _, err := limiter.TryAcquire(gctx, opts.Timeout); err != nil {
					if errors.Is(err, ratelimit.ErrCancelled) {
						cancelled.Add(1)
						return nil
					}
					return err
				}
			}
		})
	}

	stopProgress := func() {}
	if progress != nil {
		progress.Start(opts.Duration.Milliseconds())
		done := make(chan struct{})
		stopped := make(chan struct{})
		go func() {
			defer close(stopped)
			reportProgress(progress, limiter, start, opts.Duration, done)
		}()
		stopProgress = func() {
			close(done)
			<-stopped
		}
	}

	err = g.Wait()
	stopProgress()
	if err != nil {
		if progress != nil {
			progress.Error(err)
		}
		return nil, fmt.Errorf("benchmark failed: %w", err)
	}
	elapsed := time.Since(start)
	if progress != nil {
		progress.Finish()
	}

	registry.Close()
	snap := limiter.Snapshot()

	mu.Lock()
	defer mu.Unlock()
	report := &benchReport{
		Limit:       opts.Limit,
		Interval:    opts.Interval.String(),
		OfferedRate: opts.Rate,
		Elapsed:     elapsed.Truncate(time.Millisecond).String(),
		Offered:     offered.Load(),
		Granted:     snap.Granted,
		Denied:      snap.Denied,
		Cancelled:   cancelled.Load(),
		Overloaded:  snap.Overloaded,
		Samples:     samples,
	}
	if elapsed > 0 {
		report.Throughput = float64(snap.Granted) / elapsed.Seconds()
	}
	return report, nil
}

// reportProgress updates the progress bar until done is closed.
func reportProgress(progress cli.ProgressReporter, limiter *ratelimit.Limiter, start time.Time, total time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			elapsed := time.Since(start)
			if elapsed > total {
				elapsed = total
			}
			progress.Update(elapsed.Milliseconds())
			progress.SetStatus(fmt.Sprintf("granted %d denied %d", limiter.Granted(), limiter.Denied()))
		}
	}
}

func describeRate(r float64) string {
	if r <= 0 {
		return "unpaced"
	}
	return strconv.FormatFloat(r, 'f', -1, 64) + " req/s"
}

func printBenchSummary(w io.Writer, r *benchReport) {
	fmt.Fprintln(w, "Results:")
	fmt.Fprintf(w, "  Elapsed:    %s\n", r.Elapsed)
	fmt.Fprintf(w, "  Offered:    %d\n", r.Offered)
	fmt.Fprintf(w, "  Granted:    %d\n", r.Granted)
	fmt.Fprintf(w, "  Denied:     %d\n", r.Denied)
	if r.Cancelled > 0 {
		fmt.Fprintf(w, "  Cancelled:  %d\n", r.Cancelled)
	}
	fmt.Fprintf(w, "  Throughput: %.2f/s\n", r.Throughput)
	fmt.Fprintf(w, "  Overloaded: %t\n\n", r.Overloaded)
}
