package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"mercator-hq/throttle/pkg/cli"
)

func TestBenchmark_GrantsUpToLimit(t *testing.T) {
	opts := benchOptions{
		Limit:       10,
		Interval:    time.Hour,
		Concurrency: 4,
		Duration:    200 * time.Millisecond,
		Sample:      50 * time.Millisecond,
	}

	report, err := benchmark(context.Background(), opts, nil)
	if err != nil {
		t.Fatalf("benchmark failed: %v", err)
	}

	if report.Granted != 10 {
		t.Errorf("Expected 10 granted within one interval, got %d", report.Granted)
	}
	if report.Offered != report.Granted+report.Denied {
		t.Errorf("Expected offered %d = granted %d + denied %d", report.Offered, report.Granted, report.Denied)
	}
	if report.Denied == 0 {
		t.Error("Expected unpaced load to be denied once the window is full")
	}
	if !report.Overloaded {
		t.Error("Expected limiter to end overloaded")
	}
	if len(report.Samples) == 0 {
		t.Fatal("Expected at least one throughput sample")
	}
	if report.Samples[0].Interval != 0 {
		t.Errorf("Expected first sample to cover no interval, got %v", report.Samples[0].Interval)
	}
}

func TestBenchmark_PacedBelowLimit(t *testing.T) {
	opts := benchOptions{
		Limit:       1000,
		Interval:    time.Second,
		Rate:        100,
		Concurrency: 2,
		Duration:    300 * time.Millisecond,
		Sample:      100 * time.Millisecond,
	}

	report, err := benchmark(context.Background(), opts, nil)
	if err != nil {
		t.Fatalf("benchmark failed: %v", err)
	}

	if report.Denied != 0 {
		t.Errorf("Expected no denials below the limit, got %d", report.Denied)
	}
	// 300ms at 100/s plus the initial burst of 2.
	if report.Offered == 0 || report.Offered > 40 {
		t.Errorf("Expected pacing to bound offered load, got %d", report.Offered)
	}
}

func TestBenchmark_WaitingWorkers(t *testing.T) {
	opts := benchOptions{
		Limit:       5,
		Interval:    100 * time.Millisecond,
		Concurrency: 3,
		Duration:    250 * time.Millisecond,
		Sample:      50 * time.Millisecond,
		Timeout:     time.Second,
	}

	report, err := benchmark(context.Background(), opts, nil)
	if err != nil {
		t.Fatalf("benchmark failed: %v", err)
	}

	// Waiting callers are granted as windows roll over.
	if report.Granted <= uint64(opts.Limit) {
		t.Errorf("Expected grants beyond the first window, got %d", report.Granted)
	}
	if report.Cancelled == 0 {
		t.Error("Expected workers still waiting at the deadline to be cancelled")
	}
}

func TestBenchmark_InvalidLimiter(t *testing.T) {
	opts := benchOptions{Limit: 0, Interval: time.Second, Concurrency: 1, Duration: time.Millisecond, Sample: time.Millisecond}

	_, err := benchmark(context.Background(), opts, nil)
	if cli.ExitCode(err) != cli.ExitConfigError {
		t.Errorf("Expected config error, got %v", err)
	}
}

func TestBenchOptions_Validate(t *testing.T) {
	valid := benchOptions{Limit: 1, Interval: time.Second, Concurrency: 1, Duration: time.Second, Sample: time.Second}

	tests := []struct {
		name   string
		mutate func(*benchOptions)
		field  string
	}{
		{"valid", func(*benchOptions) {}, ""},
		{"no workers", func(o *benchOptions) { o.Concurrency = 0 }, "--concurrency"},
		{"zero duration", func(o *benchOptions) { o.Duration = 0 }, "--duration"},
		{"zero sample", func(o *benchOptions) { o.Sample = 0 }, "--sample"},
		{"negative rate", func(o *benchOptions) { o.Rate = -1 }, "--rate"},
		{"negative timeout", func(o *benchOptions) { o.Timeout = -time.Second }, "--timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := valid
			tt.mutate(&opts)
			err := opts.validate()
			if tt.field == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			cfgErr, ok := err.(*cli.ConfigError)
			if !ok {
				t.Fatalf("Expected *cli.ConfigError, got %T", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Expected field %q, got %q", tt.field, cfgErr.Field)
			}
		})
	}
}

func TestBenchCommand_JSON(t *testing.T) {
	out, err := executeCommand(t, "bench",
		"--limit", "3", "--interval", "1h", "--rate", "0",
		"--duration", "100ms", "--sample", "20ms", "--quiet", "--output", "json")
	if err != nil {
		t.Fatalf("bench failed: %v", err)
	}

	var report benchReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("Expected JSON report, got %q: %v", out, err)
	}
	if report.Limit != 3 || report.Interval != "1h0m0s" {
		t.Errorf("Unexpected limiter in report: %d per %s", report.Limit, report.Interval)
	}
	if report.Granted != 3 {
		t.Errorf("Expected 3 granted, got %d", report.Granted)
	}
}

func TestBenchReport_Table(t *testing.T) {
	report, err := benchmark(context.Background(), benchOptions{
		Limit: 2, Interval: time.Hour, Concurrency: 1, Duration: 60 * time.Millisecond, Sample: 20 * time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("benchmark failed: %v", err)
	}

	var buf bytes.Buffer
	if err := cli.NewFormatter(cli.FormatCSV).FormatTo(&buf, report); err != nil {
		t.Fatalf("FormatTo failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != len(report.Samples)+1 {
		t.Errorf("Expected header plus %d rows, got %d lines", len(report.Samples), len(lines))
	}
	if !strings.HasPrefix(lines[0], "TIME,INTERVAL,PASSED") {
		t.Errorf("Unexpected header %q", lines[0])
	}
}
