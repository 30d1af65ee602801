package config

import (
	"testing"
	"time"
)

// ===== Builder Tests =====

func TestNewTestConfig(t *testing.T) {
	cfg := NewTestConfig().Build()

	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("Expected listen address %q, got %q", DefaultListenAddress, cfg.Server.ListenAddress)
	}

	api, ok := cfg.Limits["api"]
	if !ok {
		t.Fatal("Expected api limiter, got none")
	}
	if api.Limit != 100 || api.Interval != time.Second {
		t.Errorf("Expected 100 per 1s, got %d per %s", api.Limit, api.Interval)
	}
	if api.Sampling.Interval != DefaultSamplingInterval {
		t.Errorf("Expected sampling interval %s, got %s", DefaultSamplingInterval, api.Sampling.Interval)
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected test config to be valid, got %v", err)
	}
}

func TestConfigBuilder_Chaining(t *testing.T) {
	off := false
	cfg := NewTestConfig().
		WithListenAddress("0.0.0.0:9191").
		WithLimit("checkout", 5, time.Minute).
		WithSampling("checkout", SamplingConfig{Interval: time.Second, Log: true, Metrics: &off}).
		WithStorage("/tmp/throttle.db").
		WithLoggingLevel("debug").
		WithTracingEnabled(true, "otel:4317").
		Build()

	if cfg.Server.ListenAddress != "0.0.0.0:9191" {
		t.Errorf("Expected listen address 0.0.0.0:9191, got %q", cfg.Server.ListenAddress)
	}
	checkout := cfg.Limits["checkout"]
	if checkout.Limit != 5 || checkout.Interval != time.Minute {
		t.Errorf("Expected 5 per 1m, got %d per %s", checkout.Limit, checkout.Interval)
	}
	if !checkout.Sampling.Log {
		t.Error("Expected sampling log to be enabled")
	}
	if checkout.Sampling.MetricsEnabled() {
		t.Error("Expected sampling metrics to be disabled")
	}
	if !cfg.Storage.Enabled || cfg.Storage.Path != "/tmp/throttle.db" {
		t.Errorf("Expected storage enabled at /tmp/throttle.db, got %v %q", cfg.Storage.Enabled, cfg.Storage.Path)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("Expected level debug, got %q", cfg.Telemetry.Logging.Level)
	}
	if !cfg.Telemetry.Tracing.Enabled || cfg.Telemetry.Tracing.Endpoint != "otel:4317" {
		t.Errorf("Expected tracing to otel:4317, got %v %q", cfg.Telemetry.Tracing.Enabled, cfg.Telemetry.Tracing.Endpoint)
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

// ===== SamplingConfig Tests =====

func TestSamplingConfig_MetricsEnabled(t *testing.T) {
	on, off := true, false

	tests := []struct {
		name     string
		metrics  *bool
		expected bool
	}{
		{"unset defaults to enabled", nil, true},
		{"explicit true", &on, true},
		{"explicit false", &off, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := SamplingConfig{Metrics: tt.metrics}
			if got := s.MetricsEnabled(); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}
