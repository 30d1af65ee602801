package config

import "time"

// ConfigBuilder provides a fluent API for building Config instances in tests.
// It starts with default values and allows selective overrides.
type ConfigBuilder struct {
	cfg Config
}

// NewTestConfig creates a new ConfigBuilder with sensible defaults for testing.
// The resulting configuration is valid and has a single "api" limiter.
func NewTestConfig() *ConfigBuilder {
	cfg := Config{
		Limits: map[string]LimitConfig{
			"api": {Limit: 100, Interval: time.Second},
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: true},
		},
	}
	ApplyDefaults(&cfg)

	return &ConfigBuilder{cfg: cfg}
}

// Build returns the built Config instance.
func (b *ConfigBuilder) Build() *Config {
	return &b.cfg
}

// WithListenAddress sets the server listen address.
func (b *ConfigBuilder) WithListenAddress(addr string) *ConfigBuilder {
	b.cfg.Server.ListenAddress = addr
	return b
}

// WithLimit adds or replaces a limiter and applies sampling defaults to it.
func (b *ConfigBuilder) WithLimit(name string, limit int, interval time.Duration) *ConfigBuilder {
	if b.cfg.Limits == nil {
		b.cfg.Limits = make(map[string]LimitConfig)
	}
	b.cfg.Limits[name] = LimitConfig{
		Limit:    limit,
		Interval: interval,
		Sampling: SamplingConfig{Interval: DefaultSamplingInterval},
	}
	return b
}

// WithSampling sets the sampling configuration of an existing limiter.
func (b *ConfigBuilder) WithSampling(name string, sampling SamplingConfig) *ConfigBuilder {
	limit := b.cfg.Limits[name]
	limit.Sampling = sampling
	b.cfg.Limits[name] = limit
	return b
}

// WithStorage enables throughput history at path.
func (b *ConfigBuilder) WithStorage(path string) *ConfigBuilder {
	b.cfg.Storage.Enabled = true
	b.cfg.Storage.Path = path
	return b
}

// WithLoggingLevel sets the logging level.
func (b *ConfigBuilder) WithLoggingLevel(level string) *ConfigBuilder {
	b.cfg.Telemetry.Logging.Level = level
	return b
}

// WithMetricsEnabled sets whether metrics are enabled.
func (b *ConfigBuilder) WithMetricsEnabled(enabled bool) *ConfigBuilder {
	b.cfg.Telemetry.Metrics.Enabled = enabled
	return b
}

// WithTracingEnabled enables tracing with the given endpoint.
func (b *ConfigBuilder) WithTracingEnabled(enabled bool, endpoint string) *ConfigBuilder {
	b.cfg.Telemetry.Tracing.Enabled = enabled
	if endpoint != "" {
		b.cfg.Telemetry.Tracing.Endpoint = endpoint
	}
	return b
}

// MinimalConfig returns the smallest valid configuration: defaults and one
// limiter.
func MinimalConfig() *Config {
	return NewTestConfig().Build()
}
