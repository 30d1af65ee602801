package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:9090"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultTLSMinVersion   = "1.3"
	DefaultTLSReload       = 5 * time.Minute
	DefaultTLSClientAuth   = "require"
	DefaultAuthHeader      = "Authorization"
	DefaultAuthScheme      = "Bearer"

	// Limit defaults
	DefaultSamplingInterval = 10 * time.Second

	// Storage defaults
	DefaultStorageEnabled       = false
	DefaultStorageDriver        = "sqlite"
	DefaultStoragePath          = "data/throttle.db"
	DefaultStorageBusyTimeout   = 5 * time.Second
	DefaultStorageRetentionDays = 30
	DefaultStoragePruneSchedule = "0 3 * * *"

	// Telemetry defaults
	DefaultLoggingLevel        = "info"
	DefaultLoggingFormat       = "json"
	DefaultMetricsPath         = "/metrics"
	DefaultMetricsNamespace    = "mercator"
	DefaultMetricsSubsystem    = "throttle"
	DefaultMetricsMaxLimiters  = 1000
	DefaultTracingEndpoint     = "localhost:4317"
	DefaultTracingServiceName  = "mercator-throttle"
	DefaultTracingSamplingRate = 1.0
	DefaultLivenessPath        = "/health/live"
	DefaultReadinessPath       = "/health/ready"
	DefaultHealthCheckTimeout  = 5 * time.Second
)

// DefaultWaitDurationBuckets are the default histogram buckets for blocking
// acquire wait time, in seconds.
var DefaultWaitDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10}

// NewDefaultConfig returns a configuration with every default applied and
// no limiters. Metrics are enabled.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: true},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
//
// Booleans whose default is true (telemetry.metrics.enabled) cannot be told
// apart from an explicit false and are left to the loader.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.TLS.MinVersion == "" {
		cfg.Server.TLS.MinVersion = DefaultTLSMinVersion
	}
	if cfg.Server.TLS.ReloadInterval == 0 {
		cfg.Server.TLS.ReloadInterval = DefaultTLSReload
	}
	if cfg.Server.TLS.ClientAuth == "" {
		cfg.Server.TLS.ClientAuth = DefaultTLSClientAuth
	}
	if cfg.Server.Auth.Header == "" {
		cfg.Server.Auth.Header = DefaultAuthHeader
		if cfg.Server.Auth.Scheme == "" {
			cfg.Server.Auth.Scheme = DefaultAuthScheme
		}
	}

	// Limit defaults - applied to each limiter
	for name, limit := range cfg.Limits {
		if limit.Sampling.Interval == 0 {
			limit.Sampling.Interval = DefaultSamplingInterval
		}
		cfg.Limits[name] = limit
	}

	// Storage defaults
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DefaultStorageDriver
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Storage.BusyTimeout == 0 {
		cfg.Storage.BusyTimeout = DefaultStorageBusyTimeout
	}
	if cfg.Storage.RetentionDays == 0 {
		cfg.Storage.RetentionDays = DefaultStorageRetentionDays
	}
	if cfg.Storage.PruneSchedule == "" {
		cfg.Storage.PruneSchedule = DefaultStoragePruneSchedule
	}

	// Logging defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}

	// Metrics defaults
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(cfg.Telemetry.Metrics.WaitDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.WaitDurationBuckets = append([]float64(nil), DefaultWaitDurationBuckets...)
	}
	if cfg.Telemetry.Metrics.MaxLimiters == 0 {
		cfg.Telemetry.Metrics.MaxLimiters = DefaultMetricsMaxLimiters
	}

	// Tracing defaults
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSamplingRate
	}

	// Health defaults
	if cfg.Telemetry.Health.LivenessPath == "" {
		cfg.Telemetry.Health.LivenessPath = DefaultLivenessPath
	}
	if cfg.Telemetry.Health.ReadinessPath == "" {
		cfg.Telemetry.Health.ReadinessPath = DefaultReadinessPath
	}
	if cfg.Telemetry.Health.CheckTimeout == 0 {
		cfg.Telemetry.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}
