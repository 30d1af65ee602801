package config

import "time"

// Config is the root configuration structure for Mercator Throttle.
// It contains the HTTP server settings, the named rate limiters, throughput
// history storage, and telemetry settings.
type Config struct {
	// Server contains HTTP server configuration for the metrics, health and
	// limiter status endpoints.
	Server ServerConfig `yaml:"server"`

	// Limits maps limiter names to their configuration.
	// Keys are free-form names (e.g., "api", "checkout").
	Limits map[string]LimitConfig `yaml:"limits"`

	// Storage contains configuration for throughput history persistence and
	// retention.
	Storage StorageConfig `yaml:"storage"`

	// Telemetry contains configuration for observability including logging,
	// metrics, and distributed tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// ListenAddress is the address the HTTP server binds to.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout is how long graceful shutdown may take.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TLS serves HTTPS instead of plain HTTP.
	TLS TLSConfig `yaml:"tls"`

	// Auth requires an API key on the /limits endpoints.
	Auth AuthConfig `yaml:"auth"`
}

// TLSConfig contains HTTPS settings for the server.
type TLSConfig struct {
	// Enabled switches the server to HTTPS.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// CertFile is the PEM-encoded certificate chain.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the PEM-encoded private key.
	KeyFile string `yaml:"key_file"`

	// MinVersion is the lowest accepted TLS version.
	// Options: "1.2", "1.3"
	// Default: "1.3"
	MinVersion string `yaml:"min_version"`

	// CipherSuites restricts TLS 1.2 cipher suites. Empty uses Go's defaults.
	CipherSuites []string `yaml:"cipher_suites"`

	// ReloadInterval is how often certificate files are checked for changes.
	// Default: 5m
	ReloadInterval time.Duration `yaml:"reload_interval"`

	// ClientCAFile enables mutual TLS: client certificates must chain to a
	// CA in this PEM file.
	ClientCAFile string `yaml:"client_ca_file"`

	// ClientAuth selects how client certificates are handled when
	// ClientCAFile is set.
	// Options: "require", "verify_if_given"
	// Default: "require"
	ClientAuth string `yaml:"client_auth"`
}

// AuthConfig contains API key authentication settings.
type AuthConfig struct {
	// Enabled requires a valid API key on the /limits endpoints. Health and
	// metrics endpoints stay open.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Header is the request header carrying the key.
	// Default: "Authorization"
	Header string `yaml:"header"`

	// Scheme is stripped from the header value when present, e.g. "Bearer".
	// Default: "Bearer" when Header is "Authorization", otherwise none
	Scheme string `yaml:"scheme"`

	// Keys are the accepted API keys.
	Keys []APIKeyConfig `yaml:"keys"`
}

// APIKeyConfig declares one API key.
type APIKeyConfig struct {
	// Name identifies the key holder in logs.
	Name string `yaml:"name"`

	// Key is the secret value. Exactly one of Key and KeyEnv is required.
	Key string `yaml:"key"`

	// KeyEnv names an environment variable holding the secret.
	KeyEnv string `yaml:"key_env"`

	// Limiters restricts the key to these limiters. Empty allows all.
	Limiters []string `yaml:"limiters"`

	// Disabled rejects the key without removing it.
	Disabled bool `yaml:"disabled"`
}

// LimitConfig configures one named rate limiter.
type LimitConfig struct {
	// Limit is the number of permissions granted per interval.
	Limit int `yaml:"limit"`

	// Interval is how long each granted permission stays valid.
	// Must be within [1ns, ~52 days].
	Interval time.Duration `yaml:"interval"`

	// Sampling controls the throughput listeners attached to this limiter.
	Sampling SamplingConfig `yaml:"sampling"`
}

// SamplingConfig controls background throughput sampling for a limiter.
type SamplingConfig struct {
	// Interval is how often throughput is sampled.
	// Default: 10s
	Interval time.Duration `yaml:"interval"`

	// Log writes every sample to the structured log.
	// Default: false
	Log bool `yaml:"log"`

	// Metrics exports samples as Prometheus metrics. Only takes effect when
	// telemetry.metrics.enabled is true.
	// Default: true (set explicitly to false to disable)
	Metrics *bool `yaml:"metrics"`

	// Record persists samples to the throughput history store. Only takes
	// effect when storage.enabled is true.
	// Default: false
	Record bool `yaml:"record"`
}

// MetricsEnabled reports whether samples are exported as metrics.
func (s SamplingConfig) MetricsEnabled() bool {
	return s.Metrics == nil || *s.Metrics
}

// StorageConfig contains throughput history configuration.
type StorageConfig struct {
	// Enabled turns on persistence of sampled throughput events.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Driver selects the SQLite driver.
	// Options: "sqlite" (pure Go, modernc.org/sqlite), "sqlite3" (cgo, mattn/go-sqlite3)
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// Path is the SQLite database file path.
	// Default: "data/throttle.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// RetentionDays is how long records are kept. 0 keeps records forever.
	// Default: 30
	RetentionDays int `yaml:"retention_days"`

	// MaxRecords caps the number of stored records. 0 means unlimited.
	// Default: 0
	MaxRecords int64 `yaml:"max_records"`

	// PruneSchedule is a cron expression for retention pruning.
	// Default: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string `yaml:"prune_schedule"`

	// ArchivePath receives pruned records as JSON Lines before deletion.
	// Empty disables archiving.
	ArchivePath string `yaml:"archive_path"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "mercator"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "throttle"
	Subsystem string `yaml:"subsystem"`

	// WaitDurationBuckets defines histogram buckets for blocking acquire
	// wait time (seconds).
	// Default: [0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10]
	WaitDurationBuckets []float64 `yaml:"wait_duration_buckets"`

	// MaxLimiters caps the number of distinct limiter label values.
	// Limiters beyond the cap are aggregated under "other".
	// Default: 1000
	MaxLimiters int `yaml:"max_limiters"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector endpoint (host:port).
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName identifies this service in traces.
	// Default: "mercator-throttle"
	ServiceName string `yaml:"service_name"`

	// SampleRatio is the fraction of traces to sample (0.0 - 1.0).
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Insecure disables TLS to the collector.
	// Default: false
	Insecure bool `yaml:"insecure"`
}

// HealthConfig contains health check configuration.
type HealthConfig struct {
	// LivenessPath is the HTTP path for the liveness probe.
	// Default: "/health/live"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the HTTP path for the readiness probe.
	// Default: "/health/ready"
	ReadinessPath string `yaml:"readiness_path"`

	// CheckTimeout bounds each readiness check.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}
