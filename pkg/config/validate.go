package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"

	"mercator-hq/throttle/pkg/limits/ratelimit"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "limits.api.interval").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateLimits(cfg.Limits)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateServer validates HTTP server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.shutdown_timeout",
			Message: "shutdown timeout must be positive",
		})
	}

	errs = append(errs, validateTLS(&cfg.TLS)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)
	return errs
}

// validateTLS checks HTTPS settings. Files are only checked for presence in
// the configuration; loading them happens when the server starts.
func validateTLS(cfg *TLSConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}
	var errs []FieldError

	if cfg.CertFile == "" {
		errs = append(errs, FieldError{Field: "server.tls.cert_file", Message: "cert file is required when TLS is enabled"})
	}
	if cfg.KeyFile == "" {
		errs = append(errs, FieldError{Field: "server.tls.key_file", Message: "key file is required when TLS is enabled"})
	}
	switch cfg.MinVersion {
	case "1.2", "1.3":
	default:
		errs = append(errs, FieldError{
			Field:   "server.tls.min_version",
			Message: fmt.Sprintf("min version must be 1.2 or 1.3 (got %q)", cfg.MinVersion),
		})
	}
	if cfg.ReloadInterval < 0 {
		errs = append(errs, FieldError{Field: "server.tls.reload_interval", Message: "reload interval must be positive"})
	}
	switch cfg.ClientAuth {
	case "require", "verify_if_given":
	default:
		errs = append(errs, FieldError{
			Field:   "server.tls.client_auth",
			Message: fmt.Sprintf("client auth must be require or verify_if_given (got %q)", cfg.ClientAuth),
		})
	}

	return errs
}

// validateAuth checks API key settings.
func validateAuth(cfg *AuthConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}
	var errs []FieldError

	if cfg.Header == "" {
		errs = append(errs, FieldError{Field: "server.auth.header", Message: "header is required"})
	}
	if len(cfg.Keys) == 0 {
		errs = append(errs, FieldError{Field: "server.auth.keys", Message: "at least one key is required when auth is enabled"})
	}

	seen := make(map[string]bool, len(cfg.Keys))
	for i, key := range cfg.Keys {
		field := fmt.Sprintf("server.auth.keys[%d]", i)
		if key.Name == "" {
			errs = append(errs, FieldError{Field: field + ".name", Message: "name is required"})
		} else if seen[key.Name] {
			errs = append(errs, FieldError{Field: field + ".name", Message: fmt.Sprintf("duplicate key name %q", key.Name)})
		}
		seen[key.Name] = true

		if (key.Key == "") == (key.KeyEnv == "") {
			errs = append(errs, FieldError{Field: field, Message: "exactly one of key and key_env is required"})
		}
	}

	return errs
}

// validateLimits validates every named limiter. Names are visited in sorted
// order so error output is stable.
func validateLimits(limits map[string]LimitConfig) []FieldError {
	var errs []FieldError

	names := make([]string, 0, len(limits))
	for name := range limits {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		limit := limits[name]
		prefix := fmt.Sprintf("limits.%s", name)

		if strings.TrimSpace(name) == "" {
			errs = append(errs, FieldError{
				Field:   "limits",
				Message: "limiter name cannot be empty",
			})
		}
		if limit.Limit <= 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".limit",
				Message: fmt.Sprintf("limit must be positive, got %d", limit.Limit),
			})
		}
		if limit.Interval < 1 || limit.Interval > ratelimit.MaxInterval {
			errs = append(errs, FieldError{
				Field:   prefix + ".interval",
				Message: fmt.Sprintf("interval must be within [1ns, %s], got %s", ratelimit.MaxInterval, limit.Interval),
			})
		}
		if limit.Sampling.Interval <= 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".sampling.interval",
				Message: "sampling interval must be positive",
			})
		}
	}

	return errs
}

// validateStorage validates throughput history configuration. Details are
// only checked when storage is enabled.
func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	if cfg.RetentionDays < 0 {
		errs = append(errs, FieldError{
			Field:   "storage.retention_days",
			Message: "retention days must be non-negative",
		})
	}
	if cfg.MaxRecords < 0 {
		errs = append(errs, FieldError{
			Field:   "storage.max_records",
			Message: "max records must be non-negative",
		})
	}

	if !cfg.Enabled {
		return errs
	}

	switch cfg.Driver {
	case "sqlite", "sqlite3":
	default:
		errs = append(errs, FieldError{
			Field:   "storage.driver",
			Message: fmt.Sprintf("driver must be one of: sqlite, sqlite3 (got %q)", cfg.Driver),
		})
	}
	if cfg.Path == "" {
		errs = append(errs, FieldError{
			Field:   "storage.path",
			Message: "path is required when storage is enabled",
		})
	}
	if cfg.BusyTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "storage.busy_timeout",
			Message: "busy timeout must be positive",
		})
	}
	if cfg.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "storage.prune_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	return errs
}

// validateTelemetry validates logging, metrics, tracing and health settings.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("level must be one of: debug, info, warn, error (got %q)", cfg.Logging.Level),
		})
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("format must be one of: json, text (got %q)", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled {
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.path",
				Message: "path must start with /",
			})
		}
		if cfg.Metrics.Namespace == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.namespace",
				Message: "namespace is required",
			})
		}
		for i := 1; i < len(cfg.Metrics.WaitDurationBuckets); i++ {
			if cfg.Metrics.WaitDurationBuckets[i] <= cfg.Metrics.WaitDurationBuckets[i-1] {
				errs = append(errs, FieldError{
					Field:   "telemetry.metrics.wait_duration_buckets",
					Message: "buckets must be strictly increasing",
				})
				break
			}
		}
		if cfg.Metrics.MaxLimiters < 0 {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.max_limiters",
				Message: "max limiters must be non-negative",
			})
		}
	}

	if cfg.Tracing.Enabled {
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.endpoint",
				Message: "endpoint is required when tracing is enabled",
			})
		}
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sample_ratio",
				Message: "sample ratio must be between 0.0 and 1.0",
			})
		}
	}

	if !strings.HasPrefix(cfg.Health.LivenessPath, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.health.liveness_path",
			Message: "path must start with /",
		})
	}
	if !strings.HasPrefix(cfg.Health.ReadinessPath, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.health.readiness_path",
			Message: "path must start with /",
		})
	}

	return errs
}
