package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "THROTTLE_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML configuration and applies defaults. It does not
// validate.
func Parse(data []byte) (*Config, error) {
	// Defaults that are true must be set before decoding so an explicit
	// false in the file survives.
	cfg := Config{
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: true},
		},
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention THROTTLE_SECTION_FIELD (e.g., THROTTLE_SERVER_LISTEN_ADDRESS).
// Per-limiter overrides use THROTTLE_LIMITS_<NAME>_<FIELD> with the limiter
// name upper-cased. Environment variables always take precedence over
// file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// envSetter applies one override value.
type envSetter func(cfg *Config, val string) error

// envOverrides maps environment variable suffixes to setters.
var envOverrides = map[string]envSetter{
	"SERVER_LISTEN_ADDRESS":   func(c *Config, v string) error { c.Server.ListenAddress = v; return nil },
	"SERVER_READ_TIMEOUT":     durationSetter(func(c *Config) *time.Duration { return &c.Server.ReadTimeout }),
	"SERVER_WRITE_TIMEOUT":    durationSetter(func(c *Config) *time.Duration { return &c.Server.WriteTimeout }),
	"SERVER_SHUTDOWN_TIMEOUT": durationSetter(func(c *Config) *time.Duration { return &c.Server.ShutdownTimeout }),
	"SERVER_TLS_ENABLED":      boolSetter(func(c *Config) *bool { return &c.Server.TLS.Enabled }),
	"SERVER_TLS_CERT_FILE":    func(c *Config, v string) error { c.Server.TLS.CertFile = v; return nil },
	"SERVER_TLS_KEY_FILE":     func(c *Config, v string) error { c.Server.TLS.KeyFile = v; return nil },
	"SERVER_AUTH_ENABLED":     boolSetter(func(c *Config) *bool { return &c.Server.Auth.Enabled }),

	"STORAGE_ENABLED":        boolSetter(func(c *Config) *bool { return &c.Storage.Enabled }),
	"STORAGE_DRIVER":         func(c *Config, v string) error { c.Storage.Driver = v; return nil },
	"STORAGE_PATH":           func(c *Config, v string) error { c.Storage.Path = v; return nil },
	"STORAGE_BUSY_TIMEOUT":   durationSetter(func(c *Config) *time.Duration { return &c.Storage.BusyTimeout }),
	"STORAGE_RETENTION_DAYS": intSetter(func(c *Config) *int { return &c.Storage.RetentionDays }),
	"STORAGE_PRUNE_SCHEDULE": func(c *Config, v string) error { c.Storage.PruneSchedule = v; return nil },
	"STORAGE_ARCHIVE_PATH":   func(c *Config, v string) error { c.Storage.ArchivePath = v; return nil },

	"TELEMETRY_LOGGING_LEVEL":        func(c *Config, v string) error { c.Telemetry.Logging.Level = v; return nil },
	"TELEMETRY_LOGGING_FORMAT":       func(c *Config, v string) error { c.Telemetry.Logging.Format = v; return nil },
	"TELEMETRY_METRICS_ENABLED":      boolSetter(func(c *Config) *bool { return &c.Telemetry.Metrics.Enabled }),
	"TELEMETRY_METRICS_PATH":         func(c *Config, v string) error { c.Telemetry.Metrics.Path = v; return nil },
	"TELEMETRY_TRACING_ENABLED":      boolSetter(func(c *Config) *bool { return &c.Telemetry.Tracing.Enabled }),
	"TELEMETRY_TRACING_ENDPOINT":     func(c *Config, v string) error { c.Telemetry.Tracing.Endpoint = v; return nil },
	"TELEMETRY_TRACING_SAMPLE_RATIO": floatSetter(func(c *Config) *float64 { return &c.Telemetry.Tracing.SampleRatio }),
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// A variable that is set but cannot be parsed is an error.
func applyEnvOverrides(cfg *Config) error {
	for suffix, set := range envOverrides {
		val, ok := os.LookupEnv(EnvPrefix + suffix)
		if !ok || val == "" {
			continue
		}
		if err := set(cfg, val); err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, suffix, err)
		}
	}

	for name, limit := range cfg.Limits {
		prefix := EnvPrefix + "LIMITS_" + strings.ToUpper(name) + "_"

		if val := os.Getenv(prefix + "LIMIT"); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid %sLIMIT: %w", prefix, err)
			}
			limit.Limit = i
		}
		if val := os.Getenv(prefix + "INTERVAL"); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("invalid %sINTERVAL: %w", prefix, err)
			}
			limit.Interval = d
		}
		if val := os.Getenv(prefix + "SAMPLING_INTERVAL"); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("invalid %sSAMPLING_INTERVAL: %w", prefix, err)
			}
			limit.Sampling.Interval = d
		}

		cfg.Limits[name] = limit
	}

	return nil
}

func durationSetter(field func(*Config) *time.Duration) envSetter {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

func boolSetter(field func(*Config) *bool) envSetter {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func intSetter(field func(*Config) *int) envSetter {
	return func(c *Config, v string) error {
		i, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = i
		return nil
	}
}

func floatSetter(field func(*Config) *float64) envSetter {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}
}
