package config

import (
	"fmt"
	"sync"
)

var (
	// globalConfig holds the process-wide configuration.
	globalConfig *Config

	// globalPath is the file globalConfig was loaded from.
	globalPath string

	// configMutex protects globalConfig and globalPath.
	configMutex sync.RWMutex

	// initOnce ensures configuration is initialized only once.
	initOnce sync.Once
)

// Initialize loads configuration from path with environment overrides and
// stores it as the process-wide configuration. Later calls are ignored.
func Initialize(path string) error {
	var initErr error

	initOnce.Do(func() {
		cfg, err := LoadConfigWithEnvOverrides(path)
		if err != nil {
			initErr = err
			return
		}

		configMutex.Lock()
		globalConfig = cfg
		globalPath = path
		configMutex.Unlock()
	})

	return initErr
}

// GetConfig returns the process-wide configuration, or nil before a
// successful Initialize or SetConfig.
//
// Prefer passing *Config explicitly; the global exists for the CLI and the
// reload path.
func GetConfig() *Config {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return globalConfig
}

// SetConfig replaces the process-wide configuration. Intended for tests.
func SetConfig(cfg *Config) {
	configMutex.Lock()
	defer configMutex.Unlock()
	globalConfig = cfg
}

// ReloadConfig reloads configuration from path and, if it loads and
// validates, replaces the process-wide configuration. On error the current
// configuration is kept.
func ReloadConfig(path string) (*Config, error) {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return nil, fmt.Errorf("failed to reload configuration: %w", err)
	}

	configMutex.Lock()
	globalConfig = cfg
	globalPath = path
	configMutex.Unlock()

	return cfg, nil
}

// ConfigPath returns the path the process-wide configuration was loaded
// from, or "" if it was set directly.
func ConfigPath() string {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return globalPath
}

// MustGetConfig returns the process-wide configuration and panics if it has
// not been initialized.
func MustGetConfig() *Config {
	cfg := GetConfig()
	if cfg == nil {
		panic("configuration not initialized: call Initialize first")
	}
	return cfg
}
