// Package config provides configuration management for Mercator Throttle.
//
// This package handles loading, validating, and reloading configuration from
// YAML files with environment variable overrides. Unknown YAML fields are
// rejected so typos fail fast instead of silently falling back to defaults.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("throttle.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("throttle.yaml")
//
// A minimal file declares the named limiters:
//
//	limits:
//	  api:
//	    limit: 100
//	    interval: 5s
//	    sampling:
//	      interval: 2s
//	      log: true
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention THROTTLE_SECTION_FIELD.
// For example:
//
//   - THROTTLE_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - THROTTLE_STORAGE_RETENTION_DAYS overrides storage.retention_days
//   - THROTTLE_LIMITS_API_LIMIT overrides limits.api.limit
//   - THROTTLE_SERVER_TLS_ENABLED overrides server.tls.enabled
//
// API key values should come from the environment through key_env rather
// than the file:
//
//	server:
//	  auth:
//	    enabled: true
//	    keys:
//	      - name: checkout
//	        key_env: CHECKOUT_API_KEY
//	        limiters: [api]
//
// A variable that is set but cannot be parsed is a load error.
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Hot Reload
//
// Watcher observes the configuration file and reloads it after writes settle.
// A file that fails to load or validate is logged and ignored; the previous
// configuration stays in effect.
//
//	w, err := config.NewWatcher("throttle.yaml", 0, logger)
//	go w.Watch(ctx, manager.Apply)
//
// # Singleton Pattern
//
// For application-wide configuration access:
//
//	if err := config.Initialize("throttle.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//	cfg := config.GetConfig()
//
// For testing, prefer dependency injection with explicit Config instances
// rather than the global singleton.
package config
