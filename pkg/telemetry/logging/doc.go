// Package logging provides structured logging on top of log/slog.
//
// # Overview
//
// The logging package wraps Go's standard log/slog package to provide:
//   - JSON and text output selected from configuration
//   - A minimum level that can be changed at runtime (configuration reload)
//   - Context-aware logging with request IDs, limiter names and trace IDs
//
// # Usage
//
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
//	if err != nil {
//	    return err
//	}
//	logger.SetDefault()
//
//	// Library packages log through slog.Default with a component field.
//	slog.Default().With("component", "limits.manager").Info("limiter created")
//
//	// Context-aware logging picks up the active span.
//	ctx = logging.WithLimiter(ctx, "api")
//	logger.InfoContext(ctx, "permit granted")
package logging
