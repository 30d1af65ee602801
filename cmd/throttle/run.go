package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/throttle/pkg/cli"
	"mercator-hq/throttle/pkg/config"
	"mercator-hq/throttle/pkg/limits"
	"mercator-hq/throttle/pkg/limits/ratelimit"
	"mercator-hq/throttle/pkg/limits/retention"
	"mercator-hq/throttle/pkg/limits/storage"
	"mercator-hq/throttle/pkg/security/auth"
	"mercator-hq/throttle/pkg/server"
	"mercator-hq/throttle/pkg/telemetry/health"
	"mercator-hq/throttle/pkg/telemetry/logging"
	"mercator-hq/throttle/pkg/telemetry/metrics"
	"mercator-hq/throttle/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	probeLimiter  string
	watch         bool
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the rate limiting server",
	Long: `Start the rate limiting server with the specified configuration.

The server builds one limiter per entry under "limits", samples their
throughput, and exposes limiter status, acquire requests, metrics and health
probes over HTTP.

The configuration is reloaded when the file changes (unless --watch=false)
and on SIGHUP. Limiters whose limit or interval changed are replaced; the
others keep their state.

Examples:
  # Start with default config
  throttle run

  # Start with custom config
  throttle run --config /etc/throttle/throttle.yaml

  # Override listen address
  throttle run --listen 0.0.0.0:9090

  # Guard health probes with the "probes" limiter
  throttle run --probe-limiter probes

  # Validate config without starting server
  throttle run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&runFlags.probeLimiter, "probe-limiter", "", "configured limiter that guards the health probes")
	runCmd.Flags().BoolVar(&runFlags.watch, "watch", true, "reload configuration when the file changes")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	printBanner(out)

	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if runFlags.probeLimiter != "" {
		if _, ok := cfg.Limits[runFlags.probeLimiter]; !ok {
			return cli.NewConfigError("--probe-limiter", fmt.Sprintf("limiter %q is not configured", runFlags.probeLimiter))
		}
	}
	fmt.Fprintf(out, "✓ Configuration valid (%d limiters)\n", len(cfg.Limits))

	if runFlags.dryRun {
		return cli.NewFormatter(cli.FormatText).FormatTo(out, limiterTable(cfg.Limits))
	}

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	svc, err := startServices(ctx, cfg, out)
	if err != nil {
		return err
	}
	defer svc.close()

	srv, err := server.NewServer(cfg, server.Deps{
		Manager:      svc.manager,
		Metrics:      svc.collector,
		Health:       svc.checker,
		Tracer:       svc.tracer,
		Logger:       svc.logger,
		ProbeLimiter: svc.probeLimiter(runFlags.probeLimiter),
		Auth:         svc.keys,
		Version:      Version,
		Commit:       GitCommit,
		BuildTime:    BuildDate,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	scheme := "http"
	if cfg.Server.TLS.Enabled {
		scheme = "https"
	}
	base := scheme + "://" + cfg.Server.ListenAddress
	fmt.Fprintf(out, "✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Fprintf(out, "✓ Limiters: %s/limits\n", base)
	if cfg.Server.Auth.Enabled {
		fmt.Fprintf(out, "✓ API key auth enabled (%d keys)\n", len(svc.keys.List()))
	}
	fmt.Fprintf(out, "✓ Health endpoint: %s%s\n", base, cfg.Telemetry.Health.ReadinessPath)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Fprintf(out, "✓ Metrics endpoint: %s%s\n", base, cfg.Telemetry.Metrics.Path)
	}

	go svc.reloadOnSignal(ctx)

	if err := <-errCh; err != nil {
		return err
	}
	fmt.Fprintln(out, "\nShutting down gracefully...")
	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "Mercator Throttle v%s\n", Version)
	fmt.Fprintf(w, "Loading configuration from: %s\n", cfgFile)
}

// services holds everything runServer starts besides the HTTP server.
type services struct {
	logger    *logging.Logger
	tracer    *tracing.Tracer
	collector *metrics.Collector
	checker   *health.Checker
	backend   storage.Backend
	scheduler *retention.Scheduler
	manager   *limits.Manager
	keys      *auth.APIKeyValidator
	watcher   *config.Watcher
}

// startServices builds the telemetry stack, the history store and the
// limits manager. On error everything started so far is released.
func startServices(ctx context.Context, cfg *config.Config, out io.Writer) (svc *services, err error) {
	svc = &services{}
	defer func() {
		if err != nil {
			svc.close()
		}
	}()

	svc.logger, err = logging.New(logging.FromConfig(cfg.Telemetry.Logging))
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	svc.logger.SetDefault()

	svc.tracer, err = tracing.New(ctx, &cfg.Telemetry.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	if svc.tracer.Enabled() {
		fmt.Fprintf(out, "✓ Tracing enabled (%s)\n", cfg.Telemetry.Tracing.Endpoint)
	}

	svc.collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	svc.checker = health.New(cfg.Telemetry.Health.CheckTimeout)

	if cfg.Storage.Enabled {
		backend, err := storage.NewSQLiteBackendWithConfig(storage.SQLiteBackendConfig{
			Path:        cfg.Storage.Path,
			Driver:      cfg.Storage.Driver,
			BusyTimeout: cfg.Storage.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open throughput store: %w", err)
		}
		svc.backend = backend
		svc.checker.RegisterComponent("storage", func(ctx context.Context) error {
			_, err := backend.Count(ctx)
			return err
		})
		fmt.Fprintf(out, "✓ Throughput store opened (%s, %s)\n", cfg.Storage.Path, backend.Driver())

		pruner := retention.NewPruner(backend, &retention.Config{
			RetentionDays: cfg.Storage.RetentionDays,
			PruneSchedule: cfg.Storage.PruneSchedule,
			MaxRecords:    cfg.Storage.MaxRecords,
			ArchivePath:   cfg.Storage.ArchivePath,
		})
		svc.scheduler = retention.NewScheduler(pruner)
		if err := svc.scheduler.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start retention scheduler: %w", err)
		}
		if next := svc.scheduler.NextRun(); next != nil {
			fmt.Fprintf(out, "✓ Retention pruning scheduled (next run %s)\n", next.Format(time.RFC3339))
		}
	}

	svc.manager, err = limits.NewManager(cfg.Limits, limits.Options{
		Backend: svc.backend,
		Metrics: svc.collector,
		Tracer:  svc.tracer,
		Health:  svc.checker,
		Logger:  svc.logger.Slog(),
	})
	if err != nil {
		return nil, cli.NewConfigError("limits", err.Error())
	}
	fmt.Fprintf(out, "✓ Limiters started (%d)\n", len(svc.manager.Names()))

	if cfg.Server.Auth.Enabled {
		keys, err := auth.FromConfig(cfg.Server.Auth)
		if err != nil {
			return nil, cli.NewConfigError("server.auth.keys", err.Error())
		}
		svc.keys = auth.NewAPIKeyValidator(keys)
	}

	if runFlags.watch {
		svc.watcher, err = config.NewWatcher(cfgFile, 0, svc.logger.Slog())
		if err != nil {
			return nil, fmt.Errorf("failed to watch configuration: %w", err)
		}
		go func() {
			if err := svc.watcher.Watch(ctx, svc.apply); err != nil {
				svc.logger.Error("config watcher failed", "error", err)
			}
		}()
	}

	return svc, nil
}

// apply installs a reloaded configuration. Server settings are fixed at
// startup; limits, API keys and the log level follow the file.
func (s *services) apply(cfg *config.Config) error {
	if err := s.logger.SetLevel(cfg.Telemetry.Logging.Level); err != nil {
		return err
	}
	if verbose {
		_ = s.logger.SetLevel("debug")
	}
	if s.keys != nil {
		keys, err := auth.FromConfig(cfg.Server.Auth)
		if err != nil {
			return fmt.Errorf("failed to reload API keys: %w", err)
		}
		s.keys.Replace(keys)
	}
	return s.manager.Apply(cfg)
}

// reloadOnSignal reloads the configuration file on every SIGHUP.
func (s *services) reloadOnSignal(ctx context.Context) {
	for range cli.ReloadSignals(ctx) {
		s.logger.Info("received SIGHUP, reloading configuration", "path", cfgFile)
		cfg, err := config.ReloadConfig(cfgFile)
		if err != nil {
			s.logger.Error("config reload failed, keeping previous configuration", "error", err)
			continue
		}
		if err := s.apply(cfg); err != nil {
			s.logger.Error("applying reloaded configuration failed", "error", err)
		}
	}
}

// probeLimiter returns the limiter guarding health probes, or nil. The
// limiter instance is resolved once; a reload that replaces it leaves the
// probes on the old instance until restart.
func (s *services) probeLimiter(name string) *ratelimit.Limiter {
	if name == "" {
		return nil
	}
	l, err := s.manager.Limiter(name)
	if err != nil {
		s.logger.Warn("probe limiter unavailable", "limiter", name, "error", err)
		return nil
	}
	return l
}

// close stops everything in reverse start order.
func (s *services) close() {
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.logger.Warn("failed to stop config watcher", "error", err)
		}
	}
	if s.manager != nil {
		if err := s.manager.Close(); err != nil {
			s.logger.Warn("failed to close limits manager", "error", err)
		}
	}
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.backend != nil {
		if err := s.backend.Close(); err != nil {
			s.logger.Warn("failed to close throughput store", "error", err)
		}
	}
	if s.tracer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.tracer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("failed to shut down tracer", "error", err)
		}
	}
}
