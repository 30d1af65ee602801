package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/throttle/pkg/cli"
	"mercator-hq/throttle/pkg/config"
	"mercator-hq/throttle/pkg/limits/storage"
)

var eventsFlags struct {
	dbPath     string
	driver     string
	limiter    string
	since      string
	until      string
	overloaded bool
	limit      int
	output     string
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Query stored throughput events",
	Long: `Query the throughput history written by limiters with sampling.record
enabled.

--since and --until accept an RFC3339 timestamp or a duration, which is read
as that long ago.

Examples:
  # Last 100 events of every limiter
  throttle events

  # Events of the "api" limiter over the past hour
  throttle events --limiter api --since 1h

  # Overloaded intervals in a time range as CSV
  throttle events --overloaded --since 2026-10-01T00:00:00Z --until 2026-10-02T00:00:00Z -o csv

  # Read a database directly, without a config file
  throttle events --db data/throttle.db`,
	RunE: queryEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().StringVar(&eventsFlags.dbPath, "db", "", "database path (uses config if not specified)")
	eventsCmd.Flags().StringVar(&eventsFlags.driver, "driver", "", "sqlite driver: sqlite, sqlite3 (uses config if not specified)")
	eventsCmd.Flags().StringVar(&eventsFlags.limiter, "limiter", "", "filter by limiter name")
	eventsCmd.Flags().StringVar(&eventsFlags.since, "since", "", "only events recorded at or after this time")
	eventsCmd.Flags().StringVar(&eventsFlags.until, "until", "", "only events recorded before this time")
	eventsCmd.Flags().BoolVar(&eventsFlags.overloaded, "overloaded", false, "only intervals with overload time")
	eventsCmd.Flags().IntVar(&eventsFlags.limit, "limit", 100, "max results (0 for all)")
	eventsCmd.Flags().StringVarP(&eventsFlags.output, "output", "o", "text", "output format: text, json, csv")
}

func queryEvents(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(eventsFlags.output)
	if err != nil {
		return cli.NewConfigError("--output", err.Error())
	}

	now := time.Now()
	query := &storage.Query{
		Limiter:        eventsFlags.limiter,
		OverloadedOnly: eventsFlags.overloaded,
		Limit:          eventsFlags.limit,
	}
	if query.Since, err = parseTimeFlag(eventsFlags.since, now); err != nil {
		return cli.NewConfigError("--since", err.Error())
	}
	if query.Until, err = parseTimeFlag(eventsFlags.until, now); err != nil {
		return cli.NewConfigError("--until", err.Error())
	}
	if !query.Since.IsZero() && !query.Until.IsZero() && !query.Since.Before(query.Until) {
		return cli.NewConfigError("--until", "must be after --since")
	}

	storeCfg, err := eventsStore()
	if err != nil {
		return err
	}
	backend, err := storage.NewSQLiteBackendWithConfig(storeCfg)
	if err != nil {
		return fmt.Errorf("failed to open throughput store: %w", err)
	}
	defer backend.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	records, err := backend.List(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query events: %w", err)
	}

	if verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "Found %d events in %s\n", len(records), storeCfg.Path)
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), eventRows(records))
}

// eventsStore resolves the database to read from flags or the config file.
func eventsStore() (storage.SQLiteBackendConfig, error) {
	if eventsFlags.dbPath != "" {
		return storage.SQLiteBackendConfig{Path: eventsFlags.dbPath, Driver: eventsFlags.driver}, nil
	}

	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return storage.SQLiteBackendConfig{}, err
	}
	if !cfg.Storage.Enabled {
		return storage.SQLiteBackendConfig{}, cli.NewConfigError("storage.enabled", "throughput storage is disabled; use --db to read a database directly")
	}
	driver := cfg.Storage.Driver
	if eventsFlags.driver != "" {
		driver = eventsFlags.driver
	}
	return storage.SQLiteBackendConfig{
		Path:        cfg.Storage.Path,
		Driver:      driver,
		BusyTimeout: cfg.Storage.BusyTimeout,
	}, nil
}

// parseTimeFlag parses an RFC3339 timestamp or a duration before now. An
// empty value is the zero time.
func parseTimeFlag(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (expected RFC3339 or a duration)", value)
	}
	if d < 0 {
		return time.Time{}, fmt.Errorf("invalid time %q: duration must not be negative", value)
	}
	return now.Add(-d), nil
}

// eventRows renders stored records. JSON output encodes the records as
// stored.
type eventRows []*storage.Record

// Header implements cli.Table.
func (r eventRows) Header() []string {
	return []string{"RECORDED", "LIMITER", "INTERVAL", "PASSED", "DENIED", "THROUGHPUT", "OVERLOAD", "OVERLOADED"}
}

// Rows implements cli.Table.
func (r eventRows) Rows() [][]string {
	out := make([][]string, len(r))
	for i, rec := range r {
		e := rec.Event
		out[i] = []string{
			rec.RecordedAt.Format(time.RFC3339),
			rec.Limiter,
			e.Interval.String(),
			strconv.FormatUint(e.Passed, 10),
			strconv.FormatUint(e.Denied, 10),
			strconv.FormatFloat(e.IntervalThroughput, 'f', 2, 64),
			fmt.Sprintf("%.1f%%", e.OverloadRatio()*100),
			strconv.FormatBool(e.Overloaded),
		}
	}
	return out
}
