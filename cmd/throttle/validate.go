package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/throttle/pkg/cli"
	"mercator-hq/throttle/pkg/config"
	"mercator-hq/throttle/pkg/limits/ratelimit"
	"mercator-hq/throttle/pkg/limits/storage"
	"mercator-hq/throttle/pkg/security/auth"
	securityTLS "mercator-hq/throttle/pkg/security/tls"
)

var validateFlags struct {
	output       string
	checkStorage bool
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load and validate the configuration file, including environment
overrides, and print the limiters it declares.

Every limiter is built once to make sure its limit and interval are usable.
When TLS is enabled the certificate pair is loaded and checked for expiry;
when API key auth is enabled every key_env variable must be set. With
--check-storage the throughput store is opened as well.

Exit codes:
  0  configuration is valid
  2  configuration is invalid

Examples:
  # Validate the default config file
  throttle validate

  # Validate a specific file and print limiters as JSON
  throttle validate --config /etc/throttle/throttle.yaml --output json

  # Also check that the throughput store can be opened
  throttle validate --check-storage`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFlags.output, "output", "o", "text", "output format: text, json, csv")
	validateCmd.Flags().BoolVar(&validateFlags.checkStorage, "check-storage", false, "open the throughput store")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(validateFlags.output)
	if err != nil {
		return cli.NewConfigError("--output", err.Error())
	}

	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return err
	}

	for name, lc := range cfg.Limits {
		if _, err := ratelimit.NewWithConfig(ratelimit.Config{Name: name, Limit: lc.Limit, Interval: lc.Interval}); err != nil {
			return cli.NewConfigError("limits."+name, err.Error())
		}
	}

	var certInfo *securityTLS.CertificateInfo
	if cfg.Server.TLS.Enabled {
		if _, err := securityTLS.NewServerConfig(cfg.Server.TLS, nil); err != nil {
			return cli.NewConfigError("server.tls", err.Error())
		}
		if certInfo, err = securityTLS.ReadCertificateInfo(cfg.Server.TLS.CertFile); err != nil {
			return cli.NewConfigError("server.tls.cert_file", err.Error())
		}
	}
	if cfg.Server.Auth.Enabled {
		if _, err := auth.FromConfig(cfg.Server.Auth); err != nil {
			return cli.NewConfigError("server.auth.keys", err.Error())
		}
	}

	if validateFlags.checkStorage && cfg.Storage.Enabled {
		if err := checkStorage(cmd.Context(), cfg.Storage); err != nil {
			return err
		}
	}

	if format == cli.FormatText {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ Configuration valid: %s (%d limiters)\n", cfgFile, len(cfg.Limits))
		if certInfo != nil {
			fmt.Fprintf(out, "✓ TLS certificate: %s (expires %s)\n", certInfo.Subject, certInfo.NotAfter.Format(time.RFC3339))
			if certInfo.ExpiresWithin(time.Now(), securityTLS.ExpiryWarning) {
				fmt.Fprintln(out, "⚠️  TLS certificate expires within 30 days")
			}
		}
		if cfg.Server.Auth.Enabled {
			fmt.Fprintf(out, "✓ API key auth: %d keys\n", len(cfg.Server.Auth.Keys))
		}
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), limiterTable(cfg.Limits))
}

// checkStorage opens the configured store and counts its records.
func checkStorage(ctx context.Context, cfg config.StorageConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	backend, err := storage.NewSQLiteBackendWithConfig(storage.SQLiteBackendConfig{
		Path:        cfg.Path,
		Driver:      cfg.Driver,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return cli.NewConfigError("storage.path", err.Error())
	}
	defer backend.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := backend.Count(ctx); err != nil {
		return fmt.Errorf("throughput store unusable: %w", err)
	}
	return nil
}

// limiterRow describes one configured limiter.
type limiterRow struct {
	Name           string `json:"name"`
	Limit          int    `json:"limit"`
	Interval       string `json:"interval"`
	SampleInterval string `json:"sample_interval"`
	Log            bool   `json:"log"`
	Metrics        bool   `json:"metrics"`
	Record         bool   `json:"record"`
}

// limiterRows is the validate and dry-run output, sorted by name.
type limiterRows []limiterRow

func limiterTable(limits map[string]config.LimitConfig) limiterRows {
	rows := make(limiterRows, 0, len(limits))
	for name, lc := range limits {
		rows = append(rows, limiterRow{
			Name:           name,
			Limit:          lc.Limit,
			Interval:       lc.Interval.String(),
			SampleInterval: lc.Sampling.Interval.String(),
			Log:            lc.Sampling.Log,
			Metrics:        lc.Sampling.MetricsEnabled(),
			Record:         lc.Sampling.Record,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows
}

// Header implements cli.Table.
func (r limiterRows) Header() []string {
	return []string{"NAME", "LIMIT", "INTERVAL", "SAMPLE", "LOG", "METRICS", "RECORD"}
}

// Rows implements cli.Table.
func (r limiterRows) Rows() [][]string {
	out := make([][]string, len(r))
	for i, row := range r {
		out[i] = []string{
			row.Name,
			strconv.Itoa(row.Limit),
			row.Interval,
			row.SampleInterval,
			strconv.FormatBool(row.Log),
			strconv.FormatBool(row.Metrics),
			strconv.FormatBool(row.Record),
		}
	}
	return out
}
