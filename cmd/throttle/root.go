package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/throttle/pkg/cli"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "throttle",
	Short: "Mercator Throttle - sliding-window rate limiting service",
	Long: `Mercator Throttle serves named sliding-window rate limiters and reports
their throughput.

It provides:
  - Lock-free limiters with a fixed number of permits per rolling interval
  - Overload tracking and periodic throughput sampling
  - Prometheus metrics, structured logs and stored throughput history
  - Configuration hot reload without dropping in-flight requests`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with a code derived from the
// returned error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "throttle.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
