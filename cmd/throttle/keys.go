package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/throttle/pkg/cli"
	"mercator-hq/throttle/pkg/config"
	"mercator-hq/throttle/pkg/security/auth"
)

var keysFlags struct {
	name     string
	limiters []string
	bytes    int
	output   string
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
	Long: `Generate and list the API keys that guard the /limits routes when
server.auth is enabled.

Subcommands:
  generate - Generate a new API key
  list     - List configured keys (values are never printed)

Examples:
  # Generate a key restricted to the "api" limiter
  throttle keys generate --name checkout --limiter api

  # List the keys in the config file
  throttle keys list`,
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new API key",
	Long: `Generate a random API key and print a configuration snippet for it.

Store the key in an environment variable and reference it with key_env
rather than committing it to the config file.`,
	RunE: generateKey,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured API keys",
	RunE:  listKeys,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysGenerateCmd, keysListCmd)

	keysGenerateCmd.Flags().StringVar(&keysFlags.name, "name", "", "key name (required)")
	keysGenerateCmd.Flags().StringSliceVar(&keysFlags.limiters, "limiter", nil, "limiters the key may use (repeatable, default all)")
	keysGenerateCmd.Flags().IntVar(&keysFlags.bytes, "bytes", 32, "random bytes in the key")
	_ = keysGenerateCmd.MarkFlagRequired("name")

	keysListCmd.Flags().StringVarP(&keysFlags.output, "output", "o", "text", "output format: text, json, csv")
}

// newAPIKey returns "sk-" followed by n random bytes, base64url encoded.
func newAPIKey(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "sk-" + base64.RawURLEncoding.EncodeToString(buf), nil
}

func generateKey(cmd *cobra.Command, args []string) error {
	if keysFlags.bytes < 16 {
		return cli.NewConfigError("--bytes", "must be at least 16")
	}
	key, err := newAPIKey(keysFlags.bytes)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}

	envName := "THROTTLE_KEY_" + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(keysFlags.name))
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Key: %s\n\n", key)
	fmt.Fprintln(out, "⚠️  Store the key securely; it is not shown again")
	fmt.Fprintln(out, "✓  Key generated successfully")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "export %s=%s\n\n", envName, key)
	fmt.Fprintln(out, "Configuration snippet:")
	fmt.Fprintln(out, "server:")
	fmt.Fprintln(out, "  auth:")
	fmt.Fprintln(out, "    keys:")
	fmt.Fprintf(out, "      - name: %s\n", keysFlags.name)
	fmt.Fprintf(out, "        key_env: %s\n", envName)
	if len(keysFlags.limiters) > 0 {
		fmt.Fprintf(out, "        limiters: [%s]\n", strings.Join(keysFlags.limiters, ", "))
	}
	return nil
}

// keyRows lists keys without their values.
type keyRows []*auth.APIKeyInfo

// Header implements cli.Table.
func (k keyRows) Header() []string {
	return []string{"NAME", "ENABLED", "LIMITERS"}
}

// Rows implements cli.Table.
func (k keyRows) Rows() [][]string {
	rows := make([][]string, len(k))
	for i, info := range k {
		limiters := strings.Join(info.Limiters, ",")
		if limiters == "" {
			limiters = "*"
		}
		rows[i] = []string{info.Name, fmt.Sprint(info.Enabled), limiters}
	}
	return rows
}

func listKeys(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(keysFlags.output)
	if err != nil {
		return cli.NewConfigError("--output", err.Error())
	}
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return err
	}

	keys, err := auth.FromConfig(cfg.Server.Auth)
	if err != nil {
		return cli.NewConfigError("server.auth.keys", err.Error())
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), keyRows(auth.NewAPIKeyValidator(keys).List()))
}
