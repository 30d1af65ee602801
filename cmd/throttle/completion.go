package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for Mercator Throttle.

To load completions:

Bash:
  $ source <(throttle completion bash)
  # To load permanently:
  $ throttle completion bash > /etc/bash_completion.d/throttle

Zsh:
  $ throttle completion zsh > "${fpath[1]}/_throttle"
  $ compinit

Fish:
  $ throttle completion fish | source
  # To load permanently:
  $ throttle completion fish > ~/.config/fish/completions/throttle.fish

PowerShell:
  PS> throttle completion powershell | Out-String | Invoke-Expression
  # To load permanently, add to your PowerShell profile
`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(cmd.OutOrStdout())
		case "zsh":
			return rootCmd.GenZshCompletion(cmd.OutOrStdout())
		case "fish":
			return rootCmd.GenFishCompletion(cmd.OutOrStdout(), true)
		case "powershell":
			return rootCmd.GenPowerShellCompletion(cmd.OutOrStdout())
		default:
			return fmt.Errorf("unsupported shell: %s", args[0])
		}
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
