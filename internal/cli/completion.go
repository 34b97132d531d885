package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for patchgate.

To load completions for your shell:

Bash:
  # To load completions for each session, execute once:
  # Linux:
  patchgate completion bash > /etc/bash_completion.d/patchgate
  # macOS:
  patchgate completion bash > /usr/local/etc/bash_completion.d/patchgate

  # Or add to your ~/.bashrc or ~/.bash_profile:
  source <(patchgate completion bash)

Zsh:
  # To load completions for each session, execute once:
  patchgate completion zsh > "${fpath[1]}/_patchgate"

  # Or add to your ~/.zshrc:
  source <(patchgate completion zsh)

  # You may need to force rebuild the completion cache:
  rm -f ~/.zcompdump
  compinit

Fish:
  # To load completions for each session, execute once:
  patchgate completion fish > ~/.config/fish/completions/patchgate.fish

  # Or add to your ~/.config/fish/config.fish:
  patchgate completion fish | source

PowerShell:
  # To load completions for each session, run:
  patchgate completion powershell | Out-String | Invoke-Expression

  # Or add to your PowerShell profile:
  # (Microsoft.PowerShell_profile.ps1 or profile.ps1)
  patchgate completion powershell | Out-String | Invoke-Expression`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		var err error
		switch args[0] {
		case "bash":
			err = cmd.Root().GenBashCompletion(out)
		case "zsh":
			err = cmd.Root().GenZshCompletion(out)
		case "fish":
			err = cmd.Root().GenFishCompletion(out, true)
		case "powershell":
			err = cmd.Root().GenPowerShellCompletionWithDesc(out)
		}
		if err != nil {
			return fmt.Errorf("generate completion for %s: %w", args[0], err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
