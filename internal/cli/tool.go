package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/patchgate/patchgate/internal/tools"
	"github.com/patchgate/patchgate/pkg/patchgate"
)

var toolSource string

var toolCmd = &cobra.Command{
	Use:   "tool",
	Short: "Expose file operations as agent tools",
	Long: `Expose PatchGate file operations as function-calling tools.

Agents that can run shell commands but not link Go code call these
subcommands. Every call is a one-patch batch with a snapshot and an
audit entry.`,
}

var toolListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the tool definitions as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		defs := make([]tools.Definition, 0, 3)
		for _, t := range tools.NewFileTools(tools.Options{}) {
			defs = append(defs, t.Definition)
		}
		return outputJSON(cmd.OutOrStdout(), defs)
	},
}

var toolCallCmd = &cobra.Command{
	Use:   "call <name> [<arguments-json>|-]",
	Short: "Invoke one tool and print its result as JSON",
	Long: `Invoke one tool and print its result as JSON.

Arguments are a JSON object, given inline or read from stdin with "-".
The exit code is 1 when the result is not ok.

Examples:
  patchgate tool call patchgate_write_file '{"path":"a.txt","content":"hi"}'
  echo '{"path":"old.go","newPath":"new.go"}' | patchgate tool call patchgate_rename_file -`,
	Args: cobra.RangeArgs(1, 2),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return toolNames(), cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := loadWorkspace(cmd)
		if err != nil {
			return err
		}

		raw := "{}"
		if len(args) == 2 {
			raw = args[1]
		}
		if raw == "-" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read tool arguments: %w", err)
			}
			raw = string(data)
		}

		base := ws.cfg.Policy.Resolve()
		set := tools.NewFileTools(tools.Options{
			Source: toolSource,
			Run: patchgate.Options{
				Workdir: ws.dir,
				Base:    &base,
				Webhook: ws.webhook(),
				Logger:  ws.logger,
			},
		})
		t := tools.Find(set, args[0])
		if t == nil {
			return fmt.Errorf("unknown tool %q (available: %v)", args[0], toolNames())
		}

		res, err := t.Execute(cmd.Context(), json.RawMessage(raw))
		if err != nil {
			return err
		}
		if err := outputJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
		if !res.OK {
			return errFailed
		}
		return nil
	},
}

func toolNames() []string {
	var names []string
	for _, t := range tools.NewFileTools(tools.Options{}) {
		names = append(names, t.Definition.Name)
	}
	slices.Sort(names)
	return names
}

func init() {
	toolCallCmd.Flags().StringVar(&toolSource, "source", tools.DefaultSource, "source recorded in the audit log")
	toolCmd.AddCommand(toolListCmd)
	toolCmd.AddCommand(toolCallCmd)
	rootCmd.AddCommand(toolCmd)
}
