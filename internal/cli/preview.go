package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/patchgate/patchgate/internal/diff"
	"github.com/patchgate/patchgate/pkg/color"
	"github.com/patchgate/patchgate/pkg/patchgate"
)

var previewCmd = &cobra.Command{
	Use:   "preview <patch-file>",
	Short: "Show the diffs a patch set would produce without writing anything",
	Long: `Show the diffs a patch set would produce without writing anything.

Blocked patches are listed with the pattern that blocked them; only
allowed patches get a diff.

Examples:
  patchgate preview patch.json
  patchgate preview --json patch.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := loadWorkspace(cmd)
		if err != nil {
			return err
		}
		in, err := readPatchSet(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}

		base := ws.cfg.Policy.Resolve()
		res, err := patchgate.Preview(cmd.Context(), in, patchgate.Options{
			Workdir: ws.dir,
			Base:    &base,
			Logger:  ws.logger,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return outputJSON(out, res)
		}

		fmt.Fprintf(out, "%s %d patch(es)\n\n", color.Header("Preview:"), len(in.Patches))
		summary := diff.Summarize(res.Allowed)
		fmt.Fprint(out, summary.FormatHuman())

		for _, d := range res.Diffs {
			fmt.Fprintf(out, "── %s  %s\n", color.Op(string(d.Op)), d.Path)
			printDiffText(out, d.Text)
			fmt.Fprintln(out)
		}
		if len(res.Blocked) > 0 {
			fmt.Fprintln(out, color.Warning("Would be blocked by policy:"))
			for _, b := range res.Blocked {
				fmt.Fprintf(out, "   %s: %s\n", b.Path, b.Reason)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(previewCmd)
}
