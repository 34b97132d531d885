package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/patchgate/patchgate/internal/snapshot"
	"github.com/patchgate/patchgate/pkg/color"
	"github.com/patchgate/patchgate/pkg/patchgate"
)

var rollbackLatest bool

var rollbackCmd = &cobra.Command{
	Use:   "rollback [<snapshot>]",
	Short: "Restore files from a snapshot",
	Long: `Restore files from a snapshot taken before a patch set was applied.

The snapshot can be:
- A snapshot directory path (as printed by apply)
- A full snapshot ID
- A unique snapshot ID prefix

Use --latest to roll back the most recent snapshot.

Examples:
  patchgate rollback --latest
  patchgate rollback 1775000000000-1a2b3c4d
  patchgate rollback .patchgate/snapshots/1775000000000-1a2b3c4d`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := loadWorkspace(cmd)
		if err != nil {
			return err
		}
		store := snapshot.NewStore(ws.dir, ws.logger)

		var dir string
		switch {
		case rollbackLatest:
			info, err := store.Latest()
			if err != nil {
				return err
			}
			dir = info.Dir
		case len(args) == 0:
			return fmt.Errorf("snapshot reference or --latest required")
		default:
			dir, err = store.Resolve(args[0])
			if err != nil {
				return fmt.Errorf("%w\n%s", err, suggestSnapshots(store, args[0]))
			}
		}

		err = patchgate.Rollback(cmd.Context(), dir, patchgate.Options{
			Workdir: ws.dir,
			Logger:  ws.logger,
			Webhook: ws.webhook(),
		})

		out := cmd.OutOrStdout()
		if jsonOutput {
			res := map[string]any{"snapshot": dir, "rolledBack": err == nil}
			if err != nil {
				res["error"] = err.Error()
			}
			if jerr := outputJSON(out, res); jerr != nil {
				return jerr
			}
			if err != nil {
				return errFailed
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		fmt.Fprintf(out, "%s %s\n", color.Success("Rolled back from:"), color.SnapshotID(dir))
		return nil
	},
}

func init() {
	rollbackCmd.Flags().BoolVar(&rollbackLatest, "latest", false, "roll back the most recent snapshot")
	rootCmd.AddCommand(rollbackCmd)
}
