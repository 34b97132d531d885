package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/patchgate/patchgate/internal/audit"
	"github.com/patchgate/patchgate/pkg/color"
	"github.com/patchgate/patchgate/pkg/model"
)

var (
	historyLimit  int
	historyVerify bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the audit log of past runs",
	Long: `Show the audit log of past runs, newest first.

Each line shows the run status, time, patch-set ID and counts of
applied, blocked and failed patches.

Examples:
  patchgate history              # Show the last 10 runs
  patchgate history -n 50        # Show the last 50 runs
  patchgate history --verify     # Also check the audit hash chain`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := loadWorkspace(cmd)
		if err != nil {
			return err
		}
		path := audit.Path(ws.dir)

		entries, err := audit.Recent(path, historyLimit)
		if err != nil {
			return err
		}

		var chainErr error
		verified := 0
		if historyVerify {
			verified, chainErr = audit.VerifyChain(path)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			if entries == nil {
				entries = []*model.AuditEntry{}
			}
			res := map[string]any{"entries": entries}
			if historyVerify {
				res["chainValid"] = chainErr == nil
				if chainErr != nil {
					res["chainError"] = chainErr.Error()
				}
			}
			if err := outputJSON(out, res); err != nil {
				return err
			}
		} else {
			printHistory(out, entries)
			if historyVerify {
				if chainErr != nil {
					fmt.Fprintf(out, "%s %v\n", color.Error("Audit chain broken:"), chainErr)
				} else {
					fmt.Fprintf(out, "%s (%d entries)\n", color.Success("Audit chain OK"), verified)
				}
			}
		}
		if chainErr != nil {
			return errFailed
		}
		return nil
	},
}

func printHistory(w io.Writer, entries []*model.AuditEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No history found.")
		return
	}
	fmt.Fprintf(w, "%s\n\n", color.Header(fmt.Sprintf("PatchGate audit history (last %d runs)", len(entries))))
	for _, e := range entries {
		id := e.PatchSetID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(w, "%s [%s] id:%s applied:%d blocked:%d errors:%d (%dms)",
			statusLabel(e.Status()),
			e.Timestamp.Format(time.RFC3339),
			color.Cyanf(id),
			len(e.Applied), len(e.Blocked), len(e.Errors),
			e.DurationMs,
		)
		if e.Source != "" {
			fmt.Fprintf(w, " %s", color.Dim("source:"+e.Source))
		}
		fmt.Fprintln(w)
	}
}

func statusLabel(status string) string {
	switch status {
	case "error":
		return color.Error("ERROR  ")
	case "blocked":
		return color.Warning("BLOCKED")
	default:
		return color.Success("OK     ")
	}
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of runs to show (0 for all)")
	historyCmd.Flags().BoolVar(&historyVerify, "verify", false, "verify the audit hash chain")
	rootCmd.AddCommand(historyCmd)
}
