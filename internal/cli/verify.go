package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/patchgate/patchgate/internal/verify"
	"github.com/patchgate/patchgate/pkg/color"
)

var verifyManifestOnly bool

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check snapshots and the audit log for tampering",
	Long: `Check snapshots and the audit log for tampering.

Every snapshot manifest is checked against its checksum and every stored
copy against its recorded hash. The audit log hash chain is recomputed.
Exits with status 1 if anything does not match.

Examples:
  patchgate verify
  patchgate verify --manifest-only`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := loadWorkspace(cmd)
		if err != nil {
			return err
		}
		v := verify.NewVerifier(ws.dir)

		results, err := v.VerifyAll(!verifyManifestOnly)
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		auditRes := v.VerifyAudit()

		bad := !auditRes.ChainValid
		for _, r := range results {
			if r.TamperDetected {
				bad = true
			}
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			if results == nil {
				results = []*verify.Result{}
			}
			if err := outputJSON(out, map[string]any{"snapshots": results, "audit": auditRes}); err != nil {
				return err
			}
		} else {
			for _, r := range results {
				status := color.Success("OK")
				if r.TamperDetected {
					status = color.Error("TAMPERED") + " " + r.Error
				}
				fmt.Fprintf(out, "snapshot %s  %s\n", color.SnapshotID(filepath.Base(r.Dir)), status)
			}
			if auditRes.ChainValid {
				fmt.Fprintf(out, "audit log  %s (%d entries)\n", color.Success("OK"), auditRes.Entries)
			} else {
				fmt.Fprintf(out, "audit log  %s %s\n", color.Error("BROKEN"), auditRes.Error)
			}
		}

		if bad {
			return errFailed
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyManifestOnly, "manifest-only", false, "skip re-hashing stored copies")
	rootCmd.AddCommand(verifyCmd)
}
