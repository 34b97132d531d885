package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/patchgate/patchgate/internal/snapshot"
	"github.com/patchgate/patchgate/pkg/color"
	"github.com/patchgate/patchgate/pkg/model"
)

// snapshotListing is the JSON form of one snapshot.
type snapshotListing struct {
	ID        model.SnapshotID `json:"id"`
	Dir       string           `json:"dir"`
	CreatedAt time.Time        `json:"createdAt"`
	Files     int              `json:"files"`
}

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List snapshots, newest first",
	Long: `List snapshots, newest first.

Snapshots whose manifest is missing or corrupt are not listed; run
patchgate verify to find them.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := loadWorkspace(cmd)
		if err != nil {
			return err
		}
		infos, err := snapshot.NewStore(ws.dir, ws.logger).List()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			list := make([]snapshotListing, 0, len(infos))
			for _, info := range infos {
				list = append(list, snapshotListing{
					ID:        info.Manifest.ID,
					Dir:       info.Dir,
					CreatedAt: info.Manifest.CreatedAt,
					Files:     len(info.Manifest.Files),
				})
			}
			return outputJSON(out, list)
		}

		if len(infos) == 0 {
			fmt.Fprintln(out, "No snapshots yet.")
			return nil
		}
		for _, info := range infos {
			m := info.Manifest
			fmt.Fprintf(out, "%s  %s  %d file(s)\n",
				color.SnapshotID(string(m.ID)),
				m.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				len(m.Files),
			)
			for _, e := range m.Files {
				target := e.Path
				if e.NewPath != "" {
					target += " → " + e.NewPath
				}
				fmt.Fprintf(out, "    %-6s %s\n", color.Op(string(e.Op)), color.Dim(target))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(snapshotsCmd)
}
