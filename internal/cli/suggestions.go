package cli

import (
	"fmt"
	"strings"

	"github.com/patchgate/patchgate/internal/snapshot"
	"github.com/patchgate/patchgate/pkg/color"
)

const maxSuggestions = 3

// suggestSnapshots returns a hint for a snapshot reference that did not
// resolve: close IDs if any, otherwise how to list snapshots.
func suggestSnapshots(store *snapshot.Store, query string) string {
	infos, err := store.List()
	if err != nil || len(infos) == 0 {
		return color.Dim("  No snapshots found. Snapshots are taken by " + color.Code("patchgate apply") + ".")
	}

	var matches []string
	for _, info := range infos {
		id := string(info.Manifest.ID)
		if strings.Contains(id, query) {
			matches = append(matches, color.SnapshotID(id))
			if len(matches) == maxSuggestions {
				break
			}
		}
	}

	if len(matches) > 0 {
		hint := "Did you mean"
		if len(matches) > 1 {
			hint += " one of"
		}
		return color.Dim(fmt.Sprintf("  %s: %s?", hint, strings.Join(matches, ", ")))
	}
	return color.Dim(fmt.Sprintf("  Run %s to see available snapshots.", color.Code("patchgate snapshots")))
}
