package model

import "time"

// AuditEntry is a single line in the audit log (JSONL format), written once
// per completed run.
type AuditEntry struct {
	Timestamp    time.Time     `json:"timestamp"`
	PatchSetID   string        `json:"patchSetId"`
	Source       string        `json:"source,omitempty"`
	TotalPatches int           `json:"totalPatches"`
	Success      bool          `json:"success"`
	Applied      []string      `json:"applied"`
	Blocked      []BlockedPath `json:"blocked"`
	Errors       []PathError   `json:"errors"`
	Skipped      []SkippedPath `json:"skipped,omitempty"`
	SnapshotPath string        `json:"snapshotPath,omitempty"`
	DurationMs   int64         `json:"durationMs"`
	PrevHash     HashValue     `json:"prevHash"`
	RecordHash   HashValue     `json:"recordHash"`
}

// Status summarizes the entry for history listings.
func (e *AuditEntry) Status() string {
	switch {
	case len(e.Errors) > 0:
		return "error"
	case len(e.Blocked) > 0:
		return "blocked"
	default:
		return "ok"
	}
}
