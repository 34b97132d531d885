package audit

import (
	"context"
	"errors"
	"time"

	"github.com/patchgate/patchgate/pkg/model"
)

// BuildEntry assembles the audit entry for a finished run.
func BuildEntry(ps *model.PatchSet, res *model.ApplyResult, blocked []model.BlockedPath, at time.Time, took time.Duration) *model.AuditEntry {
	e := &model.AuditEntry{
		Timestamp:    at.UTC(),
		PatchSetID:   ps.ID,
		Source:       ps.Source,
		TotalPatches: len(ps.Patches),
		Success:      res.Success,
		Applied:      res.Applied,
		Blocked:      blocked,
		Errors:       res.Errors,
		Skipped:      res.Skipped,
		SnapshotPath: res.SnapshotPath,
		DurationMs:   took.Milliseconds(),
	}
	if e.Applied == nil {
		e.Applied = []string{}
	}
	if e.Blocked == nil {
		e.Blocked = []model.BlockedPath{}
	}
	if e.Errors == nil {
		e.Errors = []model.PathError{}
	}
	return e
}

// Multi fans an entry out to several sinks. Every sink is called; their
// errors are joined.
type Multi []Sink

// Record implements Sink.
func (m Multi) Record(ctx context.Context, entry *model.AuditEntry) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
