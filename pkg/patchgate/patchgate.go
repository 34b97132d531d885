package patchgate

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/patchgate/patchgate/internal/audit"
	"github.com/patchgate/patchgate/internal/executor"
	"github.com/patchgate/patchgate/internal/policy"
	"github.com/patchgate/patchgate/internal/snapshot"
	"github.com/patchgate/patchgate/pkg/config"
	"github.com/patchgate/patchgate/pkg/errclass"
	"github.com/patchgate/patchgate/pkg/logging"
	"github.com/patchgate/patchgate/pkg/model"
	"github.com/patchgate/patchgate/pkg/webhook"
)

// CancelledReason is the skip reason recorded when a preview is rejected.
const CancelledReason = "cancelled by user"

// stateDirPattern keeps agents away from snapshots, the audit log and the
// config file whatever the configured blocklist says.
var stateDirPattern = path.Join(config.StateDir, "**")

// Diff is the preview of one allowed patch.
type Diff struct {
	Op   model.Op `json:"op"`
	Path string   `json:"path"`
	Text string   `json:"diff"`
}

// PreviewFunc is shown the diffs of the allowed patches before anything is
// written. Returning false cancels the run; returning an error aborts it.
type PreviewFunc func(ctx context.Context, diffs []Diff) (bool, error)

// Options configures a run.
type Options struct {
	// Workdir is the directory patches are relative to. Required.
	Workdir string
	// Base is the policy before overrides; nil means config.DefaultPolicy.
	Base *config.PolicyConfig
	// Config overrides fields of Base for this run.
	Config *config.Override
	// Preview, when set, must approve the batch before it is applied.
	Preview PreviewFunc
	// Audit receives the run's audit entry; nil means the JSONL log under
	// Workdir.
	Audit audit.Sink
	// Webhook, when enabled, is notified after the audit entry is written.
	Webhook *webhook.Client
	// Matcher overrides the blocklist glob matcher.
	Matcher policy.Matcher
	Logger  *logging.Logger
	Now     func() time.Time
	NewID   func() string
}

func (o *Options) defaults() error {
	if o.Workdir == "" {
		return errclass.ErrWorkdirRequired.WithMessage("workdir is required")
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Audit == nil {
		o.Audit = audit.NewFileAppender(audit.Path(o.Workdir))
	}
	return nil
}

// Policy returns the effective policy of a run with these options.
func (o *Options) Policy() config.PolicyConfig {
	base := config.DefaultPolicy()
	if o.Base != nil {
		base = *o.Base
	}
	return base.Merge(o.Config)
}

// Result is the outcome of Run.
type Result struct {
	model.ApplyResult
	Blocked    []model.BlockedPath `json:"blocked"`
	PatchSetID string              `json:"patchSetId"`
}

// Run checks, previews, applies and audits one patch set.
//
// With FailOnBlocked set, a single blocked patch stops the run before any
// snapshot is taken; the result then carries one error under the policy
// pseudo-path. Neither that outcome nor a cancelled preview is audited.
func Run(ctx context.Context, in model.PatchSetInput, opts Options) (*Result, error) {
	if err := opts.defaults(); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	start := opts.Now()

	ps := in.Materialize(start, opts.NewID)
	cfg := opts.Policy()
	logger := opts.Logger.WithFields(map[string]any{"patchset": ps.ID})
	logger.Info("run started", map[string]any{"source": ps.Source, "patches": len(ps.Patches)})

	checked := enforce(ps, cfg, opts.Matcher)
	blocked := checked.BlockedPaths()
	for _, b := range blocked {
		logger.Warn("patch blocked", map[string]any{"path": b.Path, "reason": b.Reason})
	}

	res := &Result{
		ApplyResult: *model.NewApplyResult(),
		Blocked:     blocked,
		PatchSetID:  ps.ID,
	}

	if cfg.FailOnBlocked && len(blocked) > 0 {
		res.AddError(model.PseudoPathPolicy,
			errclass.ErrPolicyBlocked.WithMessagef("%d patch(es) blocked by policy", len(blocked)))
		res.Finish()
		logger.Warn("run stopped by policy", map[string]any{"blocked": len(blocked)})
		return res, nil
	}

	ex := executor.New(opts.Workdir, snapshot.NewStore(opts.Workdir, logger), logger)

	if opts.Preview != nil && len(checked.Allowed) > 0 {
		approved, err := opts.Preview(ctx, previewDiffs(ex, checked.Allowed))
		if err != nil {
			return nil, fmt.Errorf("preview: %w", err)
		}
		if !approved {
			for _, p := range checked.Allowed {
				res.Skipped = append(res.Skipped, model.SkippedPath{Path: p.Target(), Reason: CancelledReason})
			}
			res.Success = false
			logger.Info("run cancelled at preview", map[string]any{"skipped": len(res.Skipped)})
			return res, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	applied := ex.Apply(checked.Allowed, cfg.EnableSnapshot)
	res.ApplyResult = *applied

	entry := audit.BuildEntry(ps, applied, blocked, start, opts.Now().Sub(start))
	sinks := audit.Multi{opts.Audit}
	if opts.Webhook.Enabled() {
		sinks = append(sinks, opts.Webhook)
	}
	if err := sinks.Record(ctx, entry); err != nil {
		logger.Warn("audit entry not recorded", map[string]any{"error": err.Error()})
	}

	logger.Info("run finished", map[string]any{
		"success":  res.Success,
		"applied":  len(res.Applied),
		"blocked":  len(res.Blocked),
		"errors":   len(res.Errors),
		"snapshot": res.SnapshotPath,
	})
	return res, nil
}

func enforce(ps *model.PatchSet, cfg config.PolicyConfig, m policy.Matcher) policy.Result {
	extra := append([]string{stateDirPattern}, ps.Blocklist...)
	return policy.NewEngine(m).Enforce(ps.Patches, cfg, extra)
}

// previewDiffs renders one diff per patch. A patch whose diff cannot be
// rendered gets an error marker; the executor reports the failure itself.
func previewDiffs(ex *executor.Executor, patches []model.Patch) []Diff {
	diffs := make([]Diff, 0, len(patches))
	for _, p := range patches {
		text, err := ex.GenerateDiff(p)
		if err != nil {
			text = fmt.Sprintf("[!] ERROR   %s: %v", p.Target(), err)
		}
		diffs = append(diffs, Diff{Op: p.Op(), Path: p.Target(), Text: text})
	}
	return diffs
}

// PreviewResult is the outcome of Preview.
type PreviewResult struct {
	PatchSetID string              `json:"patchSetId"`
	Diffs      []Diff              `json:"diffs"`
	Blocked    []model.BlockedPath `json:"blocked"`
	// Allowed are the patches that passed the policy, in input order.
	Allowed []model.Patch `json:"-"`
}

// Preview runs the policy check and renders diffs of the allowed patches
// without writing anything.
func Preview(ctx context.Context, in model.PatchSetInput, opts Options) (*PreviewResult, error) {
	if err := opts.defaults(); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	ps := in.Materialize(opts.Now(), opts.NewID)
	checked := enforce(ps, opts.Policy(), opts.Matcher)

	ex := executor.New(opts.Workdir, nil, opts.Logger)
	diffs := previewDiffs(ex, checked.Allowed)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &PreviewResult{
		PatchSetID: ps.ID,
		Diffs:      diffs,
		Blocked:    checked.BlockedPaths(),
		Allowed:    checked.Allowed,
	}, nil
}

// Rollback restores the working directory from the snapshot at snapshotDir.
// Only Workdir, Logger and Webhook of opts are used.
func Rollback(ctx context.Context, snapshotDir string, opts Options) error {
	if err := opts.defaults(); err != nil {
		return err
	}
	err := snapshot.NewStore(opts.Workdir, opts.Logger).Rollback(snapshotDir)
	if opts.Webhook.Enabled() {
		if werr := opts.Webhook.SendRollback(ctx, opts.Workdir, snapshotDir, err); werr != nil {
			opts.Logger.Warn("rollback webhook failed", map[string]any{"error": werr.Error()})
		}
	}
	return err
}

// File is a path and its full new content.
type File struct {
	Path    string
	Content string
	Reason  string
}

// CreatePatchSet builds a patch set of update patches from whole-file
// contents, the shape most LLM responses come in.
func CreatePatchSet(files []File, source string) model.PatchSetInput {
	in := model.PatchSetInput{
		Source:  source,
		Patches: make([]model.FilePatchJSON, 0, len(files)),
	}
	for _, f := range files {
		content := f.Content
		in.Patches = append(in.Patches, model.FilePatchJSON{
			Op:      string(model.OpUpdate),
			Path:    f.Path,
			Content: &content,
			Reason:  f.Reason,
		})
	}
	return in
}
