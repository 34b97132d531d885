// Package executor applies approved patches to a working directory.
package executor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/patchgate/patchgate/internal/diff"
	"github.com/patchgate/patchgate/internal/snapshot"
	"github.com/patchgate/patchgate/pkg/errclass"
	"github.com/patchgate/patchgate/pkg/fsutil"
	"github.com/patchgate/patchgate/pkg/logging"
	"github.com/patchgate/patchgate/pkg/model"
	"github.com/patchgate/patchgate/pkg/pathutil"
)

// Snapshotter keeps pre-images of the files a batch will touch.
type Snapshotter interface {
	Save(patches []model.Patch) (string, error)
}

// Executor applies patches under one working directory.
type Executor struct {
	workdir   string
	snapshots Snapshotter
	logger    *logging.Logger
}

// New creates an executor for workdir. A nil snapshotter selects the
// snapshot store of workdir; a nil logger discards output.
func New(workdir string, snapshots Snapshotter, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.Nop()
	}
	if snapshots == nil {
		snapshots = snapshot.NewStore(workdir, logger)
	}
	return &Executor{workdir: workdir, snapshots: snapshots, logger: logger}
}

// Apply snapshots the batch when enableSnapshot is set, then applies each
// patch in order. A patch that fails is recorded and does not stop the
// others. If the snapshot cannot be taken nothing is applied and the
// result carries a single error under the snapshot pseudo-path.
func (e *Executor) Apply(patches []model.Patch, enableSnapshot bool) *model.ApplyResult {
	res := model.NewApplyResult()

	if enableSnapshot && len(patches) > 0 {
		dir, err := e.snapshots.Save(patches)
		if err != nil {
			e.logger.ErrorErr("snapshot failed, nothing applied", err)
			res.AddError(model.PseudoPathSnapshot, err)
			res.Finish()
			return res
		}
		res.SnapshotPath = dir
	}

	for _, p := range patches {
		if err := e.applyOne(p); err != nil {
			e.logger.Warn("patch failed", map[string]any{"op": string(p.Op()), "path": p.Target(), "error": err.Error()})
			res.AddError(p.Target(), err)
			continue
		}
		e.logger.Debug("patch applied", map[string]any{"op": string(p.Op()), "path": p.Target()})
		res.Applied = append(res.Applied, p.Target())
	}

	res.Finish()
	return res
}

func (e *Executor) applyOne(p model.Patch) error {
	switch v := p.(type) {
	case model.Create:
		return e.write(v.Path, v.Content)
	case model.Update:
		return e.write(v.Path, v.Content)
	case model.Delete:
		return e.remove(v.Path)
	case model.Rename:
		return e.rename(v.Path, v.NewPath)
	case model.Invalid:
		return v.Err
	default:
		return errclass.ErrUnknownOp.WithMessagef("unknown patch operation %q", p.Op())
	}
}

// resolve maps a relative patch path to its location on disk.
func (e *Executor) resolve(rel string) (string, error) {
	if err := pathutil.CheckRelative(rel); err != nil {
		return "", err
	}
	return pathutil.Join(e.workdir, pathutil.Normalize(rel)), nil
}

func (e *Executor) write(rel, content string) error {
	target, err := e.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	perm := os.FileMode(0644)
	if info, err := os.Stat(target); err == nil {
		if info.IsDir() {
			return fmt.Errorf("cannot write %s: is a directory", rel)
		}
		perm = info.Mode().Perm()
	}
	return fsutil.AtomicWrite(target, []byte(content), perm)
}

func (e *Executor) remove(rel string) error {
	target, err := e.resolve(rel)
	if err != nil {
		return err
	}
	info, err := os.Lstat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return errclass.ErrMissingFile.WithMessagef("cannot delete missing file: %s", rel)
	}
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("cannot delete %s: not a regular file", rel)
	}
	if err := os.Remove(target); err != nil {
		return err
	}
	return fsutil.FsyncDir(filepath.Dir(target))
}

func (e *Executor) rename(rel, newRel string) error {
	if newRel == "" {
		return errclass.ErrMissingNewPath.WithMessage("missing newPath for rename")
	}
	src, err := e.resolve(rel)
	if err != nil {
		return err
	}
	dst, err := e.resolve(newRel)
	if err != nil {
		return err
	}
	info, err := os.Lstat(src)
	if errors.Is(err, fs.ErrNotExist) {
		return errclass.ErrMissingFile.WithMessagef("cannot rename missing file: %s", rel)
	}
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("cannot rename %s: not a regular file", rel)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	return fsutil.RenameAndSync(src, dst)
}

// GenerateDiff renders a read-only preview of p against the current state
// of the working directory.
func (e *Executor) GenerateDiff(p model.Patch) (string, error) {
	switch v := p.(type) {
	case model.Delete:
		return fmt.Sprintf("[-] DELETE  %s", v.Path), nil
	case model.Rename:
		return fmt.Sprintf("[~] RENAME  %s → %s", v.Path, v.NewPath), nil
	case model.Create:
		return fmt.Sprintf("[+] CREATE  %s (%d lines)", v.Path, diff.LineCount(v.Content)), nil
	case model.Update:
		target, err := e.resolve(v.Path)
		if err != nil {
			return "", err
		}
		before, err := os.ReadFile(target)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("read %s: %w", v.Path, err)
		}
		out, err := diff.Unified(v.Path, string(before), v.Content)
		if err != nil {
			return "", err
		}
		if out == "" {
			return fmt.Sprintf("[=] UPDATE  %s (no changes)", v.Path), nil
		}
		return out, nil
	case model.Invalid:
		return fmt.Sprintf("[!] INVALID %s: %v", v.Path, v.Err), nil
	default:
		return "", errclass.ErrUnknownOp.WithMessagef("unknown patch operation %q", p.Op())
	}
}
