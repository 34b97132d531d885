package patchgate_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchgate/patchgate/internal/audit"
	"github.com/patchgate/patchgate/pkg/config"
	"github.com/patchgate/patchgate/pkg/errclass"
	"github.com/patchgate/patchgate/pkg/model"
	"github.com/patchgate/patchgate/pkg/patchgate"
)

func str(s string) *string { return &s }

type recordFunc func(ctx context.Context, entry *model.AuditEntry) error

func (f recordFunc) Record(ctx context.Context, entry *model.AuditEntry) error { return f(ctx, entry) }

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func auditEntries(t *testing.T, workdir string) []*model.AuditEntry {
	t.Helper()
	entries, err := audit.ReadAll(audit.Path(workdir))
	require.NoError(t, err)
	return entries
}

func TestRun_RequiresWorkdir(t *testing.T) {
	_, err := patchgate.Run(context.Background(), model.PatchSetInput{Patches: []model.FilePatchJSON{}}, patchgate.Options{})
	assert.True(t, errors.Is(err, errclass.ErrWorkdirRequired))
}

func TestRun_RejectsStructurallyInvalidInput(t *testing.T) {
	_, err := patchgate.Run(context.Background(), model.PatchSetInput{}, patchgate.Options{Workdir: t.TempDir()})
	assert.True(t, errors.Is(err, errclass.ErrPatchSetInvalid))
}

func TestRun_DotenvScenario(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "SECRET=123")

	res, err := patchgate.Run(context.Background(), model.PatchSetInput{
		Patches: []model.FilePatchJSON{{Op: "update", Path: ".env", Content: str("HACKED=YES")}},
	}, patchgate.Options{Workdir: dir})
	require.NoError(t, err)

	require.Len(t, res.Blocked, 1)
	assert.Equal(t, ".env", res.Blocked[0].Path)
	assert.Empty(t, res.Applied)
	assert.Equal(t, "SECRET=123", readFile(t, dir, ".env"))
}

func TestRun_HappyPathAuditsAndSnapshots(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/index.ts", "old")
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	res, err := patchgate.Run(context.Background(), model.PatchSetInput{
		Source: "claude",
		Patches: []model.FilePatchJSON{
			{Op: "update", Path: "src/index.ts", Content: str("new"), Reason: "fix null check"},
			{Op: "create", Path: ".env.local", Content: str("X=1")},
		},
	}, patchgate.Options{
		Workdir: dir,
		Now:     func() time.Time { return now },
		NewID:   func() string { return "ps-fixed" },
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "ps-fixed", res.PatchSetID)
	assert.Equal(t, []string{"src/index.ts"}, res.Applied)
	require.Len(t, res.Blocked, 1)
	assert.Contains(t, res.Blocked[0].Reason, `".env.*"`)
	assert.NotEmpty(t, res.SnapshotPath)
	assert.Equal(t, "new", readFile(t, dir, "src/index.ts"))

	entries := auditEntries(t, dir)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "ps-fixed", e.PatchSetID)
	assert.Equal(t, "claude", e.Source)
	assert.Equal(t, 2, e.TotalPatches)
	assert.True(t, e.Success)
	assert.Equal(t, []string{"src/index.ts"}, e.Applied)
	assert.Len(t, e.Blocked, 1)
	assert.Equal(t, res.SnapshotPath, e.SnapshotPath)
	assert.True(t, now.Equal(e.Timestamp))
}

func TestRun_RollbackRoundTrip(t *testing.T) {
	dir := t.TempDir()
	original := "line1\r\nline2\x00binary\n"
	writeFile(t, dir, "data.bin", original)

	res, err := patchgate.Run(context.Background(), model.PatchSetInput{
		Patches: []model.FilePatchJSON{{Op: "update", Path: "data.bin", Content: str("changed")}},
	}, patchgate.Options{Workdir: dir})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "changed", readFile(t, dir, "data.bin"))

	require.NoError(t, patchgate.Rollback(context.Background(), res.SnapshotPath, patchgate.Options{Workdir: dir}))
	assert.Equal(t, original, readFile(t, dir, "data.bin"))
	require.NoError(t, patchgate.Rollback(context.Background(), res.SnapshotPath, patchgate.Options{Workdir: dir}))
	assert.Equal(t, original, readFile(t, dir, "data.bin"))
}

func TestRun_PartialFailureIsolation(t *testing.T) {
	dir := t.TempDir()
	res, err := patchgate.Run(context.Background(), model.PatchSetInput{
		Patches: []model.FilePatchJSON{
			{Op: "delete", Path: "does-not-exist.txt"},
			{Op: "create", Path: "fresh.txt", Content: str("hi")},
		},
	}, patchgate.Options{Workdir: dir})
	require.NoError(t, err)

	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "does-not-exist.txt", res.Errors[0].Path)
	assert.Equal(t, []string{"fresh.txt"}, res.Applied)

	entries := auditEntries(t, dir)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
	assert.Equal(t, "error", entries[0].Status())
}

func TestRun_FailOnBlockedShortCircuits(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "untouched")

	res, err := patchgate.Run(context.Background(), model.PatchSetInput{
		Patches: []model.FilePatchJSON{
			{Op: "update", Path: "a.txt", Content: str("changed")},
			{Op: "create", Path: "secrets/server.pem", Content: str("x")},
		},
	}, patchgate.Options{
		Workdir: dir,
		Config:  &config.Override{FailOnBlocked: config.Bool(true)},
		Preview: func(context.Context, []patchgate.Diff) (bool, error) {
			t.Fatal("preview must not run")
			return false, nil
		},
	})
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Empty(t, res.Applied)
	assert.NotNil(t, res.Applied)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, model.PseudoPathPolicy, res.Errors[0].Path)
	assert.Contains(t, res.Errors[0].Message, "1 patch(es) blocked by policy")
	assert.Len(t, res.Blocked, 1)
	assert.Empty(t, res.SnapshotPath)

	assert.Equal(t, "untouched", readFile(t, dir, "a.txt"))
	assert.NoDirExists(t, filepath.Join(dir, config.StateDir), "no snapshot and no audit line")
}

func TestRun_PreviewCancel(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "v1\n")

	var seen []patchgate.Diff
	res, err := patchgate.Run(context.Background(), model.PatchSetInput{
		Patches: []model.FilePatchJSON{
			{Op: "update", Path: "a.txt", Content: str("v2\n")},
			{Op: "delete", Path: "b.txt"},
			{Op: "create", Path: ".env", Content: str("x")},
		},
	}, patchgate.Options{
		Workdir: dir,
		Preview: func(_ context.Context, diffs []patchgate.Diff) (bool, error) {
			seen = diffs
			return false, nil
		},
	})
	require.NoError(t, err)

	require.Len(t, seen, 2, "only allowed patches are previewed")
	assert.Contains(t, seen[0].Text, "+v2")
	assert.Equal(t, "[-] DELETE  b.txt", seen[1].Text)

	assert.False(t, res.Success)
	assert.Empty(t, res.Applied)
	assert.Equal(t, []model.SkippedPath{
		{Path: "a.txt", Reason: patchgate.CancelledReason},
		{Path: "b.txt", Reason: patchgate.CancelledReason},
	}, res.Skipped)
	assert.Len(t, res.Blocked, 1)
	assert.Equal(t, "v1\n", readFile(t, dir, "a.txt"))
	assert.NoDirExists(t, filepath.Join(dir, config.StateDir))
}

func TestRun_PreviewApprove(t *testing.T) {
	dir := t.TempDir()
	res, err := patchgate.Run(context.Background(), model.PatchSetInput{
		Patches: []model.FilePatchJSON{{Op: "create", Path: "n.txt", Content: str("a\nb\n")}},
	}, patchgate.Options{
		Workdir: dir,
		Preview: func(_ context.Context, diffs []patchgate.Diff) (bool, error) {
			return len(diffs) == 1 && diffs[0].Text == "[+] CREATE  n.txt (2 lines)", nil
		},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "a\nb\n", readFile(t, dir, "n.txt"))
}

func TestRun_PreviewErrorAborts(t *testing.T) {
	dir := t.TempDir()
	_, err := patchgate.Run(context.Background(), model.PatchSetInput{
		Patches: []model.FilePatchJSON{{Op: "create", Path: "n.txt", Content: str("x")}},
	}, patchgate.Options{
		Workdir: dir,
		Preview: func(context.Context, []patchgate.Diff) (bool, error) {
			return false, errors.New("terminal closed")
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terminal closed")
	assert.NoFileExists(t, filepath.Join(dir, "n.txt"))
}

func TestRun_UnrenderableDiffIsScopedToItsPatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkg", "inner"), 0755))

	var seen []patchgate.Diff
	res, err := patchgate.Run(context.Background(), model.PatchSetInput{
		Patches: []model.FilePatchJSON{
			{Op: "update", Path: "pkg", Content: str("x")},
			{Op: "create", Path: "ok.txt", Content: str("ok")},
		},
	}, patchgate.Options{
		Workdir: dir,
		Config:  &config.Override{EnableSnapshot: config.Bool(false)},
		Preview: func(_ context.Context, diffs []patchgate.Diff) (bool, error) {
			seen = diffs
			return true, nil
		},
	})
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.True(t, strings.HasPrefix(seen[0].Text, "[!] ERROR   pkg:"), seen[0].Text)
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "pkg", res.Errors[0].Path)
	assert.Equal(t, []string{"ok.txt"}, res.Applied)
}

func TestRun_PreviewSkippedWhenNothingAllowed(t *testing.T) {
	called := false
	res, err := patchgate.Run(context.Background(), model.PatchSetInput{
		Patches: []model.FilePatchJSON{{Op: "create", Path: "/etc/x", Content: str("x")}},
	}, patchgate.Options{
		Workdir: t.TempDir(),
		Preview: func(context.Context, []patchgate.Diff) (bool, error) {
			called = true
			return true, nil
		},
	})
	require.NoError(t, err)
	assert.False(t, called)
	assert.True(t, res.Success)
	assert.Len(t, res.Blocked, 1)
}

func TestRun_SnapshotDisabled(t *testing.T) {
	dir := t.TempDir()
	res, err := patchgate.Run(context.Background(), model.PatchSetInput{
		Patches: []model.FilePatchJSON{{Op: "create", Path: "x.txt", Content: str("x")}},
	}, patchgate.Options{Workdir: dir, Config: &config.Override{EnableSnapshot: config.Bool(false)}})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.SnapshotPath)
	assert.NoDirExists(t, filepath.Join(dir, config.StateDir, "snapshots"))
}

func TestRun_StateDirIsProtected(t *testing.T) {
	dir := t.TempDir()
	res, err := patchgate.Run(context.Background(), model.PatchSetInput{
		Patches: []model.FilePatchJSON{{Op: "create", Path: ".patchgate/audit.log", Content: str("")}},
	}, patchgate.Options{
		Workdir: dir,
		Config:  &config.Override{ReplaceBlocklist: true},
	})
	require.NoError(t, err)
	require.Len(t, res.Blocked, 1)
	assert.Contains(t, res.Blocked[0].Reason, ".patchgate/**")
}

func TestRun_ProtectedDirectoryCannotBeMoved(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".git/HEAD", "ref: main")
	writeFile(t, dir, "node_modules/x/index.js", "js")
	writeFile(t, dir, ".patchgate/audit.log", "")

	res, err := patchgate.Run(context.Background(), model.PatchSetInput{
		Patches: []model.FilePatchJSON{
			{Op: "rename", Path: ".git", NewPath: "stolen"},
			{Op: "delete", Path: ".git"},
			{Op: "rename", Path: "node_modules", NewPath: "nm"},
			{Op: "rename", Path: ".patchgate", NewPath: "x"},
		},
	}, patchgate.Options{
		Workdir: dir,
		Config:  &config.Override{EnableSnapshot: config.Bool(false)},
	})
	require.NoError(t, err)
	assert.Len(t, res.Blocked, 4)
	assert.Empty(t, res.Applied)
	assert.Equal(t, "ref: main", readFile(t, dir, ".git/HEAD"))
	assert.NoDirExists(t, filepath.Join(dir, "stolen"))
	assert.NoDirExists(t, filepath.Join(dir, "nm"))
	assert.NoDirExists(t, filepath.Join(dir, "x"))
}

func TestRun_DirectoryRenameFailsPerPatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "certs/server.pem", "secret")

	res, err := patchgate.Run(context.Background(), model.PatchSetInput{
		Patches: []model.FilePatchJSON{
			{Op: "rename", Path: "certs", NewPath: "public"},
			{Op: "create", Path: "ok.txt", Content: str("ok")},
		},
	}, patchgate.Options{
		Workdir: dir,
		Config:  &config.Override{EnableSnapshot: config.Bool(false)},
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "certs", res.Errors[0].Path)
	assert.Equal(t, []string{"ok.txt"}, res.Applied)
	assert.Equal(t, "secret", readFile(t, dir, "certs/server.pem"))
}

func TestRun_PerCallBlocklist(t *testing.T) {
	dir := t.TempDir()
	res, err := patchgate.Run(context.Background(), model.PatchSetInput{
		Patches:   []model.FilePatchJSON{{Op: "create", Path: "db/schema.sql", Content: str("x")}},
		Blocklist: []string{"*.sql"},
	}, patchgate.Options{Workdir: dir})
	require.NoError(t, err)
	assert.Len(t, res.Blocked, 1)
	assert.NoFileExists(t, filepath.Join(dir, "db", "schema.sql"))
}

func TestRun_AuditSinkFailureIsOnlyAWarning(t *testing.T) {
	dir := t.TempDir()
	failing := recordFunc(func(context.Context, *model.AuditEntry) error {
		return errors.New("disk full")
	})
	res, err := patchgate.Run(context.Background(), model.PatchSetInput{
		Patches: []model.FilePatchJSON{{Op: "create", Path: "x.txt", Content: str("x")}},
	}, patchgate.Options{Workdir: dir, Audit: failing})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestRun_CustomSinkReceivesEntry(t *testing.T) {
	var got *model.AuditEntry
	sink := recordFunc(func(_ context.Context, e *model.AuditEntry) error {
		got = e
		return nil
	})
	_, err := patchgate.Run(context.Background(), model.PatchSetInput{
		Source:  "agent",
		Patches: []model.FilePatchJSON{{Op: "create", Path: "x.txt", Content: str("x")}},
	}, patchgate.Options{Workdir: t.TempDir(), Audit: sink})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "agent", got.Source)
}

func TestRun_InvalidPatchIsScopedToItself(t *testing.T) {
	dir := t.TempDir()
	res, err := patchgate.Run(context.Background(), model.PatchSetInput{
		Patches: []model.FilePatchJSON{
			{Op: "create", Path: "no-content.txt"},
			{Op: "create", Path: "ok.txt", Content: str("ok")},
		},
	}, patchgate.Options{Workdir: dir})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, []string{"ok.txt"}, res.Applied)
	require.Len(t, res.Errors, 1)
	assert.True(t, strings.Contains(res.Errors[0].Message, "missing content"))
}

func TestPreview_WritesNothing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "one\n")

	pr, err := patchgate.Preview(context.Background(), model.PatchSetInput{
		Patches: []model.FilePatchJSON{
			{Op: "update", Path: "a.txt", Content: str("two\n")},
			{Op: "delete", Path: "../x"},
		},
	}, patchgate.Options{Workdir: dir})
	require.NoError(t, err)
	require.Len(t, pr.Diffs, 1)
	assert.Contains(t, pr.Diffs[0].Text, "-one")
	require.Len(t, pr.Blocked, 1)
	assert.Contains(t, pr.Blocked[0].Reason, "path traversal detected")
	assert.Equal(t, "one\n", readFile(t, dir, "a.txt"))
	assert.NoDirExists(t, filepath.Join(dir, config.StateDir))
}

func TestPreview_AllowedExcludesBlocked(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkg"), 0755))
	res, err := patchgate.Preview(context.Background(), model.PatchSetInput{
		Patches: []model.FilePatchJSON{
			{Op: "create", Path: ".env", Content: str("x")},
			{Op: "update", Path: "pkg", Content: str("x")},
			{Op: "create", Path: "a.txt", Content: str("a")},
		},
	}, patchgate.Options{Workdir: dir})
	require.NoError(t, err)
	require.Len(t, res.Allowed, 2)
	assert.Equal(t, "pkg", res.Allowed[0].Target())
	assert.Equal(t, "a.txt", res.Allowed[1].Target())
	assert.Contains(t, res.Diffs[0].Text, "[!] ERROR")
	assert.Len(t, res.Blocked, 1)
}

func TestRollback_MissingManifest(t *testing.T) {
	dir := t.TempDir()
	err := patchgate.Rollback(context.Background(), filepath.Join(dir, "nowhere"), patchgate.Options{Workdir: dir})
	assert.True(t, errors.Is(err, errclass.ErrManifestMissing))
}

func TestCreatePatchSet(t *testing.T) {
	in := patchgate.CreatePatchSet([]patchgate.File{
		{Path: "a.go", Content: "package a", Reason: "r"},
		{Path: "b.go", Content: ""},
	}, "gpt")
	assert.Equal(t, "gpt", in.Source)
	require.Len(t, in.Patches, 2)
	assert.Equal(t, "update", in.Patches[0].Op)
	assert.Equal(t, "package a", *in.Patches[0].Content)
	require.NotNil(t, in.Patches[1].Content)
	assert.Equal(t, "", *in.Patches[1].Content)
	require.NoError(t, in.Validate())
}
