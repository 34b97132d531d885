// Package snapshot keeps pre-images of files a batch is about to touch and
// restores them on rollback.
//
// Layout under the working directory:
//
//	.patchgate/snapshots/<id>/manifest.json
//	.patchgate/snapshots/<id>/files/<relpath>
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/patchgate/patchgate/internal/integrity"
	"github.com/patchgate/patchgate/pkg/config"
	"github.com/patchgate/patchgate/pkg/errclass"
	"github.com/patchgate/patchgate/pkg/fsutil"
	"github.com/patchgate/patchgate/pkg/logging"
	"github.com/patchgate/patchgate/pkg/model"
	"github.com/patchgate/patchgate/pkg/pathutil"
)

const (
	// ManifestFile is the manifest name inside a snapshot directory.
	ManifestFile = "manifest.json"
	// FilesDir holds the stored copies inside a snapshot directory.
	FilesDir = "files"
)

// Store creates and restores snapshots for one working directory.
type Store struct {
	workdir string
	logger  *logging.Logger
	now     func() time.Time
}

// NewStore creates a store rooted at workdir. A nil logger discards output.
func NewStore(workdir string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Store{workdir: workdir, logger: logger, now: time.Now}
}

// Workdir returns the directory patches are applied to.
func (s *Store) Workdir() string { return s.workdir }

// Root returns the directory holding all snapshots.
func (s *Store) Root() string {
	return filepath.Join(s.workdir, config.StateDir, "snapshots")
}

// Dir returns the directory of snapshot id.
func (s *Store) Dir(id model.SnapshotID) string {
	return filepath.Join(s.Root(), string(id))
}

// Save copies the current content of every existing file the patches will
// replace, then writes the manifest. Every patch is listed in the manifest
// in order, including creates. A create over an existing file keeps that
// file too, so rollback can put it back. On failure nothing is left behind.
func (s *Store) Save(patches []model.Patch) (string, error) {
	id := model.NewSnapshotID()
	dir := s.Dir(id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errclass.ErrSnapshotFailed.WithMessagef("create snapshot dir: %v", err)
	}

	manifest := &model.Manifest{
		ID:        id,
		CreatedAt: s.now().UTC(),
		Files:     make([]model.ManifestEntry, 0, len(patches)),
	}

	stored := make(map[string]model.HashValue)
	for _, p := range patches {
		entry := model.EntryFor(p)
		if p.Op().Known() {
			digest, err := s.storeCopy(dir, p.Target(), stored)
			if err != nil {
				os.RemoveAll(dir)
				return "", errclass.ErrSnapshotFailed.WithMessagef("snapshot %s: %v", p.Target(), err)
			}
			entry.SHA256 = digest
		}
		manifest.Files = append(manifest.Files, entry)
	}

	checksum, err := integrity.ManifestChecksum(manifest)
	if err != nil {
		os.RemoveAll(dir)
		return "", errclass.ErrSnapshotFailed.WithMessagef("compute checksum: %v", err)
	}
	manifest.Checksum = checksum

	if err := writeManifest(filepath.Join(dir, ManifestFile), manifest); err != nil {
		os.RemoveAll(dir)
		return "", errclass.ErrSnapshotFailed.WithMessagef("write manifest: %v", err)
	}

	s.logger.Debug("snapshot saved", map[string]any{
		"snapshot": string(id),
		"entries":  len(manifest.Files),
		"copies":   len(stored),
	})
	return dir, nil
}

// storeCopy copies rel into the snapshot if it exists and returns the
// digest of the copy, or "" when there was nothing to keep.
func (s *Store) storeCopy(dir, rel string, stored map[string]model.HashValue) (model.HashValue, error) {
	if err := pathutil.CheckRelative(rel); err != nil {
		return "", err
	}
	key := pathutil.Normalize(rel)
	if digest, ok := stored[key]; ok {
		return digest, nil
	}

	src := pathutil.Join(s.workdir, key)
	info, err := os.Stat(src)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s is not a regular file", rel)
	}

	dst := pathutil.Join(filepath.Join(dir, FilesDir), key)
	if err := fsutil.CopyFile(src, dst); err != nil {
		return "", err
	}
	digest, err := integrity.FileDigest(dst)
	if err != nil {
		return "", err
	}
	stored[key] = digest
	return digest, nil
}

func writeManifest(path string, m *model.Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.AtomicWrite(path, data, 0644)
}

// LoadManifest reads and checks the manifest of the snapshot in dir.
func LoadManifest(dir string) (*model.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errclass.ErrManifestMissing.WithMessagef("no %s found in %s, cannot rollback", ManifestFile, dir)
		}
		return nil, errclass.ErrManifestMissing.WithMessagef("read manifest: %v", err)
	}

	var m model.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errclass.ErrManifestMissing.WithMessagef("parse manifest: %v", err)
	}

	if m.Checksum != "" {
		computed, err := integrity.ManifestChecksum(&m)
		if err != nil {
			return nil, fmt.Errorf("compute checksum: %w", err)
		}
		if computed != m.Checksum {
			return nil, errclass.ErrManifestCorrupt.WithMessage("checksum mismatch")
		}
	}

	for i, e := range m.Files {
		if err := pathutil.CheckRelative(e.Path); err != nil {
			return nil, errclass.ErrManifestCorrupt.WithMessagef("entry %d: %v", i, err)
		}
		if e.NewPath != "" {
			if err := pathutil.CheckRelative(e.NewPath); err != nil {
				return nil, errclass.ErrManifestCorrupt.WithMessagef("entry %d: %v", i, err)
			}
		}
	}
	return &m, nil
}

// Rollback restores the working directory to the state recorded in the
// snapshot at dir. Nothing is touched unless the manifest loads. Entries
// are processed in order; a failing entry does not stop the others and all
// failures are returned together. Running it twice has the same effect as
// running it once.
//
// A rename is undone by restoring its source only; the destination file is
// left where the rename put it.
func (s *Store) Rollback(dir string) error {
	m, err := LoadManifest(dir)
	if err != nil {
		return err
	}

	var errs []error
	restored, removed := 0, 0
	for _, e := range m.Files {
		target := pathutil.Join(s.workdir, pathutil.Normalize(e.Path))
		copyPath := pathutil.Join(filepath.Join(dir, FilesDir), pathutil.Normalize(e.Path))

		hasCopy, err := fsutil.Exists(copyPath)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Path, err))
			continue
		}

		switch {
		case hasCopy:
			if err := restore(copyPath, target, e.SHA256); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", e.Path, err))
				continue
			}
			restored++
		case e.Op == model.OpCreate:
			if err := fsutil.RemoveIfExists(target); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", e.Path, err))
				continue
			}
			removed++
		}
	}

	s.logger.Info("snapshot rolled back", map[string]any{
		"snapshot": string(m.ID),
		"restored": restored,
		"removed":  removed,
		"failed":   len(errs),
	})
	if len(errs) > 0 {
		return fmt.Errorf("rollback %s: %w", m.ID, errors.Join(errs...))
	}
	return nil
}

func restore(copyPath, target string, want model.HashValue) error {
	if want != "" {
		ok, err := integrity.VerifyFile(copyPath, want)
		if err != nil {
			return err
		}
		if !ok {
			return errclass.ErrManifestCorrupt.WithMessage("stored copy does not match manifest")
		}
	}

	info, err := os.Stat(copyPath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(copyPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	return fsutil.AtomicWrite(target, data, info.Mode().Perm())
}
