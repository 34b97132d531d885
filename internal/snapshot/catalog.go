package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/patchgate/patchgate/pkg/model"
)

// Info describes one snapshot on disk.
type Info struct {
	Dir      string
	Manifest *model.Manifest
}

// List returns every readable snapshot, newest first. Directories whose
// manifest is missing or corrupt are skipped.
func (s *Store) List() ([]*Info, error) {
	entries, err := os.ReadDir(s.Root())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshots directory: %w", err)
	}

	var infos []*Info
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(s.Root(), entry.Name())
		m, err := LoadManifest(dir)
		if err != nil {
			s.logger.Debug("skipping unreadable snapshot", map[string]any{"dir": dir, "error": err.Error()})
			continue
		}
		infos = append(infos, &Info{Dir: dir, Manifest: m})
	}

	// IDs start with a millisecond timestamp, so they break CreatedAt ties.
	slices.SortFunc(infos, func(a, b *Info) int {
		if c := b.Manifest.CreatedAt.Compare(a.Manifest.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(string(b.Manifest.ID), string(a.Manifest.ID))
	})
	return infos, nil
}

// Latest returns the newest readable snapshot.
func (s *Store) Latest() (*Info, error) {
	infos, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("no snapshots found in %s", s.Root())
	}
	return infos[0], nil
}

// Resolve maps a user reference to a snapshot directory. The reference may
// be a path to a snapshot directory, a full snapshot ID, or a unique ID
// prefix.
func (s *Store) Resolve(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty snapshot reference")
	}
	if info, err := os.Stat(ref); err == nil && info.IsDir() {
		return ref, nil
	}

	infos, err := s.List()
	if err != nil {
		return "", err
	}

	var matches []*Info
	for _, info := range infos {
		id := string(info.Manifest.ID)
		if id == ref {
			return info.Dir, nil
		}
		if strings.HasPrefix(id, ref) {
			matches = append(matches, info)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no snapshot found matching %q", ref)
	case 1:
		return matches[0].Dir, nil
	default:
		ids := make([]string, 0, len(matches))
		for _, m := range matches {
			ids = append(ids, string(m.Manifest.ID))
		}
		return "", fmt.Errorf("ambiguous reference %q matches multiple snapshots: %s", ref, strings.Join(ids, ", "))
	}
}
