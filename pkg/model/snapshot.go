package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// SnapshotID is the unique identifier for a snapshot: <unix_ms>-<rand8hex>.
// The millisecond prefix keeps lexical order equal to creation order.
type SnapshotID string

// NewSnapshotID generates a new unique snapshot ID.
func NewSnapshotID() SnapshotID {
	return newSnapshotIDAt(time.Now())
}

func newSnapshotIDAt(t time.Time) SnapshotID {
	var randBytes [4]byte
	if _, err := rand.Read(randBytes[:]); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return SnapshotID(fmt.Sprintf("%013d-%s", t.UnixMilli(), hex.EncodeToString(randBytes[:])))
}

// String returns the full snapshot ID as string.
func (id SnapshotID) String() string {
	return string(id)
}

// ManifestEntry describes one snapshotted patch.
type ManifestEntry struct {
	Op      Op     `json:"op"`
	Path    string `json:"path"`
	NewPath string `json:"newPath,omitempty"`
	// SHA256 is the digest of the stored copy; empty when nothing was copied.
	SHA256 HashValue `json:"sha256,omitempty"`
}

// Manifest is the durable record of a snapshot. Rollback consults only the
// manifest; entries are in the order of the originating patch set.
type Manifest struct {
	ID        SnapshotID      `json:"id"`
	CreatedAt time.Time       `json:"createdAt"`
	Files     []ManifestEntry `json:"files"`
	// Checksum is the SHA-256 of the canonical manifest without this field.
	// Manifests written by hand may omit it.
	Checksum HashValue `json:"checksum,omitempty"`
}

// EntryFor returns the manifest entry describing p.
func EntryFor(p Patch) ManifestEntry {
	e := ManifestEntry{Op: p.Op(), Path: p.Target()}
	if p.Op() == OpRename {
		e.NewPath = p.Destination()
	}
	return e
}
