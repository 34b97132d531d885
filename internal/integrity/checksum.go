// Package integrity computes the checksums that protect snapshot manifests,
// stored file copies and the audit hash chain.
package integrity

import (
	"fmt"

	"github.com/patchgate/patchgate/pkg/jsonutil"
	"github.com/patchgate/patchgate/pkg/model"
)

// ManifestChecksum computes the SHA-256 of the canonical manifest.
// Excludes: checksum
func ManifestChecksum(m *model.Manifest) (model.HashValue, error) {
	c := &model.Manifest{
		ID:        m.ID,
		CreatedAt: m.CreatedAt,
		Files:     m.Files,
		// Checksum: excluded
	}
	sum, err := jsonutil.Digest(c)
	if err != nil {
		return "", fmt.Errorf("manifest checksum: %w", err)
	}
	return model.HashValue(sum), nil
}

// AuditRecordHash computes the SHA-256 of the canonical audit entry.
// Excludes: recordHash
func AuditRecordHash(e *model.AuditEntry) (model.HashValue, error) {
	c := *e
	c.RecordHash = ""
	sum, err := jsonutil.Digest(&c)
	if err != nil {
		return "", fmt.Errorf("audit record hash: %w", err)
	}
	return model.HashValue(sum), nil
}
