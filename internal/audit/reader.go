package audit

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"

	"github.com/patchgate/patchgate/internal/integrity"
	"github.com/patchgate/patchgate/pkg/errclass"
	"github.com/patchgate/patchgate/pkg/model"
)

// ReadAll returns every parsable entry of the log at path in file order.
// A missing log yields no entries.
func ReadAll(path string) ([]*model.AuditEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	var entries []*model.AuditEntry
	if err := scanEntries(file, func(e *model.AuditEntry) {
		entries = append(entries, e)
	}); err != nil {
		return nil, err
	}
	return entries, nil
}

// Recent returns up to n entries, newest first. n <= 0 returns all.
func Recent(path string, n int) ([]*model.AuditEntry, error) {
	entries, err := ReadAll(path)
	if err != nil {
		return nil, err
	}
	slices.Reverse(entries)
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

// VerifyChain recomputes every record hash and checks each entry links to
// the one before it. It returns the number of verified entries.
func VerifyChain(path string) (int, error) {
	entries, err := ReadAll(path)
	if err != nil {
		return 0, err
	}

	var prev model.HashValue
	for i, e := range entries {
		if e.PrevHash != prev {
			return i, errclass.ErrAuditChainBroken.WithMessagef("entry %d: prevHash does not match previous record", i+1)
		}
		computed, err := integrity.AuditRecordHash(e)
		if err != nil {
			return i, fmt.Errorf("entry %d: %w", i+1, err)
		}
		if computed != e.RecordHash {
			return i, errclass.ErrAuditChainBroken.WithMessagef("entry %d: record hash mismatch", i+1)
		}
		prev = e.RecordHash
	}
	return len(entries), nil
}
