// Package audit records one hash-chained JSONL line per completed run.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/patchgate/patchgate/internal/integrity"
	"github.com/patchgate/patchgate/pkg/config"
	"github.com/patchgate/patchgate/pkg/model"
)

// LogFile is the audit log name inside the state directory.
const LogFile = "audit.log"

// maxLineSize bounds a single JSONL record. Entries carry per-path lists,
// so lines can be far longer than bufio's 64 KiB default.
const maxLineSize = 16 << 20

// Sink receives one entry per completed run.
type Sink interface {
	Record(ctx context.Context, entry *model.AuditEntry) error
}

// Path returns the audit log path for workdir.
func Path(workdir string) string {
	return filepath.Join(workdir, config.StateDir, LogFile)
}

// FileAppender appends audit entries to a JSONL file with hash chain.
type FileAppender struct {
	path string
	mu   sync.Mutex
}

// NewFileAppender creates a new FileAppender.
func NewFileAppender(path string) *FileAppender {
	return &FileAppender{path: path}
}

// Path returns the log file path.
func (a *FileAppender) Path() string { return a.path }

// Record implements Sink.
func (a *FileAppender) Record(_ context.Context, entry *model.AuditEntry) error {
	return a.Append(entry)
}

// Append links entry to the last record in the log, computes its hash and
// appends it as one line. PrevHash and RecordHash are set on entry.
func (a *FileAppender) Append(entry *model.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}

	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	if err := lockFile(file); err != nil {
		return fmt.Errorf("flock audit log: %w", err)
	}
	defer unlockFile(file)

	prevHash, err := lastRecordHash(file)
	if err != nil {
		return fmt.Errorf("get last record hash: %w", err)
	}
	entry.PrevHash = prevHash

	recordHash, err := integrity.AuditRecordHash(entry)
	if err != nil {
		return fmt.Errorf("compute record hash: %w", err)
	}
	entry.RecordHash = recordHash

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync audit log: %w", err)
	}
	return nil
}

func lastRecordHash(file *os.File) (model.HashValue, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("seek to start: %w", err)
	}

	var lastHash model.HashValue
	err := scanEntries(file, func(e *model.AuditEntry) {
		lastHash = e.RecordHash
	})
	return lastHash, err
}

// scanEntries calls fn for every parsable line of r. Malformed lines are
// skipped.
func scanEntries(r io.Reader, fn func(*model.AuditEntry)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		var e model.AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		fn(&e)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan audit log: %w", err)
	}
	return nil
}
