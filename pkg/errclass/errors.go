// Package errclass defines stable, machine-readable error classes for PatchGate.
package errclass

import "fmt"

// PGError is a stable, machine-readable error class.
type PGError struct {
	Code    string
	Message string
}

func (e *PGError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on Code only, so errors.Is(err, ErrMissingFile) holds for any
// message attached with WithMessage.
func (e *PGError) Is(target error) bool {
	t, ok := target.(*PGError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new PGError with the same Code but a specific message.
func (e *PGError) WithMessage(msg string) *PGError {
	return &PGError{Code: e.Code, Message: msg}
}

// WithMessagef returns a new PGError with a formatted message.
func (e *PGError) WithMessagef(format string, args ...any) *PGError {
	return &PGError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Policy classes. These never escape the policy engine as Go errors; their
// messages become PolicyViolation reasons.
var (
	ErrPathTraversal = &PGError{Code: "E_PATH_TRAVERSAL"}
	ErrAbsolutePath  = &PGError{Code: "E_ABSOLUTE_PATH"}
	ErrEmptyPath     = &PGError{Code: "E_EMPTY_PATH"}
	ErrPolicyBlocked = &PGError{Code: "E_POLICY_BLOCKED"}
)

// Per-patch apply classes.
var (
	ErrMissingContent = &PGError{Code: "E_MISSING_CONTENT"}
	ErrMissingNewPath = &PGError{Code: "E_MISSING_NEW_PATH"}
	ErrUnknownOp      = &PGError{Code: "E_UNKNOWN_OP"}
	ErrMissingFile    = &PGError{Code: "E_MISSING_FILE"}
)

// Batch-fatal classes.
var (
	ErrSnapshotFailed   = &PGError{Code: "E_SNAPSHOT_FAILED"}
	ErrManifestMissing  = &PGError{Code: "E_MANIFEST_MISSING"}
	ErrManifestCorrupt  = &PGError{Code: "E_MANIFEST_CORRUPT"}
	ErrAuditChainBroken = &PGError{Code: "E_AUDIT_CHAIN_BROKEN"}
	ErrWorkdirRequired  = &PGError{Code: "E_WORKDIR_REQUIRED"}
	ErrPatchSetInvalid  = &PGError{Code: "E_PATCHSET_INVALID"}
)
