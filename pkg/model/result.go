package model

// Pseudo-paths used for errors that do not belong to a single patch.
const (
	PseudoPathSnapshot = "<snapshot>"
	PseudoPathPolicy   = "<policy>"
)

// SkippedPath records a patch that was not attempted.
type SkippedPath struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// PathError records a patch whose mutation failed.
type PathError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// BlockedPath is the flattened form of a policy violation.
type BlockedPath struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// ApplyResult is the outcome of applying a list of patches.
type ApplyResult struct {
	Success      bool          `json:"success"`
	Applied      []string      `json:"applied"`
	Skipped      []SkippedPath `json:"skipped"`
	Errors       []PathError   `json:"errors"`
	SnapshotPath string        `json:"snapshotPath,omitempty"`
}

// NewApplyResult returns an empty result with non-nil slices, so that JSON
// output always carries arrays.
func NewApplyResult() *ApplyResult {
	return &ApplyResult{
		Applied: []string{},
		Skipped: []SkippedPath{},
		Errors:  []PathError{},
	}
}

// AddError records a failure for path.
func (r *ApplyResult) AddError(path string, err error) {
	r.Errors = append(r.Errors, PathError{Path: path, Message: err.Error()})
}

// Finish sets Success from the error list.
func (r *ApplyResult) Finish() {
	r.Success = len(r.Errors) == 0
}
