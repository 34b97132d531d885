package model

// HashValue is a SHA-256 hash stored as hex string.
type HashValue string

// Op identifies the kind of mutation a patch proposes.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpRename Op = "rename"
)

// Known reports whether op is one of the four supported operations.
func (op Op) Known() bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete, OpRename:
		return true
	}
	return false
}

// ReplacesState reports whether op destroys or replaces the current content
// of its target, which is what makes a pre-image worth keeping.
func (op Op) ReplacesState() bool {
	return op == OpUpdate || op == OpDelete || op == OpRename
}
