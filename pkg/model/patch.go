package model

import (
	"github.com/patchgate/patchgate/pkg/errclass"
)

// Patch is one proposed file mutation. The concrete variants are Create,
// Update, Delete, Rename and Invalid; each carries exactly the fields its
// operation needs.
type Patch interface {
	// Op returns the operation tag.
	Op() Op
	// Target returns the path the patch acts on (the source for renames).
	Target() string
	// Destination returns the rename destination, or "" for other variants.
	Destination() string
	// Rationale returns the free-text reason supplied by the agent.
	Rationale() string

	isPatch()
}

// Create writes a new file.
type Create struct {
	Path    string
	Content string
	Reason  string
}

// Update replaces the content of a file.
type Update struct {
	Path    string
	Content string
	Reason  string
}

// Delete removes a file.
type Delete struct {
	Path   string
	Reason string
}

// Rename moves a file to NewPath.
type Rename struct {
	Path    string
	NewPath string
	Reason  string
}

// Invalid holds a patch that could not be built into one of the variants
// above. It still flows through policy (its paths are checked like any
// other) and surfaces as a per-patch error when applied.
type Invalid struct {
	RawOp   string
	Path    string
	NewPath string
	Reason  string
	Err     error
}

func (p Create) Op() Op              { return OpCreate }
func (p Create) Target() string      { return p.Path }
func (p Create) Destination() string { return "" }
func (p Create) Rationale() string   { return p.Reason }
func (Create) isPatch()              {}

func (p Update) Op() Op              { return OpUpdate }
func (p Update) Target() string      { return p.Path }
func (p Update) Destination() string { return "" }
func (p Update) Rationale() string   { return p.Reason }
func (Update) isPatch()              {}

func (p Delete) Op() Op              { return OpDelete }
func (p Delete) Target() string      { return p.Path }
func (p Delete) Destination() string { return "" }
func (p Delete) Rationale() string   { return p.Reason }
func (Delete) isPatch()              {}

func (p Rename) Op() Op              { return OpRename }
func (p Rename) Target() string      { return p.Path }
func (p Rename) Destination() string { return p.NewPath }
func (p Rename) Rationale() string   { return p.Reason }
func (Rename) isPatch()              {}

func (p Invalid) Op() Op         { return Op(p.RawOp) }
func (p Invalid) Target() string { return p.Path }
func (p Invalid) Destination() string {
	if Op(p.RawOp) == OpRename {
		return p.NewPath
	}
	return ""
}
func (p Invalid) Rationale() string { return p.Reason }
func (Invalid) isPatch()            {}

// FilePatchJSON is the wire form of a patch.
type FilePatchJSON struct {
	Op      string  `json:"op"`
	Path    string  `json:"path"`
	NewPath string  `json:"newPath,omitempty"`
	Content *string `json:"content,omitempty"`
	Reason  string  `json:"reason,omitempty"`
}

// Build converts the wire form into a Patch variant. It never fails: input
// that does not satisfy its variant's required fields becomes Invalid.
func (f FilePatchJSON) Build() Patch {
	switch Op(f.Op) {
	case OpCreate, OpUpdate:
		if f.Content == nil {
			return Invalid{RawOp: f.Op, Path: f.Path, Reason: f.Reason,
				Err: errclass.ErrMissingContent.WithMessagef("missing content for %s patch", f.Op)}
		}
		if Op(f.Op) == OpCreate {
			return Create{Path: f.Path, Content: *f.Content, Reason: f.Reason}
		}
		return Update{Path: f.Path, Content: *f.Content, Reason: f.Reason}
	case OpDelete:
		return Delete{Path: f.Path, Reason: f.Reason}
	case OpRename:
		if f.NewPath == "" {
			return Invalid{RawOp: f.Op, Path: f.Path, Reason: f.Reason,
				Err: errclass.ErrMissingNewPath.WithMessage("missing newPath for rename")}
		}
		return Rename{Path: f.Path, NewPath: f.NewPath, Reason: f.Reason}
	default:
		return Invalid{RawOp: f.Op, Path: f.Path, NewPath: f.NewPath, Reason: f.Reason,
			Err: errclass.ErrUnknownOp.WithMessagef("unknown patch operation %q", f.Op)}
	}
}

// ToJSON returns the wire form of p.
func ToJSON(p Patch) FilePatchJSON {
	out := FilePatchJSON{
		Op:      string(p.Op()),
		Path:    p.Target(),
		NewPath: p.Destination(),
		Reason:  p.Rationale(),
	}
	switch v := p.(type) {
	case Create:
		out.Content = &v.Content
	case Update:
		out.Content = &v.Content
	}
	return out
}
