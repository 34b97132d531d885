// Package policy decides which patches of a batch may be applied.
//
// The engine is pure: it reads no files and holds no state, so the same
// patches and configuration always yield the same partition.
package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar"

	"github.com/patchgate/patchgate/pkg/config"
	"github.com/patchgate/patchgate/pkg/errclass"
	"github.com/patchgate/patchgate/pkg/model"
	"github.com/patchgate/patchgate/pkg/pathutil"
)

// Matcher reports whether name matches the glob pattern. A malformed
// pattern must report false.
type Matcher func(pattern, name string) bool

// GlobMatch is the default Matcher. A single star stays within one path
// segment, a double star spans segments, and leading dots get no special
// treatment, so ".env" is matched by ".env" and "*.pem" matches ".key.pem".
// Engine also lets a trailing "/**" cover the directory itself.
func GlobMatch(pattern, name string) bool {
	ok, err := doublestar.Match(pattern, name)
	return err == nil && ok
}

// Violation is a blocked patch and the reason it was blocked.
type Violation struct {
	Patch  model.Patch
	Reason string
}

// Result partitions a batch. Both lists keep the input order, and every
// input patch lands in exactly one of them.
type Result struct {
	Allowed []model.Patch
	Blocked []Violation
}

// BlockedPaths flattens the violations for reporting.
func (r Result) BlockedPaths() []model.BlockedPath {
	out := make([]model.BlockedPath, 0, len(r.Blocked))
	for _, v := range r.Blocked {
		out = append(out, model.BlockedPath{Path: v.Patch.Target(), Reason: v.Reason})
	}
	return out
}

// Engine checks patches against a blocklist.
type Engine struct {
	match Matcher
}

// NewEngine creates an engine. A nil matcher selects GlobMatch.
func NewEngine(match Matcher) *Engine {
	if match == nil {
		match = GlobMatch
	}
	return &Engine{match: match}
}

// Enforce classifies each patch against cfg.Blocklist plus extra. It never
// fails: every problem a patch can have is reported as a violation.
func (e *Engine) Enforce(patches []model.Patch, cfg config.PolicyConfig, extra []string) Result {
	blocklist := make([]string, 0, len(cfg.Blocklist)+len(extra))
	blocklist = append(blocklist, cfg.Blocklist...)
	blocklist = append(blocklist, extra...)

	res := Result{
		Allowed: []model.Patch{},
		Blocked: []Violation{},
	}
	for _, p := range patches {
		if reason := e.check(p, blocklist); reason != "" {
			res.Blocked = append(res.Blocked, Violation{Patch: p, Reason: reason})
			continue
		}
		res.Allowed = append(res.Allowed, p)
	}
	return res
}

// Enforce runs the default engine.
func Enforce(patches []model.Patch, cfg config.PolicyConfig, extra []string) Result {
	return NewEngine(nil).Enforce(patches, cfg, extra)
}

func (e *Engine) check(p model.Patch, blocklist []string) string {
	if reason := e.checkPath(p.Target(), blocklist); reason != "" {
		return reason
	}
	if p.Op() == model.OpRename {
		// A malformed rename has no destination; the executor reports it.
		if dst := p.Destination(); dst != "" {
			if reason := e.checkPath(dst, blocklist); reason != "" {
				return "rename destination: " + reason
			}
		}
	}
	return ""
}

func (e *Engine) checkPath(p string, blocklist []string) string {
	if err := pathutil.CheckRelative(p); err != nil {
		var pgErr *errclass.PGError
		if errors.As(err, &pgErr) {
			return pgErr.Message
		}
		return err.Error()
	}
	if pattern, ok := e.firstMatch(p, blocklist); ok {
		return fmt.Sprintf("blocked by policy pattern %q: %q", pattern, p)
	}
	return ""
}

func (e *Engine) firstMatch(p string, blocklist []string) (string, bool) {
	normalized := pathutil.Normalize(p)
	base := pathutil.Base(p)
	for _, pattern := range blocklist {
		if e.matches(pattern, normalized) || e.matches(pattern, base) {
			return pattern, true
		}
	}
	return "", false
}

// matches treats "dir/**" as covering "dir" too, so a protected directory
// cannot be renamed or deleted as a whole.
func (e *Engine) matches(pattern, name string) bool {
	if e.match(pattern, name) {
		return true
	}
	dir, ok := strings.CutSuffix(pattern, "/**")
	return ok && dir != "" && e.match(dir, name)
}
