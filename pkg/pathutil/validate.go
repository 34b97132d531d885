// Package pathutil provides lexical path checks for patch targets.
//
// Nothing in this package touches the filesystem: every answer is derived
// from the path string alone, so the policy engine can stay pure.
package pathutil

import (
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/patchgate/patchgate/pkg/errclass"
)

var windowsVolume = regexp.MustCompile(`^[a-zA-Z]:([\\/]|$)`)

// Normalize returns the cleaned, slash-separated, NFC-normalized form of p.
// Backslashes are treated as separators so that Windows-style input cannot
// smuggle a parent segment past the checks. An empty input stays empty.
func Normalize(p string) string {
	if p == "" {
		return ""
	}
	p = norm.NFC.String(p)
	p = strings.ReplaceAll(p, `\`, "/")
	return path.Clean(p)
}

// HasParentSegment reports whether the normalized form of p still climbs
// above its starting directory.
func HasParentSegment(p string) bool {
	for _, seg := range strings.Split(Normalize(p), "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// IsAbsolute reports whether p is absolute on any platform we care about:
// POSIX root, Windows drive letter, UNC share, or the host's own notion.
func IsAbsolute(p string) bool {
	if p == "" {
		return false
	}
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`) {
		return true
	}
	if windowsVolume.MatchString(p) {
		return true
	}
	return filepath.IsAbs(p)
}

// CheckRelative validates that p is a non-empty relative path that stays
// inside its root. Traversal is checked before absoluteness.
func CheckRelative(p string) error {
	if p == "" {
		return errclass.ErrEmptyPath.WithMessage("empty path")
	}
	if HasParentSegment(p) {
		return errclass.ErrPathTraversal.WithMessagef("path traversal detected: %q", p)
	}
	if IsAbsolute(p) {
		return errclass.ErrAbsolutePath.WithMessagef("absolute path not allowed: %q", p)
	}
	return nil
}

// Base returns the final component of the normalized path.
func Base(p string) string {
	return path.Base(Normalize(p))
}

// Join resolves the relative slash path rel under root using host separators.
// Callers must have validated rel with CheckRelative (or obtained it from a
// source that did).
func Join(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(rel))
}
