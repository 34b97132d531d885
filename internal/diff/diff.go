// Package diff renders the textual previews shown before a batch is applied.
package diff

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/patchgate/patchgate/pkg/model"
)

// ContextLines is the number of unchanged lines kept around each hunk.
const ContextLines = 3

// Unified returns a unified diff of before and after for the file name.
// Identical inputs yield an empty string.
func Unified(name, before, after string) (string, error) {
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  ContextLines,
	}
	out, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return "", fmt.Errorf("unified diff %s: %w", name, err)
	}
	return out, nil
}

// LineCount returns the number of lines in s. A trailing newline does not
// start a new line.
func LineCount(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

// Summary groups a batch by operation for a one-screen overview.
type Summary struct {
	Created []string `json:"created"`
	Updated []string `json:"updated"`
	Deleted []string `json:"deleted"`
	Renamed []string `json:"renamed"`
	Invalid []string `json:"invalid"`
}

// Summarize builds a Summary of patches. Each list is sorted by path.
func Summarize(patches []model.Patch) *Summary {
	s := &Summary{}
	for _, p := range patches {
		switch v := p.(type) {
		case model.Create:
			s.Created = append(s.Created, v.Path)
		case model.Update:
			s.Updated = append(s.Updated, v.Path)
		case model.Delete:
			s.Deleted = append(s.Deleted, v.Path)
		case model.Rename:
			s.Renamed = append(s.Renamed, v.Path+" → "+v.NewPath)
		default:
			s.Invalid = append(s.Invalid, p.Target())
		}
	}
	for _, l := range [][]string{s.Created, s.Updated, s.Deleted, s.Renamed, s.Invalid} {
		sort.Strings(l)
	}
	return s
}

// Total returns the number of patches summarized.
func (s *Summary) Total() int {
	return len(s.Created) + len(s.Updated) + len(s.Deleted) + len(s.Renamed) + len(s.Invalid)
}

// FormatHuman returns a human-readable rendering of the summary.
func (s *Summary) FormatHuman() string {
	var sb strings.Builder

	section := func(title, marker string, paths []string) {
		if len(paths) == 0 {
			return
		}
		sb.WriteString(fmt.Sprintf("%s (%d):\n", title, len(paths)))
		for _, p := range paths {
			sb.WriteString(fmt.Sprintf("  %s %s\n", marker, p))
		}
		sb.WriteString("\n")
	}
	section("Created", "+", s.Created)
	section("Updated", "~", s.Updated)
	section("Deleted", "-", s.Deleted)
	section("Renamed", "→", s.Renamed)
	section("Invalid", "!", s.Invalid)

	if s.Total() == 0 {
		sb.WriteString("No changes.\n")
	}
	return sb.String()
}
