// Package patch produces and applies unified diffs between whole-text snapshots.
//
// Unified output follows the familiar `diff -u` layout behind an Index
// preamble, the way jsdiff's createPatch writes it:
//
//	Index: main.go
//	===================================================================
//	--- main.go	previous
//	+++ main.go	current
//	@@ -1,3 +1,3 @@
//	 package main
//	-var x = 1
//	+var x = 2
//
// A final line without a trailing newline is followed by the standard
// "\ No newline at end of file" marker, so Apply reproduces the exact text.
package patch

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	// PreviousLabel is the header label of the old side of every patch.
	PreviousLabel = "previous"
	// CurrentLabel is the header label of the new side of every patch.
	CurrentLabel = "current"
	// DefaultContext is the number of unchanged lines around each hunk.
	DefaultContext = 3

	noNewlineMarker = `\ No newline at end of file`
	indexSeparator  = "==================================================================="
)

// Stats summarizes the size of a change.
type Stats struct {
	LinesAdded   int `json:"lines_added"`
	LinesRemoved int `json:"lines_removed"`
	CharsAdded   int `json:"chars_added"`
	CharsRemoved int `json:"chars_removed"`
}

// Unified returns the unified diff transforming previous into current, using name
// as the file name on both header lines. Identical inputs produce an empty string.
func Unified(name, previous, current string) string {
	if previous == current {
		return ""
	}
	// Writing into an in-memory buffer cannot fail.
	body, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        diffLines(previous),
		B:        diffLines(current),
		FromFile: name,
		FromDate: PreviousLabel,
		ToFile:   name,
		ToDate:   CurrentLabel,
		Context:  DefaultContext,
	})
	return "Index: " + name + "\n" + indexSeparator + "\n" + body
}

// Measure counts the lines and characters added and removed between two snapshots.
func Measure(previous, current string) Stats {
	var s Stats
	if previous == current {
		return s
	}

	m := difflib.NewMatcher(diffLines(previous), diffLines(current))
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'r':
			s.LinesRemoved += op.I2 - op.I1
			s.LinesAdded += op.J2 - op.J1
		case 'd':
			s.LinesRemoved += op.I2 - op.I1
		case 'i':
			s.LinesAdded += op.J2 - op.J1
		}
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(previous, current, false))
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			s.CharsAdded += utf8.RuneCountInString(d.Text)
		case diffmatchpatch.DiffDelete:
			s.CharsRemoved += utf8.RuneCountInString(d.Text)
		}
	}
	return s
}

// DisplayName returns the last path segment of a document identifier.
// Identifiers without a separator are returned whole; an empty last segment
// (trailing slash) yields "file".
func DisplayName(id string) string {
	p := id
	if strings.Contains(p, "://") {
		if u, err := url.Parse(p); err == nil && u.Path != "" {
			p = u.Path
		}
	}
	p = strings.ReplaceAll(p, `\`, "/")

	i := strings.LastIndex(p, "/")
	if i < 0 {
		if p == "" {
			return "file"
		}
		return p
	}
	if name := p[i+1:]; name != "" {
		return name
	}
	return "file"
}

// diffLines splits text into newline-terminated lines for the matcher. A final
// unterminated line carries the no-newline marker so it never compares equal to
// its terminated twin.
func diffLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	last := len(lines) - 1
	if lines[last] == "" {
		return lines[:last]
	}
	lines[last] += "\n" + noNewlineMarker + "\n"
	return lines
}

// rawLines splits text into lines keeping terminators; the last line may be unterminated.
func rawLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
