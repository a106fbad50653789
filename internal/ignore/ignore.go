// Package ignore decides which document paths are excluded from change tracking.
//
// A RuleSet holds an ordered list of glob patterns. Patterns without a slash are
// anchored to a single path segment, so "node_modules" excludes every path that
// passes through a node_modules directory and "*.log" excludes every log file at
// any depth. Patterns containing a slash are matched against the whole path and
// support "**".
package ignore

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrBadPattern is returned by New when a pattern is not a valid glob.
var ErrBadPattern = errors.New("invalid ignore pattern")

// DefaultPatterns are the patterns applied when no configuration overrides them.
var DefaultPatterns = []string{
	"node_modules",
	".git",
	"dist",
	"build",
	".next",
	"coverage",
	"*.log",
	".env*",
}

// Matcher reports whether a document path is excluded.
type Matcher interface {
	Match(path string) bool
}

// MatcherFunc adapts a plain function to the Matcher interface.
type MatcherFunc func(path string) bool

// Match implements Matcher.
func (f MatcherFunc) Match(path string) bool { return f(path) }

// None is a Matcher that excludes nothing.
var None Matcher = MatcherFunc(func(string) bool { return false })

// RuleSet is an immutable, ordered set of ignore patterns.
type RuleSet struct {
	patterns []string
}

// New validates patterns and returns a RuleSet. Empty patterns are dropped.
func New(patterns []string) (*RuleSet, error) {
	rs := &RuleSet{patterns: make([]string, 0, len(patterns))}
	for _, p := range patterns {
		p = strings.TrimSpace(filepath.ToSlash(p))
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: %q", ErrBadPattern, p)
		}
		rs.patterns = append(rs.patterns, p)
	}
	return rs, nil
}

// Default returns a RuleSet built from DefaultPatterns.
func Default() *RuleSet {
	rs, err := New(DefaultPatterns)
	if err != nil {
		panic(err) // defaults are static
	}
	return rs
}

// Patterns returns a copy of the configured patterns in order.
func (rs *RuleSet) Patterns() []string {
	out := make([]string, len(rs.patterns))
	copy(out, rs.patterns)
	return out
}

// Match reports whether path matches any pattern in the set.
func (rs *RuleSet) Match(path string) bool {
	if rs == nil || len(rs.patterns) == 0 {
		return false
	}
	p := normalize(path)
	if p == "" {
		return false
	}
	segments := splitSegments(p)

	for _, pattern := range rs.patterns {
		if strings.Contains(pattern, "/") {
			if matchPath(pattern, p) {
				return true
			}
			continue
		}
		for _, seg := range segments {
			if ok, _ := doublestar.Match(pattern, seg); ok {
				return true
			}
		}
	}
	return false
}

// matchPath matches a slash-bearing pattern against the whole path, at any depth,
// and treats a matching directory prefix as covering everything below it.
func matchPath(pattern, p string) bool {
	pattern = strings.TrimPrefix(pattern, "/")
	candidates := []string{pattern, pattern + "/**"}
	if !strings.HasPrefix(pattern, "**/") {
		candidates = append(candidates, "**/"+pattern, "**/"+pattern+"/**")
	}
	for _, c := range candidates {
		if ok, _ := doublestar.Match(c, p); ok {
			return true
		}
	}
	return false
}

// normalize turns a file path or file URI into a slash-separated relative-looking path.
func normalize(path string) string {
	if strings.Contains(path, "://") {
		if u, err := url.Parse(path); err == nil && u.Path != "" {
			path = u.Path
		}
	}
	path = strings.ReplaceAll(filepath.ToSlash(path), `\`, "/")
	return strings.TrimLeft(path, "/")
}

func splitSegments(p string) []string {
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
