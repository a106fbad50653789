package patch

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrMalformedPatch is returned when patch text cannot be parsed.
	ErrMalformedPatch = errors.New("malformed patch")

	// ErrContextMismatch is returned when a hunk does not fit the text it is applied to.
	ErrContextMismatch = errors.New("patch does not apply")
)

var hunkHeader = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

type hunk struct {
	oldStart, oldLen int
	newStart, newLen int
	lines            []hunkLine
}

type hunkLine struct {
	op   byte // ' ', '-' or '+'
	text string
}

// Apply applies a single-file unified diff to previous and returns the new text.
// An empty patch returns previous unchanged.
func Apply(previous, patch string) (string, error) {
	hunks, err := parse(patch)
	if err != nil {
		return "", err
	}
	if len(hunks) == 0 {
		return previous, nil
	}

	old := rawLines(previous)
	out := make([]string, 0, len(old))
	cursor := 0

	for i, h := range hunks {
		start := h.oldStart - 1
		if h.oldLen == 0 {
			start = h.oldStart
		}
		if start < cursor || start > len(old) {
			return "", fmt.Errorf("%w: hunk %d starts at line %d", ErrContextMismatch, i+1, h.oldStart)
		}
		out = append(out, old[cursor:start]...)

		pos := start
		for _, l := range h.lines {
			switch l.op {
			case ' ', '-':
				if pos >= len(old) || old[pos] != l.text {
					return "", fmt.Errorf("%w: hunk %d differs at line %d", ErrContextMismatch, i+1, pos+1)
				}
				if l.op == ' ' {
					out = append(out, l.text)
				}
				pos++
			case '+':
				out = append(out, l.text)
			}
		}
		cursor = pos
	}
	out = append(out, old[cursor:]...)
	return strings.Join(out, ""), nil
}

// parse reads the hunks of a unified diff. File headers and other preamble lines
// before the first hunk are ignored.
func parse(patch string) ([]hunk, error) {
	if patch == "" {
		return nil, nil
	}

	var (
		hunks []hunk
		cur   *hunk
	)
	for _, line := range rawLines(patch) {
		if m := hunkHeader.FindStringSubmatch(line); m != nil {
			if err := checkCounts(cur); err != nil {
				return nil, err
			}
			hunks = append(hunks, hunk{
				oldStart: atoi(m[1], 0),
				oldLen:   atoi(m[2], 1),
				newStart: atoi(m[3], 0),
				newLen:   atoi(m[4], 1),
			})
			cur = &hunks[len(hunks)-1]
			continue
		}
		if cur == nil {
			continue
		}

		switch line[0] {
		case ' ', '-', '+':
			cur.lines = append(cur.lines, hunkLine{op: line[0], text: line[1:]})
		case '\n':
			// some tools drop the leading space of empty context lines
			cur.lines = append(cur.lines, hunkLine{op: ' ', text: "\n"})
		case '\\':
			if len(cur.lines) == 0 {
				return nil, fmt.Errorf("%w: marker without a preceding line", ErrMalformedPatch)
			}
			prev := &cur.lines[len(cur.lines)-1]
			prev.text = strings.TrimSuffix(prev.text, "\n")
		default:
			return nil, fmt.Errorf("%w: unexpected line %q", ErrMalformedPatch, strings.TrimSuffix(line, "\n"))
		}
	}
	if err := checkCounts(cur); err != nil {
		return nil, err
	}
	return hunks, nil
}

func checkCounts(h *hunk) error {
	if h == nil {
		return nil
	}
	var oldN, newN int
	for _, l := range h.lines {
		switch l.op {
		case ' ':
			oldN++
			newN++
		case '-':
			oldN++
		case '+':
			newN++
		}
	}
	if oldN != h.oldLen || newN != h.newLen {
		return fmt.Errorf("%w: hunk -%d,%d +%d,%d has %d old and %d new lines",
			ErrMalformedPatch, h.oldStart, h.oldLen, h.newStart, h.newLen, oldN, newN)
	}
	return nil
}

func atoi(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
