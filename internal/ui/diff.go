package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// RenderPatch colors a unified diff line by line. Without color the patch is
// returned byte for byte, so the output can be piped into apply.
func RenderPatch(patch string) string {
	if patch == "" || lipgloss.ColorProfile() == termenv.Ascii {
		return patch
	}
	lines := strings.SplitAfter(patch, "\n")
	var b strings.Builder
	for _, line := range lines {
		if line == "" {
			continue
		}
		body := strings.TrimSuffix(line, "\n")
		nl := line[len(body):]
		switch {
		case strings.HasPrefix(body, "+++"), strings.HasPrefix(body, "---"),
			strings.HasPrefix(body, "Index: "), strings.HasPrefix(body, "==="):
			b.WriteString(headerStyle.Render(body))
		case strings.HasPrefix(body, "@@"):
			b.WriteString(hunkStyle.Render(body))
		case strings.HasPrefix(body, "+"):
			b.WriteString(addStyle.Render(body))
		case strings.HasPrefix(body, "-"):
			b.WriteString(delStyle.Render(body))
		case strings.HasPrefix(body, `\`):
			b.WriteString(noteStyle.Render(body))
		default:
			b.WriteString(body)
		}
		b.WriteString(nl)
	}
	return b.String()
}
