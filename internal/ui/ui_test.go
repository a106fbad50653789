package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

func TestRenderPatchPlain(t *testing.T) {
	DisableColor()

	patch := "--- a/x\n+++ b/x\n@@ -1 +1 @@\n-foo\n+bar\n\\ No newline at end of file\n"
	if got := RenderPatch(patch); got != patch {
		t.Errorf("RenderPatch() without color = %q, want input unchanged", got)
	}

	tabbed := "--- a.go\tprevious\n+++ a.go\tcurrent\n@@ -1 +1 @@\n-\tx := 1\n+\tx := 2\n"
	if got := RenderPatch(tabbed); got != tabbed {
		t.Errorf("RenderPatch() changed tabs: %q, want %q", got, tabbed)
	}
	if RenderPatch("") != "" {
		t.Error("RenderPatch(\"\") should be empty")
	}
}

func TestRenderPatchColorKeepsTabs(t *testing.T) {
	prev := lipgloss.ColorProfile()
	lipgloss.SetColorProfile(termenv.ANSI256)
	defer lipgloss.SetColorProfile(prev)

	out := RenderPatch("-\tx := 1\n+\tx := 2\n")
	for _, want := range []string{"-\tx := 1", "+\tx := 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderPatch() = %q, missing %q", out, want)
		}
	}
}

func TestRenderHelpersKeepText(t *testing.T) {
	DisableColor()

	for _, fn := range []func(string) string{RenderAccent, RenderPass, RenderWarn, RenderFail, RenderMuted} {
		if got := fn("text"); !strings.Contains(got, "text") {
			t.Errorf("render helper dropped text: %q", got)
		}
	}
}
