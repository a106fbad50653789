package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/interviewkit/diffsync/internal/patch"
	"github.com/interviewkit/diffsync/internal/ui"
)

var diffStat bool

var diffCmd = &cobra.Command{
	Use:     "diff <old-file> <new-file>",
	GroupID: "tools",
	Short:   "Print the patch diffsync would upload for two versions of a file",
	Long: `Compute the unified diff between two files exactly as a batch record would
carry it, labelled "previous" and "current".`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		prev, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", args[0], err)
			os.Exit(1)
		}
		cur, err := os.ReadFile(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", args[1], err)
			os.Exit(1)
		}

		name := patch.DisplayName(args[1])
		p := patch.Unified(name, string(prev), string(cur))
		if p == "" {
			fmt.Printf("%s No changes\n", ui.RenderPass("✓"))
			return
		}

		if diffStat {
			st := patch.Measure(string(prev), string(cur))
			fmt.Printf("%s: %s %s, %s %s\n", name,
				ui.RenderPass(fmt.Sprintf("+%d", st.LinesAdded)),
				ui.RenderMuted(fmt.Sprintf("(%d chars)", st.CharsAdded)),
				ui.RenderFail(fmt.Sprintf("-%d", st.LinesRemoved)),
				ui.RenderMuted(fmt.Sprintf("(%d chars)", st.CharsRemoved)))
			return
		}
		fmt.Print(ui.RenderPatch(p))
	},
}

var applyOutput string

var applyCmd = &cobra.Command{
	Use:     "apply <file> <patch-file>",
	GroupID: "tools",
	Short:   "Apply an uploaded patch to a file",
	Long: `Apply a unified diff produced by diffsync to the text of a file and print the
result, or write it with --output. The patch must have been computed from
exactly this text.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		base, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", args[0], err)
			os.Exit(1)
		}
		p, err := os.ReadFile(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", args[1], err)
			os.Exit(1)
		}

		result, err := patch.Apply(string(base), string(p))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error applying patch: %v\n", err)
			os.Exit(1)
		}

		writeResult(result, applyOutput)
	},
}

func init() {
	diffCmd.Flags().BoolVar(&diffStat, "stat", false, "print line and character counts instead of the patch")
	applyCmd.Flags().StringVarP(&applyOutput, "output", "o", "", "write the result to this file instead of stdout")
	rootCmd.AddCommand(diffCmd, applyCmd)
}

// writeResult prints text or writes it to path.
func writeResult(text, path string) {
	if path == "" {
		fmt.Print(text)
		return
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", path, err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "%s Wrote %s\n", ui.RenderPass("✓"), path)
}
