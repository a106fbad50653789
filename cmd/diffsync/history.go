package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/interviewkit/diffsync/internal/journal"
	"github.com/interviewkit/diffsync/internal/ui"
)

var (
	historySince string
	historyDoc   string
	historyLimit int
	historyJSON  bool
	historyPatch bool
)

var historyCmd = &cobra.Command{
	Use:     "history",
	GroupID: "journal",
	Short:   "List journaled batches",
	Long: `List the batches recorded in the local journal, newest first.

--since accepts a duration ("90m"), an RFC 3339 timestamp, or natural language
such as "2 hours ago" or "yesterday".

Examples:
  diffsync history --since "30 minutes ago"
  diffsync history --doc src/main.go --patch
  diffsync history --limit 5 --json`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		filter := journal.Filter{DocumentID: historyDoc, Limit: historyLimit}
		if historySince != "" {
			since, err := parseSince(historySince, time.Now())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			filter.Since = since
		}

		ctx := context.Background()
		j := mustOpenJournal(ctx, cfg.Journal.Path)
		defer j.Close()

		batches, err := j.ListBatches(ctx, filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing batches: %v\n", err)
			os.Exit(1)
		}

		if historyJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(batches)
			return
		}

		if len(batches) == 0 {
			fmt.Printf("%s No batches found\n", ui.RenderWarn("⚠"))
			return
		}

		for _, b := range batches {
			fmt.Printf("%s %s  %s  %d diffs\n",
				ui.RenderAccent("●"), b.ID,
				ui.RenderMuted(b.CreatedAt.Local().Format("2006-01-02 15:04:05")),
				b.RecordCount)

			recs, err := j.Records(ctx, b.ID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading batch %s: %v\n", b.ID, err)
				os.Exit(1)
			}
			for _, r := range recs {
				if historyDoc != "" && r.DocumentID != historyDoc {
					continue
				}
				fmt.Printf("   %s %s %s\n", r.DocumentID,
					ui.RenderPass(fmt.Sprintf("+%d", r.Stats.LinesAdded)),
					ui.RenderFail(fmt.Sprintf("-%d", r.Stats.LinesRemoved)))
				if historyPatch {
					fmt.Print(indent(ui.RenderPatch(r.Patch), "      "))
				}
			}
		}

		if c, err := j.Counts(ctx); err == nil {
			fmt.Printf("\n%s\n", ui.RenderMuted(fmt.Sprintf(
				"Journal: %d batches, %d diffs, %d files", c.Batches, c.Records, c.Documents)))
		}
	},
}

func init() {
	historyCmd.Flags().StringVar(&historySince, "since", "", "only batches created after this time")
	historyCmd.Flags().StringVar(&historyDoc, "doc", "", "only batches that touched this document")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of batches (0 = all)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print batches as JSON")
	historyCmd.Flags().BoolVarP(&historyPatch, "patch", "p", false, "print each patch")
	rootCmd.AddCommand(historyCmd)
}

// parseSince turns a duration, timestamp or natural-language phrase into an
// absolute time relative to now.
func parseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse --since %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("failed to parse --since %q: not a time", s)
	}
	return r.Time, nil
}

func mustOpenJournal(ctx context.Context, path string) *journal.Journal {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Printf("\n%s Journal not found at %s\n", ui.RenderWarn("⚠"), path)
		fmt.Printf("   Add \"journal\" to sinks and run 'diffsync watch' to record batches\n\n")
		os.Exit(1)
	}
	j, err := openJournal(ctx, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening journal: %v\n", err)
		os.Exit(1)
	}
	return j
}

func indent(s, prefix string) string {
	if s == "" {
		return ""
	}
	lines := strings.SplitAfter(s, "\n")
	var b strings.Builder
	for _, l := range lines {
		if l == "" {
			continue
		}
		b.WriteString(prefix)
		b.WriteString(l)
	}
	if !strings.HasSuffix(s, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}
