package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/interviewkit/diffsync/internal/ui"
)

var (
	replayBase   string
	replayOutput string
	replayEmpty  bool
)

var replayCmd = &cobra.Command{
	Use:     "replay <document>",
	GroupID: "journal",
	Short:   "Rebuild a document from its journaled patches",
	Long: `Apply every journaled patch of a document, oldest first, on top of a base
text and print the result.

The base is the text the document had before its first journaled batch, read
from --base. Use --empty for documents that started out empty.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if replayBase == "" && !replayEmpty {
			fmt.Fprintf(os.Stderr, "Error: --base or --empty is required\n")
			os.Exit(1)
		}

		var base string
		if replayBase != "" {
			data, err := os.ReadFile(replayBase)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", replayBase, err)
				os.Exit(1)
			}
			base = string(data)
		}

		cfg := loadConfig()
		ctx := context.Background()
		j := mustOpenJournal(ctx, cfg.Journal.Path)
		defer j.Close()

		text, err := j.Replay(ctx, args[0], base)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
			os.Exit(1)
		}

		writeResult(text, replayOutput)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayBase, "base", "", "file holding the text before the first batch")
	replayCmd.Flags().BoolVar(&replayEmpty, "empty", false, "start from an empty document")
	replayCmd.Flags().StringVarP(&replayOutput, "output", "o", "", "write the result to this file instead of stdout")
	rootCmd.AddCommand(replayCmd)
}
