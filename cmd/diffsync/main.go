// Command diffsync records a workspace's edits and uploads them as periodic
// batches of unified diffs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/interviewkit/diffsync/internal/config"
	"github.com/interviewkit/diffsync/internal/ui"
)

var (
	configFile string
	workspace  string
	verbose    bool
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "diffsync",
	Short: "Snapshot a workspace and upload batches of diffs",
	Long: `diffsync keeps the last uploaded text of every file in a workspace and,
on a fixed interval, uploads one batch holding a unified diff for every file
that changed since the previous batch.

Batches go to the configured sinks: S3, an HTTP endpoint, the log, and a local
journal that can be listed and replayed offline.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			ui.DisableColor()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "session", Title: "Session Commands:"},
		&cobra.Group{ID: "journal", Title: "Journal Commands:"},
		&cobra.Group{ID: "tools", Title: "Diff Tools:"},
		&cobra.Group{ID: "setup", Title: "Setup Commands:"},
	)

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default: diffsync.{yaml,toml,json} in the workspace)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace root (default: config or current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// loadConfig loads the effective configuration or exits.
func loadConfig() *config.Config {
	cfg, err := config.Load(configFile, workspace)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if verbose {
		cfg.Log.Verbose = true
	}
	return cfg
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
