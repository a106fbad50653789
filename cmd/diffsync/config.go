package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/interviewkit/diffsync/internal/config"
	"github.com/interviewkit/diffsync/internal/ui"
)

var (
	configInitFormat      string
	configInitInteractive bool
	configInitForce       bool
	configShowFormat      string
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Create or inspect the configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with the default settings",
	Long: `Write diffsync.toml (or diffsync.yaml with --format yaml) in the workspace.

With --interactive a terminal form asks for the session, sinks and S3 or
webhook settings first.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Default()
		if sid := os.Getenv("INTERVIEW_TAKEN_ID"); sid != "" {
			cfg.SessionID = sid
		}

		if configInitInteractive {
			if !ui.IsTerminal() {
				fmt.Fprintf(os.Stderr, "Error: --interactive needs a terminal\n")
				os.Exit(1)
			}
			if err := config.Prompt(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		path := ""
		if len(args) == 1 {
			path = args[0]
		} else {
			dir := workspace
			if dir == "" {
				dir = "."
			}
			path = filepath.Join(dir, config.FileName+"."+configInitFormat)
		}

		if err := config.WriteFile(path, cfg, configInitFormat, configInitForce); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
		warns, _ := config.Validate(cfg)
		for _, w := range warns {
			fmt.Printf("   %s %s\n", ui.RenderWarn("⚠"), w)
		}
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging defaults, the config file and the
environment. Credentials are masked.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		if cfg.File != "" {
			fmt.Fprintf(os.Stderr, "%s\n", ui.RenderMuted("# from "+cfg.File))
		} else {
			fmt.Fprintf(os.Stderr, "%s\n", ui.RenderMuted("# no config file; defaults and environment"))
		}
		if err := config.EncodeRedacted(os.Stdout, cfg, configShowFormat); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		warns, err := config.Validate(cfg)
		for _, w := range warns {
			fmt.Fprintf(os.Stderr, "%s %s\n", ui.RenderWarn("⚠"), w)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("✗"), err)
			os.Exit(1)
		}
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configInitFormat, "format", config.FormatTOML, "file format: toml or yaml")
	configInitCmd.Flags().BoolVarP(&configInitInteractive, "interactive", "i", false, "ask for settings in a form")
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "overwrite an existing file")
	configShowCmd.Flags().StringVar(&configShowFormat, "format", config.FormatYAML, "output format: yaml or toml")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
