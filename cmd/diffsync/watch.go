package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/interviewkit/diffsync/internal/config"
	"github.com/interviewkit/diffsync/internal/daemon"
	"github.com/interviewkit/diffsync/internal/dashboard"
	"github.com/interviewkit/diffsync/internal/emitter"
	"github.com/interviewkit/diffsync/internal/ignore"
	"github.com/interviewkit/diffsync/internal/logging"
	"github.com/interviewkit/diffsync/internal/sink"
	"github.com/interviewkit/diffsync/internal/tracker"
	"github.com/interviewkit/diffsync/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "session",
	Short:   "Watch the workspace and upload batches of diffs",
	Long: `Watch every file in the workspace and upload the changes on a fixed interval.

Each tick collects the files whose text changed since the previous batch and
sends one batch with a unified diff per file to the configured sinks. Files
matching the ignore patterns are never watched or uploaded.

A failed upload is logged and not retried: the files stay marked as sent.

Press Ctrl+C to stop. Pending changes are flushed before exit unless
flush_on_stop is disabled.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if err := runWatch(cmd.Context(), cfg); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(parent context.Context, cfg *config.Config) error {
	warns, err := config.Validate(cfg)
	for _, w := range warns {
		fmt.Fprintf(os.Stderr, "%s %s\n", ui.RenderWarn("⚠"), w)
	}
	if err != nil {
		return err
	}

	out, err := logging.Open(logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
		Verbose:    cfg.Log.Verbose,
	})
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer out.Close()

	for _, w := range warns {
		out.Logger("config").Printf("Warning: %s", w)
	}

	rules, err := ignore.New(cfg.IgnoreRules())
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var extra []sink.Sink
	var dash *dashboard.Server
	if cfg.Dashboard.Port > 0 {
		dash = dashboard.NewServer(&dashboard.Config{
			Port:   cfg.Dashboard.Port,
			Logger: out.Logger("dashboard"),
		})
		if err := dash.Start(); err != nil {
			return err
		}
		defer dash.Stop()
		extra = append(extra, dash)
	}

	outs, err := buildOutputs(ctx, cfg, out, extra...)
	if err != nil {
		return err
	}
	defer outs.Close()

	tr := tracker.New(rules)

	emitterLog := out.Logger("emitter")
	em, err := emitter.New(tr, outs.sink, &emitter.Config{
		Interval:        cfg.TickInterval,
		DispatchTimeout: cfg.DispatchTimeout,
		SessionID:       cfg.SessionID,
		Ignore:          rules,
		FlushOnStop:     cfg.FlushOnStop,
		OnDispatch: func(res emitter.Result) {
			out.Debugf(emitterLog, "Dispatch of batch %s took %v", res.BatchID, res.Duration)
			if dash != nil {
				dash.Observe(res)
			}
		},
		Logger: emitterLog,
	})
	if err != nil {
		return err
	}

	d, err := daemon.NewWithConfig(tr, em, cfg.Workspace, &daemon.Config{
		MaxFileSize:  cfg.MaxFileSize,
		SeedExisting: cfg.SeedExisting,
		Ignore:       rules,
		Logger:       out.Logger("daemon"),
	})
	if err != nil {
		return err
	}

	go func() {
		select {
		case <-d.Ready():
		case <-ctx.Done():
			return
		}
		fmt.Printf("%s Watching %s (%d files, every %v)\n",
			ui.RenderAccent("●"), d.Root(), tr.Len(), cfg.TickInterval)
		fmt.Printf("   Sinks: %v\n", outs.names)
		if dash != nil {
			fmt.Printf("   Dashboard: http://%s\n", dash.GetAddr())
		}
		if cfg.SessionID != "" {
			fmt.Printf("   Session: %s\n", cfg.SessionID)
		}
		fmt.Println("\nPress Ctrl+C to stop")
	}()

	if err := d.Start(ctx); err != nil {
		return err
	}

	fmt.Printf("%s Stopped\n", ui.RenderPass("✓"))
	return nil
}
