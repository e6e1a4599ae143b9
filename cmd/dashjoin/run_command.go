package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"dashjoin/internal/config"
	"dashjoin/internal/daemon"
	"dashjoin/internal/logging"
)

type runOptions struct {
	watchDir  string
	outputDir string
	threshold int
	pattern   string
	extension string
	workers   int
	noScan    bool
	logLevel  string
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a session in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := opts.apply(cmd, cfg); err != nil {
				return err
			}
			return runSession(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.watchDir, "watch-dir", "", "Directory the camera writes segments to")
	flags.StringVar(&opts.outputDir, "output-dir", "", "Directory merged recordings are written to")
	flags.IntVar(&opts.threshold, "threshold", 0, "Maximum gap in seconds between segments of one recording")
	flags.StringVar(&opts.pattern, "pattern", "", "strftime pattern of segment timestamps")
	flags.StringVar(&opts.extension, "extension", "", "Segment file extension")
	flags.IntVar(&opts.workers, "workers", 0, "Concurrent merges")
	flags.BoolVar(&opts.noScan, "no-scan", false, "Skip the initial scan of existing segments")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	return cmd
}

// apply copies flags that were set onto cfg and revalidates it.
func (o runOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed
	if changed("watch-dir") {
		cfg.Paths.WatchDir = o.watchDir
	}
	if changed("output-dir") {
		cfg.Paths.OutputDir = o.outputDir
	}
	if changed("threshold") {
		cfg.Grouping.ThresholdSeconds = o.threshold
	}
	if changed("pattern") {
		cfg.Grouping.TimestampPattern = o.pattern
	}
	if changed("extension") {
		cfg.Grouping.Extension = o.extension
	}
	if changed("workers") {
		cfg.Merge.Workers = o.workers
	}
	if o.noScan {
		cfg.Watch.ScanExisting = false
	}
	if changed("log-level") {
		cfg.Logging.Level = strings.TrimSpace(o.logLevel)
	}
	if err := cfg.Normalize(); err != nil {
		return err
	}
	return cfg.Validate()
}

func runSession(parent context.Context, cfg *config.Config) error {
	signalCtx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sessionID := uuid.NewString()
	logger, err := logging.NewFromConfig(cfg, sessionID)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	session, err := daemon.NewSession(cfg, logger, daemon.WithSessionID(sessionID))
	if err != nil {
		return err
	}
	if err := session.Start(signalCtx); err != nil {
		return err
	}
	return session.Wait()
}
