package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/accelara/downlink/internal/batch"
	"github.com/accelara/downlink/internal/config"
	"github.com/accelara/downlink/internal/downloader"
	"github.com/accelara/downlink/internal/logger"
	"github.com/accelara/downlink/internal/progress"
	"github.com/accelara/downlink/internal/utils"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "downlink <url> [<url> ...]",
		Short: "Download one or more URLs with a progress bar",
		Long: `downlink - Download one or more URLs with a progress bar.

Each URL is saved under the last segment of its path (or "download") in the
current directory, in --dir, or at --output. Saved paths are printed one per
line. Every flag can also be set through a DOWNLINK_<FLAG> environment
variable, e.g. DOWNLINK_QUIET=1.`,
		Args:          cobra.MinimumNArgs(1),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runDownload,
	}

	config.RegisterFlags(cmd.Flags())
	return cmd
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	for _, src := range args {
		if err := utils.ValidateHTTPURL(src); err != nil {
			return err
		}
	}
	if cfg.SHA256 != "" && len(args) > 1 {
		return fmt.Errorf("--sha256 requires a single URL, got %d", len(args))
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer log.Sync()

	mode := cfg.GetProgressMode()
	if mode == progress.ModeBar && cfg.Jobs > 1 && len(args) > 1 {
		log.Debug("progress bars disabled for parallel downloads", zap.Int("jobs", cfg.Jobs))
		mode = progress.ModeNone
	}
	newReporter, err := progress.NewFactory(mode, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	opts := downloader.Options{
		ChunkSize:      cfg.GetChunkSize(),
		ConnectTimeout: cfg.Timeout,
		RateLimit:      cfg.GetRateLimit(),
		Proxy:          cfg.Proxy,
		SHA256:         cfg.SHA256,
		UserAgent:      "downlink/" + version,
		Logger:         log,
	}

	b := &batch.Batch{
		URLs:   args,
		Output: cfg.Output,
		Dir:    cfg.Dir,
		Jobs:   cfg.Jobs,
		Logger: log,
		Download: func(ctx context.Context, sourceURL, outPath string) (string, error) {
			o := opts
			o.StatusReporter = newReporter()
			return downloader.NewHTTPDownloader(sourceURL, outPath, o).Download(ctx)
		},
	}

	return b.Run(cmd.Context(), cmd.OutOrStdout())
}
