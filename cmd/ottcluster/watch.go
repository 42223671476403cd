package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/snufilmfest/ottcluster/internal/logging"
	"github.com/snufilmfest/ottcluster/internal/metrics"
	"github.com/snufilmfest/ottcluster/internal/watch"
	"github.com/snufilmfest/ottcluster/pkg/pipeline"
)

var (
	watchDebounce time.Duration
	watchWorkers  int
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Analyse every survey CSV written into a directory",
	Long: `Watch a directory and run the analysis for each CSV created or rewritten in
it. The report for <name>.csv is written next to it as <name>.report.json.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "quiet period before a changed file is analysed")
	watchCmd.Flags().IntVar(&watchWorkers, "workers", 2, "files analysed concurrently")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	dir := args[0]
	opts := pipelineOptions(cfg)
	if !filepath.IsAbs(opts.OutputDir) {
		opts.OutputDir = filepath.Join(dir, opts.OutputDir)
	}

	w, err := watch.NewWatcher(nil, watchDebounce, logger)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = w.Stop() }()
	w.Ignore = isGenerated

	ctx := cmd.Context()
	events, err := w.Watch(ctx, dir)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	logger.Info(ctx, "watching for surveys", zap.String("dir", dir))

	m := metrics.New()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(watchWorkers, 1))
	for ev := range events {
		g.Go(func() error {
			analyzeFile(gctx, logger, opts, m, ev.Path)
			return nil
		})
	}
	return g.Wait()
}

// analyzeFile runs one watched table. Failures are logged so the watch keeps
// going.
func analyzeFile(ctx context.Context, logger *logging.Logger, opts pipeline.Options, obs pipeline.Observer, path string) {
	f, err := os.Open(path)
	if err != nil {
		logger.Warn(ctx, "cannot open survey", zap.String("path", path), zap.Error(err))
		return
	}
	defer f.Close()

	rep, err := pipeline.New(opts, logger, obs).Run(ctx, f)
	if err != nil {
		logger.Warn(ctx, "survey analysis failed", zap.String("path", path), zap.Error(err))
		return
	}

	out := watch.ReportPath(path)
	b, err := json.MarshalIndent(rep, "", "  ")
	if err == nil {
		err = os.WriteFile(out, b, 0o644)
	}
	if err != nil {
		logger.Error(ctx, "cannot write report", zap.String("path", out), zap.Error(err))
		return
	}
	logger.Info(ctx, "report written", zap.String("path", out), zap.Int("k", rep.K))
}

// isGenerated reports whether path is a file ottcluster wrote itself.
func isGenerated(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, "clusters_") || strings.HasPrefix(base, "plot_")
}
