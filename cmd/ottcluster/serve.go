package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/snufilmfest/ottcluster/internal/httpapi"
	"github.com/snufilmfest/ottcluster/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the upload-and-analyze API",
	Long: `Serve POST /api/upload-and-analyze, the generated files under /uploads/
and Prometheus metrics at /metrics. SIGINT or SIGTERM shuts the server down
gracefully.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	opts := pipelineOptions(cfg)
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	srv, err := httpapi.NewServer(&httpapi.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		MaxUploadBytes: cfg.Server.MaxUploadBytes(),
	}, opts, logger, metrics.New())
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx := cmd.Context()
	logger.Info(ctx, "starting ottcluster",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("output_dir", opts.OutputDir),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout.Duration()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info(context.Background(), "server shutdown complete")
	return nil
}
