// Command ottcluster clusters OTT viewing-preference surveys.
//
// Usage:
//
//	# Analyse one file and print the report
//	ottcluster analyze responses.csv --k 5
//
//	# Serve the upload-and-analyze API
//	ottcluster serve --config ottcluster.yaml
//
//	# Analyse every CSV dropped into a folder
//	ottcluster watch ./inbox
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/snufilmfest/ottcluster/internal/config"
	"github.com/snufilmfest/ottcluster/internal/logging"
	"github.com/snufilmfest/ottcluster/pkg/dataprep"
	"github.com/snufilmfest/ottcluster/pkg/pipeline"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	version = "dev"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ottcluster",
	Short: "Segment OTT survey respondents by viewing preference",
	Long: `ottcluster reads a survey CSV, maps its columns to movie genre, series genre,
OTT platform and content language, clusters respondents with k-means and
writes a labelled CSV plus a 2-D scatter plot.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (env OTTCLUSTER_* overrides it)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, console)")
	rootCmd.AddCommand(analyzeCmd, serveCmd, watchCmd)
}

// setup loads configuration and builds the logger shared by every command.
func setup() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

// pipelineOptions maps configuration onto the per-run options.
func pipelineOptions(cfg *config.Config) pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.K = cfg.Clustering.DefaultK
	opts.SampleLimit = cfg.Clustering.SampleLimit
	opts.MaxIter = cfg.Clustering.MaxIter
	opts.NInit = cfg.Clustering.NInit
	opts.Seed = cfg.Clustering.Seed
	opts.Encoding = dataprep.Method(cfg.Encoding.Method)
	opts.Scaling = dataprep.Scaling(cfg.Encoding.Scaling)
	opts.Projection = cfg.Projection.Method
	opts.Perplexity = cfg.Projection.Perplexity
	opts.ProjectionIter = cfg.Projection.MaxIter
	opts.ProjectionMaxRows = cfg.Projection.MaxRows
	opts.OutputDir = cfg.Storage.OutputDir
	return opts
}
