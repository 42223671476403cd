package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/snufilmfest/ottcluster/internal/logging"
	"github.com/snufilmfest/ottcluster/pkg/pipeline"
)

var (
	analyzeK           int
	analyzeSampleLimit int
	analyzeOutputDir   string
	analyzeProjection  string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file.csv>",
	Short: "Cluster one survey file and print the report",
	Long: `Cluster one survey file. The labelled CSV and the plot are written to the
output directory; the report is printed to stdout as JSON.

Examples:
  ottcluster analyze responses.csv
  ottcluster analyze responses.csv --k 3 --projection pca
  cat responses.csv | ottcluster analyze -`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().IntVar(&analyzeK, "k", 0, "number of clusters (0 uses the configured default)")
	analyzeCmd.Flags().IntVar(&analyzeSampleLimit, "sample-limit", -1, "cluster at most this many rows (0 uses every row)")
	analyzeCmd.Flags().StringVar(&analyzeOutputDir, "output-dir", "", "directory for the CSV and plot")
	analyzeCmd.Flags().StringVar(&analyzeProjection, "projection", "", "plot projection (tsne, pca, none)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	opts := applyAnalyzeFlags(pipelineOptions(cfg))

	var in io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()
		in = f
	}

	ctx := logging.WithLogger(cmd.Context(), logger)
	rep, err := pipeline.Run(ctx, in, opts)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// applyAnalyzeFlags overrides configured options with explicit flags.
func applyAnalyzeFlags(opts pipeline.Options) pipeline.Options {
	if analyzeK != 0 {
		opts.K = analyzeK
	}
	if analyzeSampleLimit >= 0 {
		opts.SampleLimit = analyzeSampleLimit
	}
	if analyzeOutputDir != "" {
		opts.OutputDir = analyzeOutputDir
	}
	if analyzeProjection != "" {
		opts.Projection = analyzeProjection
	}
	return opts
}
