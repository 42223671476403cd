// Package report writes the per-run output files and packages the result of
// a clustering run into a Report.
package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/snufilmfest/ottcluster/pkg/data"
	"github.com/snufilmfest/ottcluster/pkg/summary"
	"github.com/snufilmfest/ottcluster/pkg/survey"
)

var ErrMisaligned = errors.New("labels and source rows differ in length")

// Report is the outcome of one run.
type Report struct {
	RunID         string                  `json:"run_id"`
	Silhouette    float64                 `json:"silhouette"`
	K             int                     `json:"k"`
	RequestedK    int                     `json:"requested_k"`
	Notes         string                  `json:"notes"`
	PlotPath      string                  `json:"plot_path,omitempty"`
	CSVPath       string                  `json:"csv_path,omitempty"`
	Rows          int                     `json:"rows"`
	ClusteredRows int                     `json:"clustered_rows"`
	Columns       map[survey.Role]string  `json:"columns"`
	Summary       map[int]summary.Cluster `json:"summary"`
}

// Input carries everything Assemble packages. Labels[i] belongs to table
// row SourceRows[i].
type Input struct {
	RunID      string
	Table      *data.Table
	SourceRows []int
	Labels     []int
	K          int
	RequestedK int
	Silhouette float64
	Notes      []string
	Columns    map[survey.Role]string
	Summary    map[int]summary.Cluster
	PlotPath   string
}

// Assembler writes run outputs under Dir.
type Assembler struct {
	Dir string
}

// NewAssembler returns an Assembler writing to dir.
func NewAssembler(dir string) *Assembler {
	return &Assembler{Dir: dir}
}

// CSVName is the file name of the annotated table for runID.
func CSVName(runID string) string { return "clusters_" + runID + ".csv" }

// PlotName is the file name of the scatter plot for runID.
func PlotName(kind, runID string) string { return fmt.Sprintf("plot_%s_%s.png", kind, runID) }

// Assemble writes the annotated CSV and returns the Report. Rows of the
// table that were not clustered get an empty label cell.
func (a *Assembler) Assemble(ctx context.Context, in Input) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(in.SourceRows) != len(in.Labels) {
		return nil, fmt.Errorf("%w: %d labels, %d rows", ErrMisaligned, len(in.Labels), len(in.SourceRows))
	}

	full := make([]int, in.Table.Len())
	for i := range full {
		full[i] = -1
	}
	for i, src := range in.SourceRows {
		full[src] = in.Labels[i]
	}

	csvPath, err := a.WriteCSV(in.RunID, in.Table, full)
	if err != nil {
		return nil, err
	}

	return &Report{
		RunID:         in.RunID,
		Silhouette:    in.Silhouette,
		K:             in.K,
		RequestedK:    in.RequestedK,
		Notes:         strings.Join(in.Notes, " "),
		PlotPath:      in.PlotPath,
		CSVPath:       csvPath,
		Rows:          in.Table.Len(),
		ClusteredRows: len(in.Labels),
		Columns:       in.Columns,
		Summary:       in.Summary,
	}, nil
}

// WriteCSV writes t with one label per row to Dir and returns the path.
func (a *Assembler) WriteCSV(runID string, t *data.Table, labels []int) (string, error) {
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(a.Dir, CSVName(runID))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if err := data.WriteAnnotated(f, t, labels); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}

// Remove deletes output files of a failed run. Empty paths are ignored.
func (a *Assembler) Remove(paths ...string) {
	for _, p := range paths {
		if p != "" {
			_ = os.Remove(p)
		}
	}
}
