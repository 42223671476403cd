package report

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/snufilmfest/ottcluster/pkg/data"
	"github.com/snufilmfest/ottcluster/pkg/summary"
	"github.com/snufilmfest/ottcluster/pkg/survey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable(t *testing.T) *data.Table {
	t.Helper()
	table, err := data.ReadTable(strings.NewReader("id,OTT\n1,Netflix\n2,\n3,Prime\n"), data.Options{})
	require.NoError(t, err)
	return table
}

func TestAssemble(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	a := NewAssembler(dir)

	rep, err := a.Assemble(context.Background(), Input{
		RunID:      "run1",
		Table:      testTable(t),
		SourceRows: []int{0, 2},
		Labels:     []int{1, 0},
		K:          2,
		RequestedK: 4,
		Silhouette: 0.25,
		Notes:      []string{"first.", "second."},
		Columns:    map[survey.Role]string{survey.OTTPlatform: "OTT"},
		Summary: map[int]summary.Cluster{
			0: {Count: 1, Pct: 0.5, TopOTT: "Prime"},
			1: {Count: 1, Pct: 0.5, TopOTT: "Netflix"},
		},
		PlotPath: filepath.Join(dir, "plot.png"),
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "clusters_run1.csv"), rep.CSVPath)
	assert.Equal(t, "first. second.", rep.Notes)
	assert.Equal(t, 3, rep.Rows)
	assert.Equal(t, 2, rep.ClusteredRows)
	assert.Equal(t, 4, rep.RequestedK)

	raw, err := os.ReadFile(rep.CSVPath)
	require.NoError(t, err)
	assert.Equal(t, "id,OTT,cluster\n1,Netflix,1\n2,,\n3,Prime,0\n", string(raw))

	t.Run("serialises summary keyed by label", func(t *testing.T) {
		b, err := json.Marshal(rep)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(b, &decoded))
		sum := decoded["summary"].(map[string]any)
		require.Contains(t, sum, "0")
		assert.Equal(t, "Prime", sum["0"].(map[string]any)["top_ott"])
		assert.Equal(t, "OTT", decoded["columns"].(map[string]any)["ott"])
		assert.Equal(t, "run1", decoded["run_id"])
	})

	t.Run("rejects misaligned labels", func(t *testing.T) {
		_, err := a.Assemble(context.Background(), Input{RunID: "x", Table: testTable(t), SourceRows: []int{0}, Labels: []int{0, 1}})
		assert.ErrorIs(t, err, ErrMisaligned)
	})

	t.Run("honours cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := a.Assemble(ctx, Input{RunID: "x", Table: testTable(t)})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestWritePlot(t *testing.T) {
	dir := t.TempDir()
	a := NewAssembler(dir)

	t.Run("saves a png", func(t *testing.T) {
		points := [][]float64{{0, 0}, {1, 1}, {5, 5}, {6, 5}}
		path, err := a.WritePlot("run1", "tsne", "t-SNE plot (k=2)", points, []int{0, 0, 1, 1})
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "plot_tsne_run1.png"), path)

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(raw), "\x89PNG"))
	})

	t.Run("rejects bad input without leaving a file", func(t *testing.T) {
		cases := map[string][][]float64{
			"one dimension": {{0}, {1}},
			"not finite":    {{0, 0}, {1, math.NaN()}},
		}
		for name, points := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := a.WritePlot("bad", "tsne", "", points, []int{0, 1})
				assert.ErrorIs(t, err, ErrPlotInput)
				assert.NoFileExists(t, filepath.Join(dir, "plot_tsne_bad.png"))
			})
		}

		_, err := a.WritePlot("bad", "tsne", "", [][]float64{{0, 0}}, []int{0, 1})
		assert.ErrorIs(t, err, ErrPlotInput)
	})
}

func TestColorCycles(t *testing.T) {
	assert.Equal(t, Color(0), Color(10))
	assert.NotEqual(t, Color(0), Color(1))
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.csv")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	NewAssembler(dir).Remove(path, "")
	assert.NoFileExists(t, path)
}
