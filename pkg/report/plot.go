package report

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var ErrPlotInput = errors.New("cannot plot embedding")

// tab10 is the ten-colour categorical palette; labels cycle through it.
var tab10 = []color.RGBA{
	{R: 31, G: 119, B: 180, A: 255},
	{R: 255, G: 127, B: 14, A: 255},
	{R: 44, G: 160, B: 44, A: 255},
	{R: 214, G: 39, B: 40, A: 255},
	{R: 148, G: 103, B: 189, A: 255},
	{R: 140, G: 86, B: 75, A: 255},
	{R: 227, G: 119, B: 194, A: 255},
	{R: 127, G: 127, B: 127, A: 255},
	{R: 188, G: 189, B: 34, A: 255},
	{R: 23, G: 190, B: 207, A: 255},
}

// Color returns the palette colour of a cluster label.
func Color(label int) color.RGBA {
	if label < 0 {
		label = -label
	}
	return tab10[label%len(tab10)]
}

// WritePlot renders a 2-D scatter of points coloured by label, one legend
// entry per cluster, and saves it as PNG under Dir.
func (a *Assembler) WritePlot(runID, kind, title string, points [][]float64, labels []int) (string, error) {
	if len(points) == 0 || len(points) != len(labels) {
		return "", fmt.Errorf("%w: %d points, %d labels", ErrPlotInput, len(points), len(labels))
	}

	groups := make(map[int]plotter.XYs)
	for i, pt := range points {
		if len(pt) < 2 {
			return "", fmt.Errorf("%w: point %d has %d dimensions", ErrPlotInput, i, len(pt))
		}
		if !isFinite(pt[0]) || !isFinite(pt[1]) {
			return "", fmt.Errorf("%w: point %d is not finite", ErrPlotInput, i)
		}
		groups[labels[i]] = append(groups[labels[i]], plotter.XY{X: pt[0], Y: pt[1]})
	}

	keys := make([]int, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "dim 1"
	p.Y.Label.Text = "dim 2"
	p.Legend.Top = true

	for _, k := range keys {
		s, err := plotter.NewScatter(groups[k])
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrPlotInput, err)
		}
		s.GlyphStyle.Color = Color(k)
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		s.GlyphStyle.Radius = vg.Points(3)
		p.Add(s)
		p.Legend.Add(fmt.Sprintf("Cluster %d", k), s)
	}

	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(a.Dir, PlotName(kind, runID))
	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("save plot: %w", err)
	}
	return path, nil
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
