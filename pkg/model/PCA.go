package model

import (
	"context"
	"math"
	"math/rand"

	"github.com/snufilmfest/ottcluster/pkg/core"
	"gonum.org/v1/gonum/floats"
)

// PCA via power iteration for top-k components.
type PCA struct {
	K          int
	MaxIters   int
	Seed       int64
	Means      []float64
	Components [][]float64 // K x p, each a unit vector (zero when the data has fewer directions)
	Explained  []float64   // approx eigenvalues
}

// NewPCA creates and returns a new PCA model.
func NewPCA(k int, maxIters int) *PCA {
	return &PCA{K: k, MaxIters: maxIters, Seed: 42}
}

// Fit trains the PCA model by computing the top K principal components.
// The algorithm uses a parallelized power iteration with deflation.
func (pca *PCA) Fit(X [][]float64) error {
	if len(X) == 0 {
		return ErrEmptyInput
	}
	if err := checkRectangular(X); err != nil {
		return err
	}

	n, d := len(X), len(X[0])
	rng := rand.New(rand.NewSource(pca.Seed))

	// --- Step 1: Data Centering ---
	pca.Means = make([]float64, d)
	for _, row := range X {
		floats.Add(pca.Means, row)
	}
	floats.Scale(1/float64(n), pca.Means)
	Z := pca.center(X)

	// --- Step 2: Deflation Method (Find one component at a time) ---
	pca.Components = make([][]float64, 0, pca.K)
	pca.Explained = make([]float64, 0, pca.K)
	Zv := make([]float64, n)
	total := sumSquares(Z)

	for comp := 0; comp < pca.K; comp++ {
		// Whatever is left after deflation is rounding residue.
		if total == 0 || sumSquares(Z) <= 1e-12*total {
			pca.Components = append(pca.Components, make([]float64, d))
			pca.Explained = append(pca.Explained, 0)
			continue
		}

		// Initialize a random unit vector for power iteration.
		v := make([]float64, d)
		for j := range v {
			v[j] = rng.Float64() + 0.1
		}
		v = normalize(v)

		for t := 0; t < max(pca.MaxIters, 1); t++ {
			// w = Z^T (Z v)
			core.ParallelRows(n, func(start, end int) {
				for i := start; i < end; i++ {
					Zv[i] = floats.Dot(Z[i], v)
				}
			})
			w := make([]float64, d)
			core.ParallelRows(d, func(start, end int) {
				for j := start; j < end; j++ {
					s := 0.0
					for i := 0; i < n; i++ {
						s += Z[i][j] * Zv[i]
					}
					w[j] = s
				}
			})
			v = normalize(w)
		}
		flipSign(v)

		// Calculate explained variance (approximate eigenvalue).
		lam := 0.0
		for i := 0; i < n; i++ {
			s := floats.Dot(Z[i], v)
			lam += s * s
		}
		lam /= float64(max(n-1, 1))
		pca.Explained = append(pca.Explained, lam)
		pca.Components = append(pca.Components, v)

		// --- Step 3: Deflation of the Data Matrix ---
		// Z = Z - (Z*v) * v^T
		core.ParallelRows(n, func(start, end int) {
			for i := start; i < end; i++ {
				floats.AddScaled(Z[i], -floats.Dot(Z[i], v), v)
			}
		})
	}

	return nil
}

// Transform projects the input data onto the principal components.
func (pca *PCA) Transform(X [][]float64) ([][]float64, error) {
	if len(X) == 0 {
		return nil, ErrEmptyInput
	}
	if len(pca.Components) == 0 {
		return nil, ErrNotFitted
	}
	if len(X[0]) != len(pca.Means) {
		return nil, ErrDimension
	}

	Z := pca.center(X)
	transformed := make([][]float64, len(X))
	core.ParallelRows(len(X), func(start, end int) {
		for i := start; i < end; i++ {
			t := make([]float64, len(pca.Components))
			for k, c := range pca.Components {
				t[k] = floats.Dot(Z[i], c)
			}
			transformed[i] = t
		}
	})
	return transformed, nil
}

// FitTransform fits the model on X and returns X projected onto it.
func (pca *PCA) FitTransform(ctx context.Context, X [][]float64) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := pca.Fit(X); err != nil {
		return nil, err
	}
	return pca.Transform(X)
}

func (pca *PCA) center(X [][]float64) [][]float64 {
	Z := make([][]float64, len(X))
	for i, row := range X {
		z := make([]float64, len(row))
		floats.SubTo(z, row, pca.Means)
		Z[i] = z
	}
	return Z
}

func sumSquares(Z [][]float64) float64 {
	s := 0.0
	for _, row := range Z {
		s += floats.Dot(row, row)
	}
	return s
}

// normalize normalizes a vector to have unit length.
func normalize(v []float64) []float64 {
	norm := floats.Norm(v, 2)
	out := make([]float64, len(v))
	if norm == 0 || math.IsNaN(norm) {
		return out
	}
	for i, val := range v {
		out[i] = val / norm
	}
	return out
}

// flipSign makes the largest-magnitude entry of v positive so repeated fits
// agree on orientation.
func flipSign(v []float64) {
	best := 0.0
	for _, x := range v {
		if math.Abs(x) > math.Abs(best) {
			best = x
		}
	}
	if best < 0 {
		floats.Scale(-1, v)
	}
}
