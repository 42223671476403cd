package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/snufilmfest/ottcluster/pkg/core"
	"github.com/snufilmfest/ottcluster/pkg/stats"
)

// ErrDiverged is returned when the t-SNE embedding stops being finite.
var ErrDiverged = errors.New("t-SNE embedding diverged")

const (
	tsneMinGain       = 0.01
	tsneMachineEps    = 1e-12
	tsneBinarySteps   = 100
	tsneEntropyTol    = 1e-5
	tsneCheckInterval = 50
)

// TSNE is an exact (O(n^2)) t-distributed stochastic neighbour embedding.
type TSNE struct {
	Dims       int
	Perplexity float64
	// LearningRate <= 0 selects max(n/EarlyExaggeration/4, 50).
	LearningRate      float64
	MaxIter           int
	EarlyExaggeration float64
	ExaggerationIters int
	Seed              int64

	KL float64 // final Kullback-Leibler divergence
}

// NewTSNE returns a 2-D t-SNE with the usual defaults.
func NewTSNE(perplexity float64, maxIter int, seed int64) *TSNE {
	return &TSNE{
		Dims:              2,
		Perplexity:        perplexity,
		MaxIter:           maxIter,
		EarlyExaggeration: 12,
		ExaggerationIters: 250,
		Seed:              seed,
	}
}

// EffectivePerplexity clamps perplexity to (n-1)/3, never below 1.
func EffectivePerplexity(perplexity float64, n int) float64 {
	p := math.Min(perplexity, float64(n-1)/3)
	return math.Max(p, 1)
}

// FitTransform embeds X into Dims dimensions.
func (t *TSNE) FitTransform(ctx context.Context, X [][]float64) ([][]float64, error) {
	n := len(X)
	if n < 2 {
		return nil, fmt.Errorf("%w: t-SNE needs at least 2 points, got %d", ErrTooFewPoints, n)
	}
	if err := checkRectangular(X); err != nil {
		return nil, err
	}
	dims := max(t.Dims, 1)
	maxIter := max(t.MaxIter, 1)
	exag := t.EarlyExaggeration
	if exag <= 0 {
		exag = 1
	}
	lr := t.LearningRate
	if lr <= 0 {
		lr = math.Max(float64(n)/exag/4, 50)
	}
	rng := rand.New(rand.NewSource(t.Seed))

	P := jointProbabilities(X, EffectivePerplexity(t.Perplexity, n))
	Y, err := t.initEmbedding(ctx, X, dims, rng)
	if err != nil {
		return nil, err
	}

	update := make([][]float64, n)
	gains := make([][]float64, n)
	grad := make([][]float64, n)
	for i := 0; i < n; i++ {
		update[i] = make([]float64, dims)
		gains[i] = make([]float64, dims)
		grad[i] = make([]float64, dims)
		for d := range gains[i] {
			gains[i][d] = 1
		}
	}
	num := core.NewMatrix(n, n)

	for it := 0; it < maxIter; it++ {
		if it%tsneCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		momentum, ex := 0.8, 1.0
		if it < t.ExaggerationIters {
			momentum, ex = 0.5, exag
		}

		sumQ := studentKernel(Y, num)
		core.ParallelRows(n, func(start, end int) {
			for i := start; i < end; i++ {
				g := grad[i]
				for d := range g {
					g[d] = 0
				}
				for j := 0; j < n; j++ {
					if i == j {
						continue
					}
					q := num.At(i, j)
					mult := 4 * (ex*P.At(i, j) - q/sumQ) * q
					for d := range g {
						g[d] += mult * (Y[i][d] - Y[j][d])
					}
				}
			}
		})
		// Y is read by every gradient row, so it moves only after all rows are done.
		core.ParallelRows(n, func(start, end int) {
			for i := start; i < end; i++ {
				for d, g := range grad[i] {
					if update[i][d]*g < 0 {
						gains[i][d] += 0.2
					} else {
						gains[i][d] *= 0.8
					}
					gains[i][d] = math.Max(gains[i][d], tsneMinGain)
					update[i][d] = momentum*update[i][d] - lr*gains[i][d]*g
					Y[i][d] += update[i][d]
				}
			}
		})

		if it%tsneCheckInterval == 0 || it == maxIter-1 {
			if !finite(Y) {
				return nil, fmt.Errorf("%w at iteration %d", ErrDiverged, it)
			}
		}
	}

	sumQ := studentKernel(Y, num)
	t.KL = 0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			p := P.At(i, j)
			q := math.Max(num.At(i, j)/sumQ, tsneMachineEps)
			t.KL += p * math.Log(p/q)
		}
	}
	return Y, nil
}

// initEmbedding projects X onto its principal components and rescales the
// first axis to standard deviation 1e-4. Axes without variance get small
// seeded noise so the gradient can move them.
func (t *TSNE) initEmbedding(ctx context.Context, X [][]float64, dims int, rng *rand.Rand) ([][]float64, error) {
	pca := NewPCA(dims, 100)
	pca.Seed = t.Seed
	Y, err := pca.FitTransform(ctx, X)
	if err != nil {
		return nil, err
	}

	scale := stats.Std(stats.Column(Y, 0))
	for d := 0; d < dims; d++ {
		if stats.Std(stats.Column(Y, d)) > 0 && scale > 0 {
			for i := range Y {
				Y[i][d] = Y[i][d] / scale * 1e-4
			}
			continue
		}
		for i := range Y {
			Y[i][d] = rng.NormFloat64() * 1e-4
		}
	}
	return Y, nil
}

// jointProbabilities computes the symmetrised affinity matrix P. Each row's
// Gaussian bandwidth is found by binary search so the conditional
// distribution has the requested perplexity.
func jointProbabilities(X [][]float64, perplexity float64) *core.Matrix {
	n := len(X)
	D := core.PairwiseSqDistances(X)
	cond := core.NewMatrix(n, n)
	target := math.Log(perplexity)

	core.ParallelRows(n, func(start, end int) {
		for i := start; i < end; i++ {
			row := cond.Row(i)
			dist := D.Row(i)
			beta, lo, hi := 1.0, math.Inf(-1), math.Inf(1)
			for step := 0; step < tsneBinarySteps; step++ {
				sumP, sumDP := 0.0, 0.0
				for j := 0; j < n; j++ {
					if j == i {
						row[j] = 0
						continue
					}
					row[j] = math.Exp(-dist[j] * beta)
					sumP += row[j]
				}
				if sumP == 0 {
					sumP = tsneMachineEps
				}
				for j := 0; j < n; j++ {
					row[j] /= sumP
					sumDP += dist[j] * row[j]
				}
				entropy := math.Log(sumP) + beta*sumDP

				diff := entropy - target
				if math.Abs(diff) <= tsneEntropyTol {
					break
				}
				if diff > 0 {
					lo = beta
					if math.IsInf(hi, 1) {
						beta *= 2
					} else {
						beta = (beta + hi) / 2
					}
				} else {
					hi = beta
					if math.IsInf(lo, -1) {
						beta /= 2
					} else {
						beta = (beta + lo) / 2
					}
				}
			}
		}
	})

	P := core.NewMatrix(n, n)
	denom := 2 * float64(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			P.Set(i, j, math.Max((cond.At(i, j)+cond.At(j, i))/denom, tsneMachineEps))
		}
	}
	return P
}

// studentKernel fills num with 1/(1+|yi-yj|^2) and returns the off-diagonal sum.
func studentKernel(Y [][]float64, num *core.Matrix) float64 {
	n := len(Y)
	partial := make([]float64, n)
	core.ParallelRows(n, func(start, end int) {
		for i := start; i < end; i++ {
			s := 0.0
			for j := 0; j < n; j++ {
				if i == j {
					num.Set(i, j, 0)
					continue
				}
				q := 1 / (1 + core.SqEuclidean(Y[i], Y[j]))
				num.Set(i, j, q)
				s += q
			}
			partial[i] = s
		}
	})
	sum := 0.0
	for _, s := range partial {
		sum += s
	}
	return math.Max(sum, tsneMachineEps)
}

func finite(Y [][]float64) bool {
	for _, row := range Y {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
