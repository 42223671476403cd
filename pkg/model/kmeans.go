package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/snufilmfest/ottcluster/pkg/core"
)

var (
	ErrEmptyInput    = errors.New("input data cannot be empty")
	ErrInvalidK      = errors.New("k must be at least 1")
	ErrTooFewPoints  = errors.New("number of data points is less than K")
	ErrDimension     = errors.New("feature count mismatch between input data and model")
	ErrNotFitted     = errors.New("model is not fitted")
	ErrRaggedFeature = errors.New("rows have differing feature counts")
)

// KMeans is an unsupervised learning model that partitions data points into K clusters.
type KMeans struct {
	K       int
	MaxIter int
	// NInit is the number of k-means++ restarts; the run with the lowest
	// inertia is kept.
	NInit int
	Seed  int64

	Centroids  [][]float64
	Labels     []int
	Inertia    float64 // Sum of squared distances to nearest centroid
	Iterations int     // Lloyd iterations of the kept run
}

// NewKMeans creates and returns a new KMeans model with specified K and max iterations.
func NewKMeans(k int, maxIter int) *KMeans {
	return &KMeans{
		K:       k,
		MaxIter: maxIter,
		NInit:   10,
		Seed:    42,
	}
}

// Fit runs NInit seeded k-means++ initialisations followed by Lloyd
// iterations and keeps the partition with the lowest inertia. The same input
// and Seed always produce the same Labels.
func (m *KMeans) Fit(ctx context.Context, X [][]float64) error {
	if len(X) == 0 {
		return ErrEmptyInput
	}
	if m.K < 1 {
		return ErrInvalidK
	}
	if len(X) < m.K {
		return fmt.Errorf("%w: %d points, k=%d", ErrTooFewPoints, len(X), m.K)
	}
	if err := checkRectangular(X); err != nil {
		return err
	}

	nInit := max(m.NInit, 1)
	maxIter := max(m.MaxIter, 1)
	rng := rand.New(rand.NewSource(m.Seed))

	m.Labels = nil
	for run := 0; run < nInit; run++ {
		centroids := m.initCenters(X, rng)
		labels, iters, err := lloyd(ctx, X, centroids, maxIter)
		if err != nil {
			return err
		}
		inertia := inertia(X, labels, centroids)

		if m.Labels == nil || inertia < m.Inertia {
			m.Centroids = centroids
			m.Labels = labels
			m.Inertia = inertia
			m.Iterations = iters
		}
	}
	return nil
}

// Predict assigns each data point to its nearest centroid and returns the cluster assignments.
func (m *KMeans) Predict(X [][]float64) ([]int, error) {
	if len(X) == 0 {
		return nil, ErrEmptyInput
	}
	if len(m.Centroids) == 0 {
		return nil, ErrNotFitted
	}
	if len(X[0]) != len(m.Centroids[0]) {
		return nil, ErrDimension
	}
	return nearest(X, m.Centroids), nil
}

// lloyd alternates assignment and centroid update until no assignment
// changes or maxIter is reached. centroids is updated in place.
func lloyd(ctx context.Context, X [][]float64, centroids [][]float64, maxIter int) ([]int, int, error) {
	n := len(X)
	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}

	iters := 0
	for it := 0; it < maxIter; it++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		iters = it + 1

		// === Assignment Step ===
		next := nearest(X, centroids)
		changed := false
		for i := range next {
			if next[i] != assign[i] {
				changed = true
				break
			}
		}
		assign = next
		if !changed {
			break
		}

		// === Update Step ===
		updateCentroids(X, assign, centroids)
	}
	return assign, iters, nil
}

// nearest returns the index of the closest centroid for every row.
// Rows are split across workers; each worker writes a disjoint range.
func nearest(X [][]float64, centroids [][]float64) []int {
	out := make([]int, len(X))
	core.ParallelRows(len(X), func(start, end int) {
		for i := start; i < end; i++ {
			best, bestdSquared := 0, math.MaxFloat64
			for k := range centroids {
				dSquared := core.SqEuclidean(X[i], centroids[k])
				if dSquared < bestdSquared {
					bestdSquared = dSquared
					best = k
				}
			}
			out[i] = best
		}
	})
	return out
}

// updateCentroids moves each centroid to the mean of its members. An empty
// cluster is re-seeded on the point farthest from its own centroid.
func updateCentroids(X [][]float64, assign []int, centroids [][]float64) {
	k, p := len(centroids), len(X[0])
	sums := make([][]float64, k)
	counts := make([]int, k)
	for c := 0; c < k; c++ {
		sums[c] = make([]float64, p)
	}
	for i, c := range assign {
		counts[c]++
		for j := 0; j < p; j++ {
			sums[c][j] += X[i][j]
		}
	}

	var empty []int
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			empty = append(empty, c)
			continue
		}
		for j := 0; j < p; j++ {
			centroids[c][j] = sums[c][j] / float64(counts[c])
		}
	}
	if len(empty) == 0 {
		return
	}

	taken := make(map[int]bool)
	for _, c := range empty {
		far, farD := -1, 0.0
		for i, owner := range assign {
			if taken[i] || counts[owner] < 2 {
				continue
			}
			if d := core.SqEuclidean(X[i], centroids[owner]); d > farD {
				far, farD = i, d
			}
		}
		if far < 0 {
			// every point sits on its centroid; nothing to split
			return
		}
		taken[far] = true
		counts[assign[far]]--
		copy(centroids[c], X[far])
	}
}

// initCenters picks K starting centroids with k-means++ seeding.
func (m *KMeans) initCenters(X [][]float64, rng *rand.Rand) [][]float64 {
	n := len(X)
	centroids := make([][]float64, 0, m.K)

	// First center: pick randomly
	centroids = append(centroids, append([]float64{}, X[rng.Intn(n)]...))

	// Remaining centers
	distSq := make([]float64, n)
	for k := 1; k < m.K; k++ {
		total := 0.0
		for i, x := range X {
			minDist := math.MaxFloat64
			for _, c := range centroids {
				if d2 := core.SqEuclidean(x, c); d2 < minDist {
					minDist = d2
				}
			}
			distSq[i] = minDist
			total += minDist
		}

		pick := -1
		if total > 0 {
			r := rng.Float64() * total
			cumulative := 0.0
			for i, d2 := range distSq {
				if d2 == 0 {
					continue
				}
				cumulative += d2
				pick = i
				if cumulative >= r {
					break
				}
			}
		} else {
			// all remaining points coincide with chosen centers
			pick = rng.Intn(n)
		}
		centroids = append(centroids, append([]float64{}, X[pick]...))
	}
	return centroids
}

func inertia(X [][]float64, labels []int, centroids [][]float64) float64 {
	s := 0.0
	for i, c := range labels {
		s += core.SqEuclidean(X[i], centroids[c])
	}
	return s
}

func checkRectangular(X [][]float64) error {
	p := len(X[0])
	for _, row := range X {
		if len(row) != p {
			return ErrRaggedFeature
		}
	}
	return nil
}
