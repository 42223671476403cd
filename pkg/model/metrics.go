package model

import (
	"errors"
	"fmt"
	"math"

	"github.com/snufilmfest/ottcluster/pkg/core"
)

// ErrSilhouetteUndefined is returned when the partition has fewer than two
// clusters or every point is its own cluster.
var ErrSilhouetteUndefined = errors.New("silhouette undefined for this partition")

// Silhouette returns the mean silhouette coefficient of labels over X using
// Euclidean distance. Members of singleton clusters score 0. Distances are
// computed per row, so memory stays linear in len(X).
func Silhouette(X [][]float64, labels []int) (float64, error) {
	n := len(X)
	if n != len(labels) {
		return 0, fmt.Errorf("silhouette: %d rows but %d labels", n, len(labels))
	}

	// dense cluster ids in first-seen order
	dense := make(map[int]int)
	ids := make([]int, n)
	for i, l := range labels {
		if _, ok := dense[l]; !ok {
			dense[l] = len(dense)
		}
		ids[i] = dense[l]
	}
	k := len(dense)
	if n < 3 || k < 2 || k > n-1 {
		return 0, fmt.Errorf("%w: %d points in %d clusters", ErrSilhouetteUndefined, n, k)
	}

	counts := make([]int, k)
	for _, c := range ids {
		counts[c]++
	}

	scores := make([]float64, n)
	core.ParallelRows(n, func(start, end int) {
		sums := make([]float64, k)
		for i := start; i < end; i++ {
			for c := range sums {
				sums[c] = 0
			}
			for j, c := range ids {
				if j != i {
					sums[c] += core.Euclidean(X[i], X[j])
				}
			}

			own := ids[i]
			if counts[own] == 1 {
				scores[i] = 0
				continue
			}
			a := sums[own] / float64(counts[own]-1)
			b := math.MaxFloat64
			for c := 0; c < k; c++ {
				if c == own {
					continue
				}
				if m := sums[c] / float64(counts[c]); m < b {
					b = m
				}
			}
			if den := math.Max(a, b); den > 0 {
				scores[i] = (b - a) / den
			}
		}
	})

	s := 0.0
	for _, v := range scores {
		s += v
	}
	s /= float64(n)
	return math.Max(-1, math.Min(1, s)), nil
}
