package core

import (
	"runtime"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// Matrix is a dense row-major matrix.
type Matrix struct {
	R, C int
	Data []float64
}

// NewMatrix allocates a zero matrix.
func NewMatrix(r, c int) *Matrix {
	return &Matrix{R: r, C: c, Data: make([]float64, r*c)}
}

// At returns element (i, j).
func (m *Matrix) At(i, j int) float64 { return m.Data[i*m.C+j] }

// Set sets element (i, j).
func (m *Matrix) Set(i, j int, v float64) { m.Data[i*m.C+j] = v }

// Row returns row i as a slice sharing the matrix storage.
func (m *Matrix) Row(i int) []float64 { return m.Data[i*m.C : (i+1)*m.C] }

// SqEuclidean returns the squared Euclidean distance between a and b.
func SqEuclidean(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

// Euclidean returns the Euclidean distance between a and b.
func Euclidean(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}

// PairwiseSqDistances builds the symmetric n x n matrix of squared Euclidean
// distances between the rows of X. Rows are split across GOMAXPROCS workers.
func PairwiseSqDistances(X [][]float64) *Matrix {
	n := len(X)
	D := NewMatrix(n, n)
	ParallelRows(n, func(start, end int) {
		for i := start; i < end; i++ {
			for j := 0; j < n; j++ {
				if i == j {
					continue
				}
				D.Data[i*n+j] = SqEuclidean(X[i], X[j])
			}
		}
	})
	return D
}

// ParallelRows splits [0, n) into contiguous chunks, one per worker, and
// blocks until fn has run over every chunk. Chunks never overlap, so fn may
// write to per-row state without locking.
func ParallelRows(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}
	rowsPerWorker := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * rowsPerWorker
		end := min(start+rowsPerWorker, n)
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}
