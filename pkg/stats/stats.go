package stats

import (
	"math"
)

// Mean computes the average of a slice.
func Mean(x []float64) float64 {
	n := len(x)
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range x {
		sum += v
	}
	return sum / float64(n)
}

// Variance computes the population variance of a slice as the mean squared
// deviation from the mean. A constant slice has variance exactly 0.
func Variance(x []float64) float64 {
	if lo, hi := MinMax(x); lo == hi {
		return 0
	}
	mean := Mean(x)
	ss := 0.0
	for _, v := range x {
		d := v - mean
		ss += d * d
	}
	return ss / float64(len(x))
}

// Std computes the standard deviation of a slice.
func Std(x []float64) float64 {
	return math.Sqrt(Variance(x))
}

// MinMax returns the minimum and maximum values in the slice.
func MinMax(x []float64) (float64, float64) {
	if len(x) == 0 {
		return 0, 0
	}
	min, max := x[0], x[0]
	for i := 1; i < len(x); i++ {
		if x[i] < min {
			min = x[i]
		} else if x[i] > max {
			max = x[i]
		}
	}
	return min, max
}

// Column extracts column j of X.
func Column(X [][]float64, j int) []float64 {
	col := make([]float64, len(X))
	for i := range X {
		col[i] = X[i][j]
	}
	return col
}

// ModeString returns the most frequent value and its count. Ties go to the
// value that appears first in x. An empty slice yields ("", 0).
func ModeString(x []string) (string, int) {
	counts := make(map[string]int, len(x))
	order := make([]string, 0)
	for _, v := range x {
		if _, ok := counts[v]; !ok {
			order = append(order, v)
		}
		counts[v]++
	}

	mode, best := "", 0
	for _, v := range order {
		if counts[v] > best {
			mode, best = v, counts[v]
		}
	}
	return mode, best
}
