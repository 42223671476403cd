package stats

// StandardizeData scales each column to zero mean and unit variance.
// Constant columns become all zeros.
func StandardizeData(X [][]float64) [][]float64 {
	if len(X) == 0 {
		return X
	}
	rows, cols := len(X), len(X[0])
	out := make([][]float64, rows)
	means := make([]float64, cols)
	stds := make([]float64, cols)
	for j := range cols {
		col := Column(X, j)
		if lo, hi := MinMax(col); lo == hi {
			continue
		}
		means[j] = Mean(col)
		stds[j] = Std(col)
	}

	for i := range rows {
		out[i] = make([]float64, cols)
		for j := range cols {
			if stds[j] != 0 {
				out[i][j] = (X[i][j] - means[j]) / stds[j]
			}
		}
	}
	return out
}

// MinMaxScale scales each column to [0, 1]. Constant columns become zeros.
func MinMaxScale(X [][]float64) [][]float64 {
	if len(X) == 0 {
		return X
	}
	rows, cols := len(X), len(X[0])
	out := make([][]float64, rows)
	mins := make([]float64, cols)
	maxs := make([]float64, cols)
	for j := range cols {
		mins[j], maxs[j] = MinMax(Column(X, j))
	}
	for i := range rows {
		out[i] = make([]float64, cols)
		for j := range cols {
			if maxs[j] != mins[j] {
				out[i][j] = (X[i][j] - mins[j]) / (maxs[j] - mins[j])
			}
		}
	}
	return out
}
