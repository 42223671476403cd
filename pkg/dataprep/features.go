package dataprep

// SelectColumn extracts column col from the given rows, in the order of
// indices. A negative col yields fill for every row.
func SelectColumn(rows [][]string, indices []int, col int, fill string) []string {
	out := make([]string, len(indices))
	for i, idx := range indices {
		if col < 0 {
			out[i] = fill
			continue
		}
		out[i] = rows[idx][col]
	}
	return out
}
