package data

import (
	"math/rand"
	"sort"
)

// Sample returns the row indices to keep when at most limit of n rows may be
// used. The choice is a seeded random subset, returned in ascending order so
// the original row order survives. limit <= 0 or limit >= n keeps every row.
func Sample(n, limit int, seed int64) []int {
	if limit <= 0 || limit >= n {
		idx := make([]int, n)
		for i := range n {
			idx[i] = i
		}
		return idx
	}

	rng := rand.New(rand.NewSource(seed))
	idx := rng.Perm(n)[:limit]
	sort.Ints(idx)
	return idx
}
