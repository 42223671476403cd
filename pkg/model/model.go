package model

import "context"

// Clusterer partitions rows into clusters.
type Clusterer interface {
	Fit(ctx context.Context, X [][]float64) error
	Predict(X [][]float64) ([]int, error) // cluster assignments
}

// Embedder maps rows into a low-dimensional space for plotting.
type Embedder interface {
	FitTransform(ctx context.Context, X [][]float64) ([][]float64, error)
}

var (
	_ Clusterer = (*KMeans)(nil)
	_ Embedder  = (*PCA)(nil)
	_ Embedder  = (*TSNE)(nil)
)
