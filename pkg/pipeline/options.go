package pipeline

import (
	"github.com/snufilmfest/ottcluster/pkg/dataprep"
	"github.com/snufilmfest/ottcluster/pkg/survey"
)

// Projection methods for the cluster plot.
const (
	ProjectTSNE = "tsne"
	ProjectPCA  = "pca"
	ProjectNone = "none"
)

// DefaultK is used when no k is requested.
const DefaultK = 4

// DefaultProjectionMaxRows bounds the quadratic memory of the exact t-SNE.
const DefaultProjectionMaxRows = 5000

// Options configures one run.
type Options struct {
	// K is the requested number of clusters; 0 selects DefaultK. Values
	// outside [2, N-1] are clamped with a note. Other zero numeric fields
	// also select their DefaultOptions value.
	K int
	// SampleLimit caps the rows clustered; 0 uses every row.
	SampleLimit int
	Delimiter   rune
	Rules       []survey.Rule

	Encoding dataprep.Method
	Scaling  dataprep.Scaling

	MaxIter int
	NInit   int
	Seed    int64

	Projection     string
	Perplexity     float64
	ProjectionIter int
	// ProjectionMaxRows caps the rows embedded for the plot. Larger surveys
	// are plotted from a seeded sample; clustering still uses every row.
	ProjectionMaxRows int

	OutputDir string
	// RunID names the output files; a uuid is generated when empty.
	RunID string
}

// DefaultOptions mirrors the service defaults.
func DefaultOptions() Options {
	return Options{
		K:              DefaultK,
		Rules:          survey.DefaultRules,
		Encoding:       dataprep.OneHot,
		Scaling:        dataprep.ScaleNone,
		MaxIter:        300,
		NInit:          10,
		Seed:           42,
		Projection:     ProjectTSNE,
		Perplexity:     30,
		ProjectionIter: 1000,
		OutputDir:      "uploads",

		ProjectionMaxRows: DefaultProjectionMaxRows,
	}
}

// withDefaults fills every zero numeric field from DefaultOptions, so a
// partially built Options behaves like the service defaults. A zero Seed
// selects the default seed as well.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.K == 0 {
		o.K = d.K
	}
	if o.MaxIter <= 0 {
		o.MaxIter = d.MaxIter
	}
	if o.NInit <= 0 {
		o.NInit = d.NInit
	}
	if o.Seed == 0 {
		o.Seed = d.Seed
	}
	if o.Perplexity <= 0 {
		o.Perplexity = d.Perplexity
	}
	if o.ProjectionIter <= 0 {
		o.ProjectionIter = d.ProjectionIter
	}
	if o.ProjectionMaxRows <= 0 {
		o.ProjectionMaxRows = d.ProjectionMaxRows
	}
	if o.Rules == nil {
		o.Rules = d.Rules
	}
	return o
}
