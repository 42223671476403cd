// Package pipeline runs the survey clustering workflow end to end: load,
// resolve columns, clean, encode, cluster, project, summarise and report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/snufilmfest/ottcluster/internal/logging"
	"github.com/snufilmfest/ottcluster/pkg/data"
	"github.com/snufilmfest/ottcluster/pkg/dataprep"
	"github.com/snufilmfest/ottcluster/pkg/model"
	"github.com/snufilmfest/ottcluster/pkg/report"
	"github.com/snufilmfest/ottcluster/pkg/summary"
	"github.com/snufilmfest/ottcluster/pkg/survey"
)

// Observer is notified once per finished run. rep is nil unless the run
// succeeded.
type Observer interface {
	RunFinished(outcome Outcome, elapsed time.Duration, rep *report.Report)
}

// Pipeline chains the stages of one run.
type Pipeline struct {
	opts      Options
	logger    *logging.Logger
	observers []Observer
	assembler *report.Assembler
}

// New returns a Pipeline. A nil logger discards output.
func New(opts Options, logger *logging.Logger, observers ...Observer) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	opts = opts.withDefaults()
	return &Pipeline{
		opts:      opts,
		logger:    logger.Named("pipeline"),
		observers: observers,
		assembler: report.NewAssembler(opts.OutputDir),
	}
}

// Run executes one run with opts, logging to the logger stored in ctx.
func Run(ctx context.Context, r io.Reader, opts Options) (*report.Report, error) {
	return New(opts, logging.FromContext(ctx)).Run(ctx, r)
}

// state is the data handed from stage to stage.
type state struct {
	runID      string
	table      *data.Table
	schema     *survey.Schema
	survey     *dataprep.Survey
	encoded    *dataprep.Encoded
	features   [][]float64
	k          int
	requested  int
	labels     []int
	silhouette float64
	summary    map[int]summary.Cluster
	plotPath   string
	notes      []string
	report     *report.Report
}

type stage struct {
	name string
	fn   func(ctx context.Context, st *state) error
}

// Run reads a survey table from r and produces the Report. Output files of
// a failed run are removed.
func (p *Pipeline) Run(ctx context.Context, r io.Reader) (rep *report.Report, err error) {
	start := time.Now()
	st := &state{runID: p.opts.RunID}
	if st.runID == "" {
		st.runID = uuid.NewString()
	}
	ctx = logging.WithRunID(ctx, st.runID)

	defer func() {
		if err != nil {
			p.assembler.Remove(st.plotPath)
			p.logger.Info(ctx, "run failed", zap.Error(err), zap.String("outcome", string(OutcomeOf(err))))
		}
		for _, o := range p.observers {
			o.RunFinished(OutcomeOf(err), time.Since(start), rep)
		}
	}()

	stages := []stage{
		{"load", func(_ context.Context, st *state) error { return p.load(r, st) }},
		{"resolve", p.resolve},
		{"clean", p.clean},
		{"encode", p.encode},
		{"cluster", p.cluster},
		{"summarize", p.summarize},
		{"project", p.project},
		{"assemble", p.assemble},
	}
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t0 := time.Now()
		p.logger.Trace(ctx, "stage start", zap.String("stage", s.name))
		if err := s.fn(ctx, st); err != nil {
			return nil, err
		}
		p.logger.Debug(ctx, "stage done", zap.String("stage", s.name), zap.Duration("elapsed", time.Since(t0)))
	}

	p.logger.Info(ctx, "run finished",
		zap.Int("k", st.k),
		zap.Int("rows", st.table.Len()),
		zap.Int("clustered_rows", st.survey.Len()),
		zap.Float64("silhouette", st.silhouette),
		zap.Duration("elapsed", time.Since(start)),
	)
	return st.report, nil
}

func (p *Pipeline) load(r io.Reader, st *state) error {
	t, err := data.ReadTable(r, data.Options{Delimiter: p.opts.Delimiter})
	if err != nil {
		return dataErr(err)
	}
	st.table = t
	if t.Skipped > 0 {
		st.notes = append(st.notes, fmt.Sprintf("Skipped %d malformed lines.", t.Skipped))
	}
	return nil
}

func (p *Pipeline) resolve(ctx context.Context, st *state) error {
	st.schema = survey.Resolve(st.table.Headers, p.opts.Rules)

	if fb := st.schema.Fallbacks(); len(fb) > 0 {
		names := make([]string, len(fb))
		for i, r := range fb {
			names[i] = string(r)
		}
		st.notes = append(st.notes, fmt.Sprintf("No column found for %s; treated as %s.", strings.Join(names, ", "), survey.Unknown))
		p.logger.Debug(ctx, "roles without a column", zap.Strings("roles", names))
	}
	return nil
}

func (p *Pipeline) clean(_ context.Context, st *state) error {
	rows := data.Sample(st.table.Len(), p.opts.SampleLimit, p.opts.Seed)
	if len(rows) < st.table.Len() {
		st.notes = append(st.notes, fmt.Sprintf("Sampled %d of %d rows.", len(rows), st.table.Len()))
	}

	s, err := dataprep.Clean(st.table, st.schema, rows)
	if err != nil {
		return dataErr(err)
	}
	if dropped := len(rows) - s.Len(); dropped > 0 {
		st.notes = append(st.notes, fmt.Sprintf("Excluded %d rows with no usable values.", dropped))
	}
	st.survey = s

	n := s.Len()
	if n < 2 {
		return dataErr(fmt.Errorf("%w: %d usable respondent(s)", model.ErrTooFewPoints, n))
	}

	st.requested = p.opts.K
	k, note, err := ClampK(st.requested, n)
	if err != nil {
		return err
	}
	st.k = k
	if note != "" {
		st.notes = append(st.notes, note)
	}
	return nil
}

func (p *Pipeline) encode(_ context.Context, st *state) error {
	enc, err := dataprep.Encode(st.survey, p.opts.Encoding)
	if err != nil {
		return paramErr(err)
	}
	X, err := enc.Features(p.opts.Scaling)
	if err != nil {
		return paramErr(err)
	}
	st.encoded, st.features = enc, X
	return nil
}

func (p *Pipeline) cluster(ctx context.Context, st *state) error {
	km := model.NewKMeans(st.k, p.opts.MaxIter)
	km.NInit = p.opts.NInit
	km.Seed = p.opts.Seed
	if err := km.Fit(ctx, st.features); err != nil {
		if isCanceled(err) {
			return err
		}
		return dataErr(err)
	}
	st.labels = km.Labels
	p.logger.Debug(ctx, "kmeans fitted",
		zap.Int("k", st.k),
		zap.Float64("inertia", km.Inertia),
		zap.Int("iterations", km.Iterations),
	)

	s, err := model.Silhouette(st.features, st.labels)
	switch {
	case errors.Is(err, model.ErrSilhouetteUndefined):
		st.notes = append(st.notes, "Silhouette score undefined for this partition; reported as 0.")
	case err != nil:
		return err
	default:
		st.silhouette = s
	}
	return nil
}

func (p *Pipeline) summarize(ctx context.Context, st *state) error {
	sum, err := summary.Summarize(st.survey, st.labels)
	if err != nil {
		return err
	}
	st.summary = sum
	for _, label := range summary.Labels(sum) {
		c := sum[label]
		p.logger.Debug(ctx, "cluster profile",
			zap.Int("cluster", label),
			zap.Int("count", c.Count),
			zap.String("top_movie_genre", c.Top(survey.MovieGenre)),
			zap.String("top_ott", c.Top(survey.OTTPlatform)),
		)
	}
	return nil
}

// project embeds the features in 2-D and plots them. Failures are recorded
// as a note and the run continues without a plot.
func (p *Pipeline) project(ctx context.Context, st *state) error {
	if p.opts.Projection == ProjectNone {
		return nil
	}

	mark := len(st.notes)
	path, err := p.plot(ctx, st)
	if err != nil {
		if isCanceled(err) {
			return err
		}
		st.notes = st.notes[:mark]
		err = visualErr(err)
		p.logger.Warn(ctx, "plot omitted", zap.Error(err))
		st.notes = append(st.notes, fmt.Sprintf("Visualization unavailable: %v.", err))
		return nil
	}
	st.plotPath = path
	return nil
}

func (p *Pipeline) plot(ctx context.Context, st *state) (string, error) {
	features, labels := st.features, st.labels
	if n := len(features); n > p.opts.ProjectionMaxRows {
		rows := data.Sample(n, p.opts.ProjectionMaxRows, p.opts.Seed)
		features, labels = make([][]float64, len(rows)), make([]int, len(rows))
		for i, r := range rows {
			features[i], labels[i] = st.features[r], st.labels[r]
		}
		st.notes = append(st.notes, fmt.Sprintf("Plotted a sample of %d of %d respondents.", len(rows), n))
	}

	var (
		emb   model.Embedder
		title string
	)
	switch p.opts.Projection {
	case "", ProjectTSNE:
		ts := model.NewTSNE(p.opts.Perplexity, p.opts.ProjectionIter, p.opts.Seed)
		emb, title = ts, fmt.Sprintf("t-SNE plot (k=%d)", st.k)
	case ProjectPCA:
		pca := model.NewPCA(2, 100)
		pca.Seed = p.opts.Seed
		emb, title = pca, fmt.Sprintf("PCA plot (k=%d)", st.k)
	default:
		return "", fmt.Errorf("unknown projection method %q", p.opts.Projection)
	}

	points, err := emb.FitTransform(ctx, features)
	if err != nil {
		return "", err
	}
	kind := p.opts.Projection
	if kind == "" {
		kind = ProjectTSNE
	}
	return p.assembler.WritePlot(st.runID, kind, title, points, labels)
}

func (p *Pipeline) assemble(ctx context.Context, st *state) error {
	notes := append([]string{baseNote(st.encoded.Method)}, st.notes...)
	rep, err := p.assembler.Assemble(ctx, report.Input{
		RunID:      st.runID,
		Table:      st.table,
		SourceRows: st.survey.SourceRows,
		Labels:     st.labels,
		K:          st.k,
		RequestedK: st.requested,
		Silhouette: st.silhouette,
		Notes:      notes,
		Columns:    st.schema.Names(),
		Summary:    st.summary,
		PlotPath:   st.plotPath,
	})
	if err != nil {
		return err
	}
	st.report = rep
	return nil
}

func baseNote(m dataprep.Method) string {
	enc := "one-hot"
	if m == dataprep.Ordinal {
		enc = "ordinal"
	}
	return fmt.Sprintf("Auto-mapped columns and applied %s encoding; KMeans clustering.", enc)
}

// ClampK fits a requested k into [2, n-1] for n respondents. A non-empty
// note describes any adjustment. n == 2 leaves no valid k.
func ClampK(requested, n int) (int, string, error) {
	if n < 2 {
		return 0, "", dataErr(fmt.Errorf("%w: %d respondent(s)", model.ErrTooFewPoints, n))
	}
	lo, hi := 2, n-1
	if hi < lo {
		return 0, "", paramErr(fmt.Errorf("no valid k for %d respondents: k must satisfy 2 <= k <= N-1", n))
	}
	k := min(max(requested, lo), hi)
	if k == requested {
		return k, "", nil
	}
	return k, fmt.Sprintf("Requested k=%d adjusted to k=%d (valid range %d-%d for %d respondents).", requested, k, lo, hi, n), nil
}
