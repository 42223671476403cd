package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/snufilmfest/ottcluster/internal/logging"
	"github.com/snufilmfest/ottcluster/pkg/data"
	"github.com/snufilmfest/ottcluster/pkg/dataprep"
	"github.com/snufilmfest/ottcluster/pkg/report"
	"github.com/snufilmfest/ottcluster/pkg/survey"
)

// surveyCSV builds n respondents drawn from a few distinct taste profiles.
func surveyCSV(n int) string {
	profiles := [][]string{
		{"Action", "Crime", "Netflix", "Hindi"},
		{"Romance", "Comedy", "Prime Video", "Tamil"},
		{"Horror", "Thriller", "Hotstar", "English"},
		{"Drama", "Documentary", "Netflix", "Telugu"},
	}
	var b strings.Builder
	b.WriteString("Timestamp,Favourite Movie Genre,Favourite Series Genre,OTT Platform,Preferred Language\n")
	for i := 0; i < n; i++ {
		p := profiles[i%len(profiles)]
		// vary one field so rows are not all exact duplicates
		lang := p[3]
		if i%5 == 0 {
			lang = "English"
		}
		fmt.Fprintf(&b, "2024-01-%02d,%s,%s,%s,%s\n", i%28+1, p[0], p[1], p[2], lang)
	}
	return b.String()
}

func testOptions(t *testing.T) Options {
	t.Helper()
	opts := DefaultOptions()
	opts.OutputDir = t.TempDir()
	opts.ProjectionIter = 300
	return opts
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return recs
}

type recorder struct {
	mu       sync.Mutex
	outcomes []Outcome
	reports  []*report.Report
}

func (r *recorder) RunFinished(o Outcome, _ time.Duration, rep *report.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	r.reports = append(r.reports, rep)
}

func TestRun_ClampsK(t *testing.T) {
	opts := testOptions(t)
	opts.K = 100

	rep, err := New(opts, nil).Run(context.Background(), strings.NewReader(surveyCSV(20)))
	require.NoError(t, err)

	assert.Equal(t, 19, rep.K)
	assert.Equal(t, 100, rep.RequestedK)
	assert.Contains(t, rep.Notes, "Requested k=100 adjusted to k=19 (valid range 2-19 for 20 respondents).")
	assert.GreaterOrEqual(t, rep.Silhouette, -1.0)
	assert.LessOrEqual(t, rep.Silhouette, 1.0)

	total := 0
	for label, c := range rep.Summary {
		assert.GreaterOrEqual(t, label, 0)
		assert.Less(t, label, 19)
		total += c.Count
	}
	assert.Equal(t, 20, total)
}

func TestRun_EndToEnd(t *testing.T) {
	in := strings.Join([]string{
		"Name,Movie Genre,Series Genre,OTT,Language",
		"a,Action,Crime,Netflix,Hindi",
		"b,Action,Crime,netflix,Hindi",
		"c,Action,Crime,,Hindi",
		"d,Romance,Comedy,Prime,Tamil",
		"e,Romance,Comedy,Prime,Tamil",
		"f,Romance,Comedy,Prime,Tamil",
	}, "\n")

	opts := testOptions(t)
	opts.K = 2
	opts.RunID = "e2e"
	tl := logging.NewTestLogger()
	rec := &recorder{}

	rep, err := New(opts, tl.Logger, rec).Run(context.Background(), strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, "e2e", rep.RunID)
	assert.Equal(t, 2, rep.K)
	assert.Equal(t, 6, rep.Rows)
	assert.Equal(t, 6, rep.ClusteredRows)
	assert.True(t, strings.HasPrefix(rep.Notes, "Auto-mapped columns and applied one-hot encoding; KMeans clustering."))
	assert.Equal(t, map[survey.Role]string{
		survey.MovieGenre:  "Movie Genre",
		survey.SeriesGenre: "Series Genre",
		survey.OTTPlatform: "OTT",
		survey.ContentLang: "Language",
	}, rep.Columns)
	assert.Greater(t, rep.Silhouette, 0.5)

	require.Len(t, rep.Summary, 2)
	byMovie := map[string]int{}
	for _, c := range rep.Summary {
		byMovie[c.TopMovieGenre] = c.Count
		assert.Equal(t, 0.5, c.Pct)
		if c.TopMovieGenre == "Action" {
			assert.Equal(t, "Netflix", c.TopOTT)
			assert.Equal(t, "Hindi", c.TopContentLang)
		}
	}
	assert.Equal(t, map[string]int{"Action": 3, "Romance": 3}, byMovie)

	assert.Equal(t, filepath.Join(opts.OutputDir, "plot_tsne_e2e.png"), rep.PlotPath)
	assert.FileExists(t, rep.PlotPath)

	recs := readCSV(t, rep.CSVPath)
	require.Len(t, recs, 7)
	assert.Equal(t, []string{"Name", "Movie Genre", "Series Genre", "OTT", "Language", "cluster"}, recs[0])
	assert.Equal(t, "", recs[3][3], "original cells are written unchanged")

	table, err := data.ReadTable(strings.NewReader(in), data.Options{})
	require.NoError(t, err)
	cleaned, err := dataprep.Clean(table, survey.Resolve(table.Headers, survey.DefaultRules), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Netflix", "Netflix", survey.Unknown, "Prime", "Prime", "Prime"}, cleaned.Column(survey.OTTPlatform))
	assert.Equal(t, recs[1][5], recs[3][5])
	assert.NotEqual(t, recs[1][5], recs[4][5])

	tl.AssertLogged(t, zapcore.InfoLevel, "run finished")
	tl.AssertField(t, "run finished", "run.id", "e2e")
	tl.AssertLogged(t, logging.TraceLevel, "stage start")
	tl.AssertField(t, "stage start", "stage", "project")
	tl.AssertField(t, "cluster profile", "top_movie_genre", "Action")
	tl.AssertField(t, "cluster profile", "top_movie_genre", "Romance")
	assert.Equal(t, []Outcome{OutcomeOK}, rec.outcomes)
	assert.Same(t, rep, rec.reports[0])
}

func TestRun_Deterministic(t *testing.T) {
	opts := testOptions(t)
	opts.Projection = ProjectNone

	opts.RunID = "one"
	a, err := New(opts, nil).Run(context.Background(), strings.NewReader(surveyCSV(24)))
	require.NoError(t, err)
	opts.RunID = "two"
	b, err := New(opts, nil).Run(context.Background(), strings.NewReader(surveyCSV(24)))
	require.NoError(t, err)

	assert.Equal(t, readCSV(t, a.CSVPath), readCSV(t, b.CSVPath))
	assert.Equal(t, a.Summary, b.Summary)
	assert.Equal(t, a.Silhouette, b.Silhouette)
	assert.Empty(t, a.PlotPath)
}

func TestRun_Notes(t *testing.T) {
	t.Run("sampling leaves unsampled rows unlabelled", func(t *testing.T) {
		opts := testOptions(t)
		opts.SampleLimit = 10
		opts.Projection = ProjectPCA

		rep, err := New(opts, nil).Run(context.Background(), strings.NewReader(surveyCSV(20)))
		require.NoError(t, err)
		assert.Contains(t, rep.Notes, "Sampled 10 of 20 rows.")
		assert.Equal(t, 10, rep.ClusteredRows)
		assert.Contains(t, filepath.Base(rep.PlotPath), "plot_pca_")

		empty := 0
		for _, rec := range readCSV(t, rep.CSVPath)[1:] {
			if rec[len(rec)-1] == "" {
				empty++
			}
		}
		assert.Equal(t, 10, empty)
	})

	t.Run("unmatched columns and unusable rows", func(t *testing.T) {
		in := "Movie Genre,Platform\nAction,Netflix\nNA,none\nDrama,Prime\nAction,Prime\nComedy,Netflix\n"
		opts := testOptions(t)
		opts.K = 2
		opts.Projection = ProjectNone

		rep, err := New(opts, nil).Run(context.Background(), strings.NewReader(in))
		require.NoError(t, err)
		assert.Contains(t, rep.Notes, "No column found for series_genre, content_lang; treated as Unknown.")
		assert.Contains(t, rep.Notes, "Excluded 1 rows with no usable values.")
		assert.Equal(t, 5, rep.Rows)
		assert.Equal(t, 4, rep.ClusteredRows)
	})

	t.Run("ordinal encoding", func(t *testing.T) {
		opts := testOptions(t)
		opts.Encoding = dataprep.Ordinal
		opts.Scaling = dataprep.ScaleMinMax
		opts.Projection = ProjectNone

		rep, err := New(opts, nil).Run(context.Background(), strings.NewReader(surveyCSV(12)))
		require.NoError(t, err)
		assert.Contains(t, rep.Notes, "applied ordinal encoding")
	})
}

// randomSurveyCSV draws every answer independently, so clusters only
// settle after several Lloyd iterations.
func randomSurveyCSV(n int, seed int64) string {
	rng := rand.New(rand.NewSource(seed))
	choices := [][]string{
		{"Action", "Romance", "Horror", "Drama", "Comedy", "Thriller"},
		{"Crime", "Comedy", "Thriller", "Documentary", "Reality"},
		{"Netflix", "Prime Video", "Hotstar", "SonyLIV", "Zee5"},
		{"Hindi", "Tamil", "Telugu", "English", "Malayalam", "Bengali"},
	}
	var b strings.Builder
	b.WriteString("Movie Genre,Series Genre,OTT Platform,Language\n")
	for i := 0; i < n; i++ {
		cells := make([]string, len(choices))
		for j, c := range choices {
			cells[j] = c[rng.Intn(len(c))]
		}
		b.WriteString(strings.Join(cells, ",") + "\n")
	}
	return b.String()
}

func TestNew_ZeroOptionsUseDefaults(t *testing.T) {
	t.Run("fills zero fields", func(t *testing.T) {
		p := New(Options{OutputDir: t.TempDir()}, nil)
		d := DefaultOptions()

		assert.Equal(t, d.K, p.opts.K)
		assert.Equal(t, d.MaxIter, p.opts.MaxIter)
		assert.Equal(t, d.NInit, p.opts.NInit)
		assert.Equal(t, d.Seed, p.opts.Seed)
		assert.Equal(t, d.Perplexity, p.opts.Perplexity)
		assert.Equal(t, d.ProjectionIter, p.opts.ProjectionIter)
		assert.Equal(t, d.ProjectionMaxRows, p.opts.ProjectionMaxRows)
		assert.Equal(t, d.Rules, p.opts.Rules)
	})

	t.Run("keeps explicit values", func(t *testing.T) {
		p := New(Options{K: 3, MaxIter: 7, NInit: 2, Seed: 9, Perplexity: 5, ProjectionIter: 50, ProjectionMaxRows: 100}, nil)
		assert.Equal(t, Options{K: 3, MaxIter: 7, NInit: 2, Seed: 9, Perplexity: 5, ProjectionIter: 50, ProjectionMaxRows: 100, Rules: survey.DefaultRules}, p.opts)
	})

	t.Run("partial options cluster like the defaults", func(t *testing.T) {
		in := randomSurveyCSV(300, 11)

		bare, err := New(Options{K: 5, OutputDir: t.TempDir(), Projection: ProjectNone, RunID: "bare"}, nil).
			Run(context.Background(), strings.NewReader(in))
		require.NoError(t, err)

		opts := DefaultOptions()
		opts.K = 5
		opts.OutputDir = t.TempDir()
		opts.Projection = ProjectNone
		opts.RunID = "full"
		full, err := New(opts, nil).Run(context.Background(), strings.NewReader(in))
		require.NoError(t, err)

		assert.Equal(t, full.Summary, bare.Summary)
		assert.Equal(t, full.Silhouette, bare.Silhouette)
		assert.Equal(t, full.Notes, bare.Notes)
	})
}

func TestRun_ProjectionRowCap(t *testing.T) {
	t.Run("plots a sample above the cap", func(t *testing.T) {
		opts := testOptions(t)
		opts.Projection = ProjectPCA
		opts.ProjectionMaxRows = 15

		rep, err := New(opts, nil).Run(context.Background(), strings.NewReader(surveyCSV(40)))
		require.NoError(t, err)
		assert.Contains(t, rep.Notes, "Plotted a sample of 15 of 40 respondents.")
		assert.FileExists(t, rep.PlotPath)
		assert.Equal(t, 40, rep.ClusteredRows, "clustering still uses every row")
	})

	t.Run("plots every row at the cap", func(t *testing.T) {
		opts := testOptions(t)
		opts.Projection = ProjectPCA
		opts.ProjectionMaxRows = 40

		rep, err := New(opts, nil).Run(context.Background(), strings.NewReader(surveyCSV(40)))
		require.NoError(t, err)
		assert.NotContains(t, rep.Notes, "Plotted a sample")
		assert.FileExists(t, rep.PlotPath)
	})

	t.Run("sample note is dropped when plotting fails", func(t *testing.T) {
		opts := testOptions(t)
		opts.Projection = "umap"
		opts.ProjectionMaxRows = 15

		rep, err := New(opts, nil).Run(context.Background(), strings.NewReader(surveyCSV(40)))
		require.NoError(t, err)
		assert.NotContains(t, rep.Notes, "Plotted a sample")
		assert.Contains(t, rep.Notes, "Visualization unavailable")
	})
}

func TestRun_VisualizationFailureIsRecovered(t *testing.T) {
	opts := testOptions(t)
	opts.Projection = "umap"
	tl := logging.NewTestLogger()

	rep, err := New(opts, tl.Logger).Run(context.Background(), strings.NewReader(surveyCSV(12)))
	require.NoError(t, err)
	assert.Empty(t, rep.PlotPath)
	assert.Contains(t, rep.Notes, "Visualization unavailable")
	assert.FileExists(t, rep.CSVPath)
	tl.AssertLogged(t, zapcore.WarnLevel, "plot omitted")
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		mutate  func(*Options)
		kind    error
		outcome Outcome
	}{
		{"empty input", "", nil, ErrData, OutcomeDataError},
		{"header only", "Movie Genre,OTT\n", nil, ErrData, OutcomeDataError},
		{"single respondent", "Movie Genre,OTT\nAction,Netflix\n", nil, ErrData, OutcomeDataError},
		{"no usable rows", "Movie Genre,OTT\nNA,\n-,none\n", nil, ErrData, OutcomeDataError},
		{"two respondents", "Movie Genre,OTT\nAction,Netflix\nDrama,Prime\n", nil, ErrParameter, OutcomeParameterError},
		{"unknown encoding", surveyCSV(8), func(o *Options) { o.Encoding = "frequency" }, ErrParameter, OutcomeParameterError},
		{"unknown scaling", surveyCSV(8), func(o *Options) { o.Scaling = "log" }, ErrParameter, OutcomeParameterError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(t)
			if tt.mutate != nil {
				tt.mutate(&opts)
			}
			rec := &recorder{}

			rep, err := New(opts, nil, rec).Run(context.Background(), strings.NewReader(tt.in))
			require.Error(t, err)
			assert.Nil(t, rep)
			assert.ErrorIs(t, err, tt.kind)
			assert.Equal(t, []Outcome{tt.outcome}, rec.outcomes)

			entries, err := os.ReadDir(opts.OutputDir)
			require.NoError(t, err)
			assert.Empty(t, entries, "failed runs leave no files")
		})
	}

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := New(testOptions(t), nil).Run(ctx, strings.NewReader(surveyCSV(8)))
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, OutcomeCanceled, OutcomeOf(err))
	})
}

func TestRunUsesContextLogger(t *testing.T) {
	tl := logging.NewTestLogger()
	ctx := logging.WithLogger(context.Background(), tl.Logger)
	opts := testOptions(t)
	opts.Projection = ProjectNone

	_, err := Run(ctx, strings.NewReader(surveyCSV(8)), opts)
	require.NoError(t, err)
	tl.AssertLogged(t, zapcore.InfoLevel, "run finished")
}

func TestClampK(t *testing.T) {
	tests := []struct {
		requested, n int
		want         int
		note         string
	}{
		{4, 20, 4, ""},
		{100, 20, 19, "Requested k=100 adjusted to k=19 (valid range 2-19 for 20 respondents)."},
		{1, 10, 2, "Requested k=1 adjusted to k=2 (valid range 2-9 for 10 respondents)."},
		{-3, 3, 2, "Requested k=-3 adjusted to k=2 (valid range 2-2 for 3 respondents)."},
		{2, 3, 2, ""},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("k=%d n=%d", tt.requested, tt.n), func(t *testing.T) {
			k, note, err := ClampK(tt.requested, tt.n)
			require.NoError(t, err)
			assert.Equal(t, tt.want, k)
			assert.Equal(t, tt.note, note)
		})
	}

	_, _, err := ClampK(4, 2)
	assert.ErrorIs(t, err, ErrParameter)
	_, _, err = ClampK(4, 1)
	assert.ErrorIs(t, err, ErrData)
}
