// Package metrics exposes Prometheus collectors for clustering runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snufilmfest/ottcluster/pkg/pipeline"
	"github.com/snufilmfest/ottcluster/pkg/report"
)

// Metrics holds Prometheus metrics for pipeline runs.
//
// Metrics:
//   - ottcluster_runs_total{outcome} - Count of finished runs
//   - ottcluster_run_duration_seconds{outcome} - Histogram of run durations
//   - ottcluster_respondents - Respondents clustered by successful runs
//   - ottcluster_silhouette - Silhouette score of successful runs
//   - ottcluster_plots_omitted_total - Successful runs that produced no plot
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal    *prometheus.CounterVec
	RunDuration  *prometheus.HistogramVec
	Respondents  prometheus.Histogram
	Silhouette   prometheus.Histogram
	PlotsOmitted prometheus.Counter
}

var _ pipeline.Observer = (*Metrics)(nil)

// New creates the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ottcluster_runs_total",
				Help: "Total number of clustering runs by outcome",
			},
			[]string{"outcome"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ottcluster_run_duration_seconds",
				Help:    "Duration of clustering runs in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),
		Respondents: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ottcluster_respondents",
			Help:    "Respondents clustered per successful run",
			Buckets: prometheus.ExponentialBuckets(10, 4, 6),
		}),
		Silhouette: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ottcluster_silhouette",
			Help:    "Silhouette score per successful run",
			Buckets: prometheus.LinearBuckets(-1, 0.25, 9),
		}),
		PlotsOmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "ottcluster_plots_omitted_total",
			Help: "Successful runs that finished without a plot",
		}),
	}
}

// RunFinished implements pipeline.Observer.
func (m *Metrics) RunFinished(outcome pipeline.Outcome, elapsed time.Duration, rep *report.Report) {
	m.RunsTotal.WithLabelValues(string(outcome)).Inc()
	m.RunDuration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
	if rep == nil {
		return
	}
	m.Respondents.Observe(float64(rep.ClusteredRows))
	m.Silhouette.Observe(rep.Silhouette)
	if rep.PlotPath == "" {
		m.PlotsOmitted.Inc()
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
