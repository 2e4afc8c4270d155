package metrics

import (
	"net/http"
	"time"

	"listing-agent/internal/application/port/output"
	"listing-agent/internal/domain/entity"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var _ output.MetricsPort = (*Collector)(nil)

// Collector records extraction metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	pagesTotal        *prometheus.CounterVec
	recordsTotal      *prometheus.CounterVec
	runsTotal         *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	collaboratorCalls *prometheus.CounterVec
	collaboratorTime  *prometheus.HistogramVec
	navigationsTotal  *prometheus.CounterVec
}

func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		pagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_processed_total",
			Help:      "Pages appended to run results",
		}, []string{"source"}),
		recordsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_extracted_total",
			Help:      "Records extracted from processed pages",
		}, []string{"source"}),
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished extraction runs",
		}, []string{"stopped_reason"}),
		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Extraction run duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"stopped_reason"}),
		collaboratorCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collaborator_calls_total",
			Help:      "Calls to text and vision collaborators",
		}, []string{"collaborator", "status"}),
		collaboratorTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collaborator_call_duration_seconds",
			Help:      "Collaborator call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"collaborator"}),
		navigationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "navigations_total",
			Help:      "Pagination navigation attempts by strategy",
		}, []string{"strategy", "status"}),
	}
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) PageProcessed(source entity.ExtractionSource, records int) {
	c.pagesTotal.WithLabelValues(string(source)).Inc()
	c.recordsTotal.WithLabelValues(string(source)).Add(float64(records))
}

func (c *Collector) RunFinished(reason entity.StopReason, d time.Duration) {
	c.runsTotal.WithLabelValues(string(reason)).Inc()
	c.runDuration.WithLabelValues(string(reason)).Observe(d.Seconds())
}

func (c *Collector) CollaboratorCall(name string, err error, d time.Duration) {
	c.collaboratorCalls.WithLabelValues(name, status(err == nil)).Inc()
	c.collaboratorTime.WithLabelValues(name).Observe(d.Seconds())
}

func (c *Collector) Navigation(strategy string, ok bool) {
	c.navigationsTotal.WithLabelValues(strategy, status(ok)).Inc()
}

func status(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
