// Package metrics provides Prometheus instrumentation for the prediction
// pipeline.
//
// Metrics exposed:
//   - tabserve_requests_total: pipeline runs by endpoint and outcome kind
//   - tabserve_stage_seconds: duration of each pipeline stage
//   - tabserve_rows_predicted_total: rows labelled, split by degraded mode
//   - tabserve_predicted_labels_total: labels emitted per class
//   - tabserve_artifacts_persisted_total: result artifacts written
//   - tabserve_model_loaded: 1 while a model is held, 0 in degraded mode
//   - tabserve_inflight_requests: pipeline runs currently holding a slot
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	RequestsTotal      *prometheus.CounterVec
	StageSeconds       *prometheus.HistogramVec
	RowsPredicted      *prometheus.CounterVec
	LabelsTotal        *prometheus.CounterVec
	ArtifactsPersisted prometheus.Counter
	ModelLoaded        prometheus.Gauge
	Inflight           prometheus.Gauge
}

// New registers every metric on a fresh registry, together with the Go and
// process collectors. Each call is independent, so tests can build as many as
// they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tabserve_requests_total",
			Help: "Pipeline runs by endpoint and outcome (ok or error kind)",
		}, []string{"endpoint", "outcome"}),

		StageSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tabserve_stage_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),

		RowsPredicted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tabserve_rows_predicted_total",
			Help: "Rows labelled, split by whether a model was loaded",
		}, []string{"degraded"}),

		LabelsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tabserve_predicted_labels_total",
			Help: "Predicted labels per class",
		}, []string{"class"}),

		ArtifactsPersisted: f.NewCounter(prometheus.CounterOpts{
			Name: "tabserve_artifacts_persisted_total",
			Help: "Result artifacts written",
		}),

		ModelLoaded: f.NewGauge(prometheus.GaugeOpts{
			Name: "tabserve_model_loaded",
			Help: "1 while a model is loaded, 0 in degraded mode",
		}),

		Inflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "tabserve_inflight_requests",
			Help: "Pipeline runs currently in progress",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) RecordStage(stage string, seconds float64) {
	m.StageSeconds.WithLabelValues(stage).Observe(seconds)
}

func (m *Metrics) RecordOutcome(endpoint, outcome string) {
	m.RequestsTotal.WithLabelValues(endpoint, outcome).Inc()
}

func (m *Metrics) RecordPrediction(class0, class1 int, degraded bool) {
	m.RowsPredicted.WithLabelValues(strconv.FormatBool(degraded)).Add(float64(class0 + class1))
	m.LabelsTotal.WithLabelValues("0").Add(float64(class0))
	m.LabelsTotal.WithLabelValues("1").Add(float64(class1))
}

// SetModelLoaded matches registry.Registry.OnSwap.
func (m *Metrics) SetModelLoaded(loaded bool) {
	if loaded {
		m.ModelLoaded.Set(1)
		return
	}
	m.ModelLoaded.Set(0)
}
