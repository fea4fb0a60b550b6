package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "pestscan"

// PipelineMetrics holds the Prometheus collectors of the classification
// pipeline. A nil *PipelineMetrics is valid and records nothing.
type PipelineMetrics struct {
	classifications *prometheus.CounterVec
	viewFailures    prometheus.Counter
	guardRejections *prometheus.CounterVec
	duration        prometheus.Histogram
	modelLoaded     prometheus.Gauge
}

// NewPipelineMetrics registers the pipeline collectors on reg.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(reg)
	return &PipelineMetrics{
		// Labels: status (DETECTED, UNCERTAIN, OUT_OF_SCOPE, FAILED)
		classifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "classifications_total",
			Help:      "Classification calls by final status",
		}, []string{"status"}),
		viewFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "view_failures_total",
			Help:      "Augmented views whose evaluation failed",
		}),
		// Labels: stage (the guard that rejected a class or a view)
		guardRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "guard_rejections_total",
			Help:      "Anti-false-positive guard rejections by stage",
		}, []string{"stage"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "classification_duration_seconds",
			Help:      "End-to-end classification latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}),
		modelLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "model_loaded",
			Help:      "1 when the detection model is loaded, 0 otherwise",
		}),
	}
}

func (m *PipelineMetrics) ObserveClassification(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(status).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *PipelineMetrics) IncViewFailure() {
	if m == nil {
		return
	}
	m.viewFailures.Inc()
}

func (m *PipelineMetrics) IncGuardRejection(stage string) {
	if m == nil {
		return
	}
	m.guardRejections.WithLabelValues(stage).Inc()
}

func (m *PipelineMetrics) SetModelLoaded(loaded bool) {
	if m == nil {
		return
	}
	if loaded {
		m.modelLoaded.Set(1)
		return
	}
	m.modelLoaded.Set(0)
}
