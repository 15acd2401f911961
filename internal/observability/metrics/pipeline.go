package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/docrouter/internal/core/domain"
)

// PipelineMetrics emits per-stage durations and outcome counts as discrete
// prometheus events for the monitoring collaborator.
type PipelineMetrics struct {
	registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	actionsTotal  *prometheus.CounterVec
	runsInFlight  prometheus.Gauge
	queueLag      prometheus.Histogram
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docrouter",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds.",
			Buckets:   prometheus.DefBuckets,
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
		[]string{"stage"},
	)
	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docrouter",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Finished pipeline runs by terminal state and intent.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
		[]string{"state", "intent"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docrouter",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "End-to-end run duration in seconds by terminal state.",
			Buckets:   prometheus.DefBuckets,
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
		[]string{"state"},
	)
	actionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docrouter",
			Subsystem: "pipeline",
			Name:      "actions_total",
			Help:      "Executed actions by kind and outcome status.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
		[]string{"kind", "status"},
	)
	runsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docrouter",
			Subsystem: "pipeline",
			Name:      "runs_in_flight",
			Help:      "Number of runs currently being processed.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docrouter",
			Subsystem: "pipeline",
			Name:      "queue_lag_seconds",
			Help:      "Delay between run creation and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(stageDuration, runsTotal, runDuration, actionsTotal, runsInFlight, queueLag)

	return &PipelineMetrics{
		registry:      registry,
		stageDuration: stageDuration,
		runsTotal:     runsTotal,
		runDuration:   runDuration,
		actionsTotal:  actionsTotal,
		runsInFlight:  runsInFlight,
		queueLag:      queueLag,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *PipelineMetrics) ObserveStage(stage domain.Stage, d time.Duration) {
	m.stageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
}

func (m *PipelineMetrics) RunFinished(state domain.RunState, intent domain.Intent, d time.Duration) {
	m.runsTotal.WithLabelValues(string(state), string(intent)).Inc()
	m.runDuration.WithLabelValues(string(state)).Observe(d.Seconds())
}

func (m *PipelineMetrics) ActionFinished(kind domain.ActionKind, status domain.ActionStatus) {
	m.actionsTotal.WithLabelValues(string(kind), string(status)).Inc()
}

func (m *PipelineMetrics) StartRun() {
	m.runsInFlight.Inc()
}

func (m *PipelineMetrics) FinishRun() {
	m.runsInFlight.Dec()
}

func (m *PipelineMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.Observe(lag.Seconds())
}

// Nop discards all measurements. Used in tests and tooling.
type Nop struct{}

func (Nop) ObserveStage(domain.Stage, time.Duration) {}

func (Nop) RunFinished(domain.RunState, domain.Intent, time.Duration) {}

func (Nop) ActionFinished(domain.ActionKind, domain.ActionStatus) {}
