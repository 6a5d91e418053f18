package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "minuku"

// Metrics holds the Prometheus collectors for the stream and situation
// registries. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	recordsPushed      *prometheus.CounterVec
	noDataEvents       *prometheus.CounterVec
	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	actionsPublished   *prometheus.CounterVec
	registeredStreams  prometheus.Gauge
	activeSituations   prometheus.Gauge
}

// New creates the collectors and registers them on a private registry.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		recordsPushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "records_pushed_total",
			Help:      "Records pushed into streams",
		}, []string{"record_type"}),

		noDataEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "no_data_events_total",
			Help:      "No-data-change events observed per record type",
		}, []string{"record_type"}),

		evaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "situation",
			Name:      "evaluations_total",
			Help:      "Situation evaluations by outcome (action, none, error)",
		}, []string{"situation", "result"}),

		evaluationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "situation",
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent evaluating a single situation",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}, []string{"situation"}),

		actionsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "situation",
			Name:      "actions_published_total",
			Help:      "Action events published",
		}, []string{"action"}),

		registeredStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "registered",
			Help:      "Streams currently registered",
		}),

		activeSituations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "situation",
			Name:      "registered",
			Help:      "Situations currently registered",
		}),
	}

	collectors := []prometheus.Collector{
		m.recordsPushed,
		m.noDataEvents,
		m.evaluationsTotal,
		m.evaluationDuration,
		m.actionsPublished,
		m.registeredStreams,
		m.activeSituations,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordPushed(recordType string) {
	if m == nil {
		return
	}
	m.recordsPushed.WithLabelValues(recordType).Inc()
}

func (m *Metrics) NoData(recordType string) {
	if m == nil {
		return
	}
	m.noDataEvents.WithLabelValues(recordType).Inc()
}

// Evaluation records one situation evaluation. result is "action", "none"
// or "error".
func (m *Metrics) Evaluation(situation, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.evaluationsTotal.WithLabelValues(situation, result).Inc()
	m.evaluationDuration.WithLabelValues(situation).Observe(took.Seconds())
}

func (m *Metrics) ActionPublished(action string) {
	if m == nil {
		return
	}
	m.actionsPublished.WithLabelValues(action).Inc()
}

func (m *Metrics) SetStreams(n int) {
	if m == nil {
		return
	}
	m.registeredStreams.Set(float64(n))
}

func (m *Metrics) SetSituations(n int) {
	if m == nil {
		return
	}
	m.activeSituations.Set(float64(n))
}
