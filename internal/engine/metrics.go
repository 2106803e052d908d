package engine

import (
	"autoflow/internal/models"

	"github.com/prometheus/client_golang/prometheus"
)

// kindOther labels event kinds the engine does not know
const kindOther = "other"

// Metrics are the engine's Prometheus collectors
type Metrics struct {
	events    *prometheus.CounterVec
	matched   prometheus.Counter
	actions   *prometheus.CounterVec
	geofences prometheus.Gauge
}

// NewMetrics creates and registers the collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoflow_events_total",
			Help: "Events dispatched, by kind.",
		}, []string{"kind"}),
		matched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autoflow_workflows_matched_total",
			Help: "Workflows whose trigger condition was satisfied.",
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoflow_actions_total",
			Help: "Actions executed, by type and result.",
		}, []string{"type", "result"}),
		geofences: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autoflow_geofences_armed",
			Help: "Currently armed geofence watches.",
		}),
	}
	reg.MustRegister(m.events, m.matched, m.actions, m.geofences)
	return m
}

func (m *Metrics) event(kind string) {
	if m == nil {
		return
	}
	if !models.KnownEventKind(kind) {
		kind = kindOther
	}
	m.events.WithLabelValues(kind).Inc()
}

func (m *Metrics) workflowMatched() {
	if m != nil {
		m.matched.Inc()
	}
}

func (m *Metrics) action(typ, result string) {
	if m != nil {
		m.actions.WithLabelValues(typ, result).Inc()
	}
}

func (m *Metrics) armed(n int) {
	if m != nil {
		m.geofences.Set(float64(n))
	}
}
