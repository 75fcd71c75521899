// Package metrics exposes Prometheus counters for the character engine.
// All Record methods are safe on a nil *Metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "hearth"

// Metrics holds the engine's collectors and the registry they are registered on.
type Metrics struct {
	Registry *prometheus.Registry

	SavesTotal      *prometheus.CounterVec // result: success/failed
	GatewayOps      *prometheus.CounterVec // op, result
	RefusalsTotal   *prometheus.CounterVec // reason
	InvariantGuards prometheus.Counter
	CatalogState    prometheus.Gauge
}

// New creates and registers the collectors on a fresh registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		SavesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "saves_total",
				Help:      "Character saves by result",
			},
			[]string{"result"},
		),
		GatewayOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_ops_total",
				Help:      "Persistence gateway calls by operation and result",
			},
			[]string{"op", "result"},
		),
		RefusalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refusals_total",
				Help:      "Rule refusals surfaced as status messages",
			},
			[]string{"reason"},
		),
		InvariantGuards: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invariant_guards_total",
				Help:      "Updates refused because they would break a character invariant",
			},
		),
		CatalogState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "catalog_state",
				Help:      "Reference catalog load state (0 not loaded, 1 loading, 2 loaded, 3 failed)",
			},
		),
	}

	m.Registry.MustRegister(
		m.SavesTotal,
		m.GatewayOps,
		m.RefusalsTotal,
		m.InvariantGuards,
		m.CatalogState,
	)
	return m
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}

// RecordSave counts a character save.
func (m *Metrics) RecordSave(success bool) {
	if m == nil {
		return
	}
	m.SavesTotal.WithLabelValues(result(success)).Inc()
}

// RecordGatewayOp counts a gateway call.
func (m *Metrics) RecordGatewayOp(op string, success bool) {
	if m == nil {
		return
	}
	m.GatewayOps.WithLabelValues(op, result(success)).Inc()
}

// RecordRefusal counts a rules refusal.
func (m *Metrics) RecordRefusal(reason string) {
	if m == nil {
		return
	}
	m.RefusalsTotal.WithLabelValues(reason).Inc()
}

// RecordInvariantGuard counts a refused invariant-breaking update.
func (m *Metrics) RecordInvariantGuard() {
	if m == nil {
		return
	}
	m.InvariantGuards.Inc()
}

// SetCatalogState records the catalog loader state.
func (m *Metrics) SetCatalogState(state int) {
	if m == nil {
		return
	}
	m.CatalogState.Set(float64(state))
}
