package ops

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes of an operations audit event.
const (
	outcomeTracked        = "tracked"
	outcomeSampled        = "sampled"
	outcomeBreakerDropped = "breaker_dropped"
	outcomePersistFailed  = "persist_failed"
)

// Metrics counts what happened to operations audit events. Compliance and
// security events are fail-closed and never reach these counters.
type Metrics struct {
	Events       *prometheus.CounterVec
	BreakerState prometheus.Gauge
}

// NewMetrics registers the operations audit metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oddcert_audit_ops_events_total",
			Help: "Operations audit events by outcome (tracked, sampled, breaker_dropped, persist_failed)",
		}, []string{"outcome"}),
		BreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "oddcert_audit_ops_circuit_breaker_open",
			Help: "1 while the operations audit circuit breaker is open",
		}),
	}
}

func (m *Metrics) IncTracked()               { m.Events.WithLabelValues(outcomeTracked).Inc() }
func (m *Metrics) IncSampled()               { m.Events.WithLabelValues(outcomeSampled).Inc() }
func (m *Metrics) IncCircuitBreakerDropped() { m.Events.WithLabelValues(outcomeBreakerDropped).Inc() }
func (m *Metrics) IncPersistFailures()       { m.Events.WithLabelValues(outcomePersistFailed).Inc() }

// SetCircuitBreakerState mirrors the breaker into the gauge.
func (m *Metrics) SetCircuitBreakerState(open bool) {
	if open {
		m.BreakerState.Set(1)
		return
	}
	m.BreakerState.Set(0)
}
