package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the certification lifecycle.
type Metrics struct {
	Transitions        *prometheus.CounterVec
	TransitionsDenied  *prometheus.CounterVec
	CAT72Results       *prometheus.CounterVec
	CAT72Running       prometheus.Gauge
	Violations         *prometheus.CounterVec
	CertificatesIssued prometheus.Counter
	TickDuration       prometheus.Histogram
}

// New registers certification metrics against reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oddcert_transitions_total",
			Help: "Lifecycle transitions by source state, target state and trigger",
		}, []string{"from", "to", "trigger"}),
		TransitionsDenied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oddcert_transitions_denied_total",
			Help: "Rejected transition attempts by attempted target state",
		}, []string{"to"}),
		CAT72Results: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oddcert_cat72_results_total",
			Help: "Finished CAT-72 tests by result",
		}, []string{"result"}), // PASS, FAIL
		CAT72Running: f.NewGauge(prometheus.GaugeOpts{
			Name: "oddcert_cat72_running",
			Help: "CAT-72 tests running at the last tick",
		}),
		Violations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oddcert_cat72_violations_total",
			Help: "Violations observed during CAT-72 by handling",
		}, []string{"action"}), // fail_test, record, evidence_only
		CertificatesIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "oddcert_certificates_issued_total",
			Help: "Certificates issued",
		}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "oddcert_cat72_tick_duration_seconds",
			Help:    "Duration of the CAT-72 and expiry tick",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncrementTransition(from, to, trigger string) {
	if m != nil {
		m.Transitions.WithLabelValues(from, to, trigger).Inc()
	}
}

func (m *Metrics) IncrementDenied(to string) {
	if m != nil {
		m.TransitionsDenied.WithLabelValues(to).Inc()
	}
}

func (m *Metrics) IncrementCAT72Result(result string) {
	if m != nil {
		m.CAT72Results.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) AddViolations(action string, n int) {
	if m != nil && n > 0 {
		m.Violations.WithLabelValues(action).Add(float64(n))
	}
}

func (m *Metrics) IncrementCertificatesIssued() {
	if m != nil {
		m.CertificatesIssued.Inc()
	}
}

// ObserveTick records one tick over running tests.
func (m *Metrics) ObserveTick(running int, d time.Duration) {
	if m != nil {
		m.CAT72Running.Set(float64(running))
		m.TickDuration.Observe(d.Seconds())
	}
}
