package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for agent sessions and telemetry.
type Metrics struct {
	SessionsRegistered prometheus.Counter
	SessionsEnded      *prometheus.CounterVec
	ActiveSessions     prometheus.Gauge

	// Samples by verdict: "pass", "block", "observed"
	Samples *prometheus.CounterVec

	TelemetryLatency   prometheus.Histogram
	ConnectivityFaults prometheus.Counter
	SweepDuration      prometheus.Histogram
	OfflineTransitions prometheus.Counter
}

// New registers session metrics against reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsRegistered: f.NewCounter(prometheus.CounterOpts{
			Name: "oddcert_sessions_registered_total",
			Help: "Total agent sessions registered",
		}),
		SessionsEnded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oddcert_sessions_ended_total",
			Help: "Total agent sessions ended by reason",
		}, []string{"reason"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "oddcert_sessions_active",
			Help: "Active agent sessions seen by the last sweep",
		}),
		Samples: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oddcert_telemetry_samples_total",
			Help: "Telemetry samples processed by outcome",
		}, []string{"outcome"}),
		TelemetryLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "oddcert_telemetry_batch_duration_seconds",
			Help:    "Duration of telemetry batch ingestion including evaluation",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		ConnectivityFaults: f.NewCounter(prometheus.CounterOpts{
			Name: "oddcert_connectivity_faults_total",
			Help: "Connectivity faults raised for applications under test",
		}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "oddcert_session_sweep_duration_seconds",
			Help:    "Duration of the heartbeat sweep",
			Buckets: prometheus.DefBuckets,
		}),
		OfflineTransitions: f.NewCounter(prometheus.CounterOpts{
			Name: "oddcert_sessions_offline_total",
			Help: "Sessions that went silent past the heartbeat timeout",
		}),
	}
}

func (m *Metrics) IncrementRegistered() {
	if m != nil {
		m.SessionsRegistered.Inc()
	}
}

func (m *Metrics) IncrementEnded(reason string) {
	if m != nil {
		m.SessionsEnded.WithLabelValues(reason).Inc()
	}
}

// ObserveTelemetry records one batch.
func (m *Metrics) ObserveTelemetry(passed, blocked, observed int, d time.Duration) {
	if m == nil {
		return
	}
	m.Samples.WithLabelValues("pass").Add(float64(passed))
	m.Samples.WithLabelValues("block").Add(float64(blocked))
	m.Samples.WithLabelValues("observed").Add(float64(observed))
	m.TelemetryLatency.Observe(d.Seconds())
}

func (m *Metrics) IncrementConnectivityFault() {
	if m != nil {
		m.ConnectivityFaults.Inc()
	}
}

func (m *Metrics) IncrementOffline() {
	if m != nil {
		m.OfflineTransitions.Inc()
	}
}

// ObserveSweep records one sweep over active sessions.
func (m *Metrics) ObserveSweep(active int, d time.Duration) {
	if m != nil {
		m.ActiveSessions.Set(float64(active))
		m.SweepDuration.Observe(d.Seconds())
	}
}
