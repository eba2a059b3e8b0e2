package ops

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSamplerRates(t *testing.T) {
	s := NewSampler(1)
	s.SetRate("session_offline", 0)
	s.SetRate("session_registered", 0.5)
	s.roll = func() float64 { return 0.75 }

	assert.True(t, s.ShouldSample("session_ended"))
	assert.False(t, s.ShouldSample("session_offline"))
	assert.False(t, s.ShouldSample("session_registered"))

	s.roll = func() float64 { return 0.25 }
	assert.True(t, s.ShouldSample("session_registered"))
	assert.Equal(t, 1.0, clampRate(3))
}

func TestCircuitBreakerOpensAndHalfOpens(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(2, time.Minute)
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	assert.True(t, cb.Allow())
	cb.RecordFailure()
	assert.True(t, cb.IsOpen())
	assert.False(t, cb.Allow())

	now = now.Add(2 * time.Minute)
	assert.True(t, cb.Allow(), "half-open after cooldown")
	cb.RecordFailure()
	assert.True(t, cb.IsOpen(), "one failed probe reopens")

	now = now.Add(2 * time.Minute)
	assert.True(t, cb.Allow())
	cb.RecordSuccess()
	assert.False(t, cb.IsOpen())
}

func TestMetricsCountOutcomes(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.IncTracked()
	m.IncTracked()
	m.IncSampled()
	m.IncCircuitBreakerDropped()
	m.SetCircuitBreakerState(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Events.WithLabelValues(outcomeTracked)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues(outcomeSampled)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues(outcomeBreakerDropped)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Events.WithLabelValues(outcomePersistFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerState))

	m.SetCircuitBreakerState(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BreakerState))
}
