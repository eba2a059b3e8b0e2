package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "oddcert/pkg/domain"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func TestCAT72Timer(t *testing.T) {
	t.Run("zero duration falls back to the default", func(t *testing.T) {
		test := NewCAT72Test(id.NewApplicationID(), 1, t0, 0)
		assert.Equal(t, DefaultCAT72Hours, test.DurationHours)
		assert.Equal(t, 72*time.Hour, test.Duration())
	})

	t.Run("elapsed never goes backwards", func(t *testing.T) {
		test := NewCAT72Test(id.NewApplicationID(), 1, t0, 72)
		first := test.Advance(t0.Add(36 * time.Hour))
		require.InDelta(t, 50.0, first.PercentComplete, 1e-9)

		earlier := test.Advance(t0.Add(10 * time.Hour))
		assert.InDelta(t, 50.0, earlier.PercentComplete, 1e-9)
		assert.InDelta(t, first.ElapsedS, earlier.ElapsedS, 1e-9)

		before := test.Advance(t0.Add(-time.Hour))
		assert.InDelta(t, 50.0, before.PercentComplete, 1e-9)
	})

	t.Run("readings clamp at the duration", func(t *testing.T) {
		test := NewCAT72Test(id.NewApplicationID(), 1, t0, 72)
		p := test.Advance(t0.Add(100 * time.Hour))
		assert.Equal(t, 100.0, p.PercentComplete)
		assert.Zero(t, p.RemainingS)
		assert.Equal(t, (72 * time.Hour).Seconds(), p.ElapsedS)
	})

	t.Run("progress does not move the stored reading", func(t *testing.T) {
		test := NewCAT72Test(id.NewApplicationID(), 1, t0, 72)
		p := test.Progress(t0.Add(18 * time.Hour))
		assert.InDelta(t, 25.0, p.PercentComplete, 1e-9)
		assert.Zero(t, test.ElapsedS)
	})

	t.Run("due at the duration and only while running", func(t *testing.T) {
		test := NewCAT72Test(id.NewApplicationID(), 1, t0, 72)
		assert.False(t, test.Due(t0.Add(72*time.Hour-time.Second)))
		assert.True(t, test.Due(t0.Add(72*time.Hour)))

		test.ApplyFail(t0.Add(time.Hour), FailureViolation)
		assert.False(t, test.Due(t0.Add(80*time.Hour)))
	})

	t.Run("a finished test reads at its end time", func(t *testing.T) {
		test := NewCAT72Test(id.NewApplicationID(), 1, t0, 72)
		test.ApplyFail(t0.Add(18*time.Hour), FailureConnectivity)
		p := test.Progress(t0.Add(60 * time.Hour))
		assert.InDelta(t, 25.0, p.PercentComplete, 1e-9)
		assert.Equal(t, CAT72Fail, p.Result)
	})
}

func TestCAT72Violations(t *testing.T) {
	test := NewCAT72Test(id.NewApplicationID(), 1, t0, 72)
	test.ApplyViolation(2)
	test.ApplyViolation(1)
	assert.Equal(t, 3, test.TotalViolations)
	assert.Equal(t, 3, test.UnresolvedViolations)

	assert.Equal(t, 3, test.ApplyResolve())
	assert.Zero(t, test.UnresolvedViolations)
	assert.Equal(t, 3, test.TotalViolations, "resolving keeps the history")
	assert.Zero(t, test.ApplyResolve())
}

func TestCAT72Override(t *testing.T) {
	test := NewCAT72Test(id.NewApplicationID(), 2, t0, 72)
	test.ApplyOverride(t0.Add(5*time.Hour), "field audit accepted")

	assert.Equal(t, CAT72Pass, test.Result)
	assert.True(t, test.Overridden)
	assert.Equal(t, "field audit accepted", test.OverrideReason)
	require.NotNil(t, test.EndedAt)
	assert.Equal(t, t0.Add(5*time.Hour), *test.EndedAt)
	assert.False(t, test.Running())
}
