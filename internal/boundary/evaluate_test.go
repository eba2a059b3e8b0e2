package boundary

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) // a Monday

func sample(at time.Time, params map[string]any) Sample {
	return Sample{Timestamp: at, Parameters: params}
}

func numeric(id, param string, minV, maxV *float64, tol float64, hard bool) Boundary {
	return Boundary{ID: id, Params: &NumericParams{Parameter: param, Min: minV, Max: maxV, Tolerance: tol, HardLimit: hard}}
}

func TestNumericBoundary(t *testing.T) {
	b := numeric("speed-limit", "speed", ptr(0), ptr(100), 0, false)

	t.Run("above maximum message", func(t *testing.T) {
		r := Evaluate(b, sample(t0, map[string]any{"speed": 150}), nil)
		require.False(t, r.Passed)
		assert.Equal(t, "speed (150) above maximum (100)", r.Message)
	})

	t.Run("below minimum message", func(t *testing.T) {
		r := Evaluate(b, sample(t0, map[string]any{"speed": -2.5}), nil)
		require.False(t, r.Passed)
		assert.Equal(t, "speed (-2.5) below minimum (0)", r.Message)
	})

	t.Run("limits are inclusive", func(t *testing.T) {
		assert.True(t, Evaluate(b, sample(t0, map[string]any{"speed": 100.0}), nil).Passed)
		assert.True(t, Evaluate(b, sample(t0, map[string]any{"speed": 0}), nil).Passed)
	})

	t.Run("absent parameter is not evaluated", func(t *testing.T) {
		assert.True(t, Evaluate(b, sample(t0, map[string]any{"altitude": 50}), nil).Passed)
	})

	t.Run("non-numeric value is a violation", func(t *testing.T) {
		r := Evaluate(b, sample(t0, map[string]any{"speed": "fast"}), nil)
		require.False(t, r.Passed)
		assert.Equal(t, "speed has non-numeric value", r.Message)
	})

	t.Run("numeric strings are accepted", func(t *testing.T) {
		assert.True(t, Evaluate(b, sample(t0, map[string]any{"speed": "42"}), nil).Passed)
	})

	t.Run("non-finite values are violations", func(t *testing.T) {
		for _, v := range []any{"NaN", "nan", "Inf", "-Infinity", math.NaN(), math.Inf(1)} {
			r := Evaluate(b, sample(t0, map[string]any{"speed": v}), nil)
			require.False(t, r.Passed, "value %v", v)
			assert.Equal(t, "speed has non-numeric value", r.Message)
		}
	})

	t.Run("open-ended limit still rejects infinity", func(t *testing.T) {
		floor := numeric("floor", "speed", ptr(0), nil, 0, false)
		assert.False(t, Evaluate(floor, sample(t0, map[string]any{"speed": "+Inf"}), nil).Passed)
	})
}

func TestNumericTolerance(t *testing.T) {
	cases := []struct {
		name   string
		value  float64
		hard   bool
		passed bool
	}{
		{"inside tolerance", 104, false, true},
		{"on tolerance edge", 105, false, true},
		{"beyond tolerance", 105.01, false, false},
		{"below min within tolerance", -5, false, true},
		{"hard limit ignores tolerance", 100.5, true, false},
		{"hard limit inclusive", 100, true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := numeric("speed", "speed", ptr(0), ptr(100), 5, tc.hard)
			r := Evaluate(b, sample(t0, map[string]any{"speed": tc.value}), nil)
			assert.Equal(t, tc.passed, r.Passed, r.Message)
		})
	}
}

func TestCategoricalBoundary(t *testing.T) {
	b := Boundary{ID: "mode", Params: &CategoricalParams{
		Parameter:       "weather",
		AllowedValues:   []string{"clear", "cloudy", "rain"},
		ForbiddenValues: []string{"hail"},
	}}

	assert.True(t, Evaluate(b, sample(t0, map[string]any{"weather": "clear"}), nil).Passed)

	r := Evaluate(b, sample(t0, map[string]any{"weather": "snow"}), nil)
	require.False(t, r.Passed)
	assert.Equal(t, "weather (snow) not in allowed values", r.Message)

	r = Evaluate(b, sample(t0, map[string]any{"weather": "hail"}), nil)
	require.False(t, r.Passed)
	assert.Equal(t, "weather (hail) is forbidden", r.Message)
}

func TestGeographicBoundary(t *testing.T) {
	// Amsterdam Centraal, 1 km radius.
	center := LatLon{Lat: 52.3791, Lon: 4.9003}
	fence := Boundary{ID: "ams", Params: &GeographicParams{Center: center, RadiusM: 1000, AltitudeMax: ptr(120)}}

	t.Run("inside", func(t *testing.T) {
		r := Evaluate(fence, sample(t0, map[string]any{"lat": 52.3800, "lon": 4.9010, "altitude": 50}), nil)
		assert.True(t, r.Passed, r.Message)
	})

	t.Run("outside radius", func(t *testing.T) {
		r := Evaluate(fence, sample(t0, map[string]any{"latitude": 52.40, "longitude": 4.90}), nil)
		require.False(t, r.Passed)
		assert.Contains(t, r.Message, "outside geofence")
	})

	t.Run("above altitude band", func(t *testing.T) {
		r := Evaluate(fence, sample(t0, map[string]any{"lat": 52.3791, "lon": 4.9003, "alt": 150}), nil)
		require.False(t, r.Passed)
		assert.Equal(t, "altitude (150) above maximum (120)", r.Message)
	})

	t.Run("exclusion zone inverts", func(t *testing.T) {
		keepOut := Boundary{ID: "airport", Params: &GeographicParams{Center: center, RadiusM: 1000, Exclusion: true}}
		inside := Evaluate(keepOut, sample(t0, map[string]any{"lat": 52.3791, "lon": 4.9003}), nil)
		require.False(t, inside.Passed)
		assert.Contains(t, inside.Message, "inside exclusion zone")

		outside := Evaluate(keepOut, sample(t0, map[string]any{"lat": 52.5, "lon": 4.9}), nil)
		assert.True(t, outside.Passed)
	})

	t.Run("no position is not evaluated", func(t *testing.T) {
		assert.True(t, Evaluate(fence, sample(t0, map[string]any{"speed": 3}), nil).Passed)
	})

	t.Run("malformed coordinates are violations", func(t *testing.T) {
		keepOut := Boundary{ID: "airport", Params: &GeographicParams{Center: center, RadiusM: 1000, Exclusion: true}}
		r := Evaluate(keepOut, sample(t0, map[string]any{"lat": "NaN", "lon": 4.9003}), nil)
		require.False(t, r.Passed)
		assert.Equal(t, "position has non-numeric coordinates", r.Message)

		assert.False(t, Evaluate(fence, sample(t0, map[string]any{"lat": 52.3800, "lon": 4.9010, "alt": "NaN"}), nil).Passed)
	})
}

func TestPolygonBoundary(t *testing.T) {
	square := Boundary{ID: "field", Params: &PolygonParams{Vertices: []LatLon{
		{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 1, Lon: 1}, {Lat: 1, Lon: 0},
	}}}

	assert.True(t, Evaluate(square, sample(t0, map[string]any{"lat": 0.5, "lon": 0.5}), nil).Passed)

	r := Evaluate(square, sample(t0, map[string]any{"lat": 1.5, "lon": 0.5}), nil)
	require.False(t, r.Passed)
	assert.Equal(t, "position (1.5, 0.5) outside polygon", r.Message)
}

func TestTemporalBoundary(t *testing.T) {
	daytime := Boundary{ID: "hours", Params: &TemporalParams{
		StartHour: 8, EndHour: 17, AllowedDays: []string{"mon", "tue", "wed", "thu", "fri"}, Timezone: "UTC",
	}}
	require.NoError(t, daytime.Validate())

	t.Run("inside window", func(t *testing.T) {
		assert.True(t, Evaluate(daytime, sample(t0, nil), nil).Passed)
	})

	t.Run("end hour inclusive", func(t *testing.T) {
		at := time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC)
		assert.True(t, Evaluate(daytime, sample(at, nil), nil).Passed)
	})

	t.Run("outside window", func(t *testing.T) {
		at := time.Date(2026, 3, 2, 18, 30, 0, 0, time.UTC)
		r := Evaluate(daytime, sample(at, nil), nil)
		require.False(t, r.Passed)
		assert.Equal(t, "time 18:30 outside operating window 08:00-17:00 (UTC)", r.Message)
	})

	t.Run("weekend rejected", func(t *testing.T) {
		at := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
		r := Evaluate(daytime, sample(at, nil), nil)
		require.False(t, r.Passed)
		assert.Equal(t, "day saturday not in allowed days", r.Message)
	})

	t.Run("window wraps midnight", func(t *testing.T) {
		night := Boundary{ID: "night", Params: &TemporalParams{StartHour: 22, EndHour: 6, Timezone: "UTC"}}
		assert.True(t, Evaluate(night, sample(time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC), nil), nil).Passed)
		assert.True(t, Evaluate(night, sample(time.Date(2026, 3, 2, 5, 0, 0, 0, time.UTC), nil), nil).Passed)
		assert.False(t, Evaluate(night, sample(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), nil), nil).Passed)
	})

	t.Run("evaluated in boundary timezone", func(t *testing.T) {
		tokyo := Boundary{ID: "tokyo", Params: &TemporalParams{StartHour: 9, EndHour: 18, Timezone: "Asia/Tokyo"}}
		require.NoError(t, tokyo.Validate())
		// 01:00 UTC is 10:00 in Tokyo.
		assert.True(t, Evaluate(tokyo, sample(time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC), nil), nil).Passed)
	})
}

func TestCompoundBoundary(t *testing.T) {
	b := Boundary{ID: "rain-speed", Params: &CompoundParams{
		ConditionExpr: "weather == rain",
		ThenLimit:     RangeLimit{Parameter: "speed", Max: ptr(40)},
	}}
	require.NoError(t, b.Validate())

	assert.True(t, Evaluate(b, sample(t0, map[string]any{"weather": "clear", "speed": 80}), nil).Passed)

	r := Evaluate(b, sample(t0, map[string]any{"weather": "rain", "speed": 60}), nil)
	require.False(t, r.Passed)
	assert.Equal(t, "when weather == rain: speed (60) above maximum (40)", r.Message)
}

func TestEvaluateEnvelope(t *testing.T) {
	env, err := NewEnvelope([]Boundary{
		numeric("speed", "speed", ptr(0), ptr(100), 0, false),
		numeric("altitude", "altitude", nil, ptr(120), 0, false),
		{ID: "mode", Params: &CategoricalParams{Parameter: "mode", AllowedValues: []string{"survey"}}},
	}, DefaultFailPolicy())
	require.NoError(t, err)

	t.Run("pass when every boundary passes", func(t *testing.T) {
		res := EvaluateEnvelope(env, sample(t0, map[string]any{"speed": 20, "altitude": 80, "mode": "survey"}), nil)
		assert.Equal(t, VerdictPass, res.Verdict)
		assert.Empty(t, res.Violations)
	})

	t.Run("block carries every violation in order", func(t *testing.T) {
		res := EvaluateEnvelope(env, sample(t0, map[string]any{"speed": 150, "altitude": 200, "mode": "survey"}), nil)
		require.Equal(t, VerdictBlock, res.Verdict)
		require.Len(t, res.Violations, 2)
		assert.Equal(t, Violation{BoundaryID: "speed", Message: "speed (150) above maximum (100)"}, res.Violations[0])
		assert.Equal(t, "altitude", res.Violations[1].BoundaryID)
	})

	t.Run("adding a failing boundary never turns block into pass", func(t *testing.T) {
		s := sample(t0, map[string]any{"speed": 150})
		before := EvaluateEnvelope(env, s, nil)
		bigger := &Envelope{Boundaries: append(append([]Boundary{}, env.Boundaries...),
			numeric("extra", "speed", nil, ptr(10), 0, false)), FailPolicy: env.FailPolicy}
		after := EvaluateEnvelope(bigger, s, nil)
		assert.Equal(t, VerdictBlock, before.Verdict)
		assert.Equal(t, VerdictBlock, after.Verdict)
		assert.Greater(t, len(after.Violations), len(before.Violations))
	})

	t.Run("sample ref prefers action id", func(t *testing.T) {
		res := EvaluateEnvelope(env, Sample{Timestamp: t0, ActionID: "act-7", Parameters: map[string]any{}}, nil)
		assert.Equal(t, "act-7", res.SampleRef)
	})
}

func TestEvaluateTick(t *testing.T) {
	link := Boundary{ID: "link", Params: &ConnectivityParams{MaxGapS: 120}}
	env, err := NewEnvelope([]Boundary{link}, DefaultFailPolicy())
	require.NoError(t, err)

	t.Run("per-sample evaluation always passes", func(t *testing.T) {
		assert.True(t, Evaluate(link, sample(t0, nil), nil).Passed)
	})

	t.Run("gap within limit", func(t *testing.T) {
		assert.Empty(t, EvaluateConnectivity(env, t0.Add(120*time.Second), t0))
	})

	t.Run("gap above limit", func(t *testing.T) {
		v := EvaluateConnectivity(env, t0.Add(150*time.Second), t0)
		require.Len(t, v, 1)
		assert.Equal(t, "no contact for 150s, above maximum gap (120s)", v[0].Message)
	})
}
