package boundary

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	dErrors "oddcert/pkg/domain-errors"
)

type CodecSuite struct {
	suite.Suite
	env *Envelope
}

func TestCodecSuite(t *testing.T) {
	suite.Run(t, new(CodecSuite))
}

// SetupTest builds an envelope that interleaves families so grouping alone
// would lose the order.
func (s *CodecSuite) SetupTest() {
	env, err := NewEnvelope([]Boundary{
		{ID: "speed", Name: "Max speed", Params: &NumericParams{Parameter: "speed", Min: ptr(0), Max: ptr(100), Unit: "km/h", Tolerance: 2}},
		{ID: "site", Params: &GeographicParams{Center: LatLon{Lat: 52.1, Lon: 5.1}, RadiusM: 500, AltitudeMax: ptr(120)}},
		{ID: "weather", Params: &CategoricalParams{Parameter: "weather", AllowedValues: []string{"clear", "rain"}}},
		{ID: "hours", Params: &TemporalParams{StartHour: 6, EndHour: 21.5, AllowedDays: []string{"mon", "fri"}, Timezone: "Europe/Amsterdam"}},
		{ID: "yard", Params: &PolygonParams{Vertices: []LatLon{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 1, Lon: 1}}, Exclusion: true}},
		{ID: "accel", Params: &RateOfChangeParams{Parameter: "speed", MaxDelta: 3, WindowS: 5, Unit: "km/h"}},
		{ID: "link", Params: &ConnectivityParams{MaxGapS: 90}},
		{ID: "energy", Params: &CumulativeParams{Parameter: "energy_wh", MaxTotal: 500, ResetPeriod: Duration(24 * time.Hour)}},
		{ID: "rain-speed", Params: &CompoundParams{ConditionExpr: "weather == rain", ThenLimit: RangeLimit{Parameter: "speed", Max: ptr(40)}}},
		{ID: "phases", Params: &SequenceParams{Parameter: "phase", RequiredOrder: []string{"taxi", "run"}}},
		{ID: "vibration", Params: &StatisticalParams{Parameter: "vibration", WindowSize: 10, MaxStdDev: ptr(1.5)}},
	}, FailPolicy{ViolationAction: ViolationRecord, ConnectionLossAction: ConnectionLossReturnHome, FailClosed: false})
	s.Require().NoError(err)
	s.env = env
}

func (s *CodecSuite) TestJSONRoundTripPreservesOrderAndParams() {
	data, err := Encode(s.env, FormatJSON)
	s.Require().NoError(err)

	decoded, err := Decode(data, FormatJSON)
	s.Require().NoError(err)
	s.assertEquivalent(decoded)
}

func (s *CodecSuite) TestYAMLRoundTripPreservesOrderAndParams() {
	data, err := Encode(s.env, FormatYAML)
	s.Require().NoError(err)
	s.Contains(string(data), "numeric_boundaries:")
	s.Contains(string(data), "reset_period: 24h0m0s")

	decoded, err := Decode(data, FormatYAML)
	s.Require().NoError(err)
	s.assertEquivalent(decoded)
}

func (s *CodecSuite) TestCrossFormatRoundTrip() {
	yamlData, err := Encode(s.env, FormatYAML)
	s.Require().NoError(err)
	fromYAML, err := Decode(yamlData, FormatYAML)
	s.Require().NoError(err)

	jsonData, err := Encode(fromYAML, FormatJSON)
	s.Require().NoError(err)
	fromJSON, err := Decode(jsonData, FormatJSON)
	s.Require().NoError(err)
	s.assertEquivalent(fromJSON)
}

func (s *CodecSuite) TestPersistedShapeGroupsByFamily() {
	data, err := json.Marshal(s.env)
	s.Require().NoError(err)

	var raw map[string]json.RawMessage
	s.Require().NoError(json.Unmarshal(data, &raw))
	for _, key := range []string{
		"numeric_boundaries", "geo_boundaries", "time_boundaries", "state_boundaries",
		"rate_boundaries", "connectivity_boundaries", "cumulative_boundaries",
		"compound_boundaries", "sequence_boundaries", "statistical_boundaries",
		"order", "fail_policy",
	} {
		s.Contains(raw, key)
	}

	var geo []map[string]any
	s.Require().NoError(json.Unmarshal(raw["geo_boundaries"], &geo))
	s.Require().Len(geo, 2)
	s.Equal("circle", geo[0]["type"])
	s.Equal("polygon", geo[1]["type"])
}

func (s *CodecSuite) assertEquivalent(decoded *Envelope) {
	s.Equal(s.env.IDs(), decoded.IDs())
	s.Equal(s.env.FailPolicy, decoded.FailPolicy)
	for i, b := range s.env.Boundaries {
		got := decoded.Boundaries[i]
		s.Equal(b.Name, got.Name)
		s.Equal(b.Kind(), got.Kind())
		want, _ := json.Marshal(ToDocument(&Envelope{Boundaries: []Boundary{b}}))
		have, _ := json.Marshal(ToDocument(&Envelope{Boundaries: []Boundary{got}}))
		s.JSONEq(string(want), string(have), "boundary %s", b.ID)
	}
}

func TestDecodeDefaultsFailClosed(t *testing.T) {
	env, err := Decode([]byte(`{"numeric_boundaries":[{"id":"speed","parameter":"speed","max":10}],"fail_policy":{}}`), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, DefaultFailPolicy(), env.FailPolicy)
	assert.True(t, env.FailPolicy.FailClosed)
}

func TestDecodeRejectsInvalidEnvelopes(t *testing.T) {
	cases := map[string]string{
		"min above max":    `{"numeric_boundaries":[{"id":"speed","parameter":"speed","min":10,"max":5}]}`,
		"duplicate ids":    `{"numeric_boundaries":[{"id":"a","parameter":"x","max":1},{"id":"a","parameter":"y","max":1}]}`,
		"unknown field":    `{"numeric_boundaries":[{"id":"speed","parameter":"speed","max":10,"maximum":3}]}`,
		"bad geo type":     `{"geo_boundaries":[{"id":"g","type":"hexagon"}]}`,
		"two vertices":     `{"geo_boundaries":[{"id":"g","type":"polygon","vertices":[{"lat":0,"lon":0},{"lat":1,"lon":1}]}]}`,
		"bad timezone":     `{"time_boundaries":[{"id":"t","start_hour":1,"end_hour":2,"timezone":"Mars/Olympus"}]}`,
		"bad condition":    `{"compound_boundaries":[{"id":"c","condition_expr":"weather rain","then_limit":{"parameter":"speed","max":1}}]}`,
		"negative tol":     `{"numeric_boundaries":[{"id":"speed","parameter":"speed","max":10,"tolerance":-1}]}`,
		"order mismatch":   `{"numeric_boundaries":[{"id":"speed","parameter":"speed","max":10}],"order":["other"]}`,
		"unknown action":   `{"fail_policy":{"violation_action":"ignore"}}`,
		"bad duration":     `{"cumulative_boundaries":[{"id":"e","parameter":"e","max_total":1,"reset_period":"daily"}]}`,
		"empty document":   ``,
		"missing id":       `{"numeric_boundaries":[{"parameter":"speed","max":10}]}`,
		"zero window size": `{"statistical_boundaries":[{"id":"s","parameter":"v","window_size":1,"max_mean":1}]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(doc), FormatJSON)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
		})
	}
}

func TestDecodeRejectsNonFiniteLimits(t *testing.T) {
	docs := map[string]string{
		"numeric max":      "numeric_boundaries:\n  - id: speed\n    parameter: speed\n    max: .nan\n",
		"numeric min":      "numeric_boundaries:\n  - id: speed\n    parameter: speed\n    min: -.inf\n",
		"cumulative total": "cumulative_boundaries:\n  - id: e\n    parameter: e\n    max_total: .nan\n    reset_period: 1h\n",
		"statistical mean": "statistical_boundaries:\n  - id: s\n    parameter: v\n    window_size: 3\n    max_mean: .nan\n",
		"temporal hour":    "time_boundaries:\n  - id: t\n    start_hour: .nan\n    end_hour: 17\n",
	}
	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(doc), FormatYAML)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
			assert.Contains(t, err.Error(), "finite")
		})
	}
}

func TestValidationErrorNamesBoundary(t *testing.T) {
	_, err := NewEnvelope([]Boundary{{ID: "speed", Params: &NumericParams{Parameter: "speed", Min: ptr(10), Max: ptr(5)}}}, DefaultFailPolicy())
	require.Error(t, err)
	assert.Equal(t, `boundary "speed": min (10) greater than max (5)`, err.Error())
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("YML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("toml")
	require.Error(t, err)
}

func TestDecodeYAMLRejectsUnknownFields(t *testing.T) {
	doc := "numeric_boundaries:\n  - id: speed\n    parameter: speed\n    max: 10\n    maximum: 3\n"
	_, err := Decode([]byte(doc), FormatYAML)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
