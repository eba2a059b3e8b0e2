package boundary

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
	_ "time/tzdata"
)

// NumericParams bounds a scalar parameter. Tolerance widens both limits
// unless HardLimit is set, in which case [Min, Max] is absolute.
type NumericParams struct {
	Parameter string   `json:"parameter" yaml:"parameter"`
	Min       *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max       *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	HardLimit bool     `json:"hard_limit,omitempty" yaml:"hard_limit,omitempty"`
	Unit      string   `json:"unit,omitempty" yaml:"unit,omitempty"`
	Tolerance float64  `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
}

func (*NumericParams) Kind() Kind { return KindNumeric }

func (p *NumericParams) validate() error {
	if err := requireFinite(limit("min", p.Min), limit("max", p.Max), limit("tolerance", &p.Tolerance)); err != nil {
		return err
	}
	if strings.TrimSpace(p.Parameter) == "" {
		return errors.New("parameter is required")
	}
	if p.Min == nil && p.Max == nil {
		return errors.New("at least one of min or max is required")
	}
	if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
		return fmt.Errorf("min (%s) greater than max (%s)", formatNumber(*p.Min), formatNumber(*p.Max))
	}
	if p.Tolerance < 0 || math.IsNaN(p.Tolerance) {
		return errors.New("tolerance must be non-negative")
	}
	return nil
}

func (p *NumericParams) evaluate(b Boundary, s Sample, _ *State) Result {
	v, present, err := s.Number(p.Parameter)
	if !present {
		return pass(b)
	}
	if err != nil {
		return fail(b, "%s has non-numeric value", p.Parameter)
	}
	return checkRange(b, p.Parameter, v, p.Min, p.Max, p.effectiveTolerance())
}

func (p *NumericParams) effectiveTolerance() float64 {
	if p.HardLimit {
		return 0
	}
	return p.Tolerance
}

type namedLimit struct {
	name string
	v    *float64
}

func limit(name string, v *float64) namedLimit { return namedLimit{name: name, v: v} }

// requireFinite rejects NaN and infinite limits. Comparisons against NaN are
// always false, so such a limit would never trip. Unset limits are skipped.
func requireFinite(limits ...namedLimit) error {
	for _, l := range limits {
		if l.v != nil && (math.IsNaN(*l.v) || math.IsInf(*l.v, 0)) {
			return fmt.Errorf("%s must be a finite number", l.name)
		}
	}
	return nil
}

func checkRange(b Boundary, param string, v float64, minV, maxV *float64, tol float64) Result {
	if maxV != nil && v > *maxV+tol {
		return fail(b, "%s (%s) above maximum (%s)", param, formatNumber(v), formatNumber(*maxV))
	}
	if minV != nil && v < *minV-tol {
		return fail(b, "%s (%s) below minimum (%s)", param, formatNumber(v), formatNumber(*minV))
	}
	return pass(b)
}

// CategoricalParams restricts a discrete parameter. An empty AllowedValues
// admits anything not forbidden.
type CategoricalParams struct {
	Parameter       string   `json:"parameter" yaml:"parameter"`
	AllowedValues   []string `json:"allowed_values,omitempty" yaml:"allowed_values,omitempty"`
	ForbiddenValues []string `json:"forbidden_values,omitempty" yaml:"forbidden_values,omitempty"`
}

func (*CategoricalParams) Kind() Kind { return KindCategorical }

func (p *CategoricalParams) validate() error {
	if strings.TrimSpace(p.Parameter) == "" {
		return errors.New("parameter is required")
	}
	if len(p.AllowedValues) == 0 && len(p.ForbiddenValues) == 0 {
		return errors.New("allowed_values or forbidden_values is required")
	}
	for _, v := range p.AllowedValues {
		if slices.Contains(p.ForbiddenValues, v) {
			return fmt.Errorf("value %q is both allowed and forbidden", v)
		}
	}
	return nil
}

func (p *CategoricalParams) evaluate(b Boundary, s Sample, _ *State) Result {
	v, ok := s.Text(p.Parameter)
	if !ok {
		return pass(b)
	}
	if slices.Contains(p.ForbiddenValues, v) {
		return fail(b, "%s (%s) is forbidden", p.Parameter, v)
	}
	if len(p.AllowedValues) > 0 && !slices.Contains(p.AllowedValues, v) {
		return fail(b, "%s (%s) not in allowed values", p.Parameter, v)
	}
	return pass(b)
}

// GeographicParams is a circular geofence with an optional altitude band.
// With Exclusion set the circle is a keep-out zone.
type GeographicParams struct {
	Center      LatLon   `json:"center" yaml:"center"`
	RadiusM     float64  `json:"radius_m" yaml:"radius_m"`
	AltitudeMin *float64 `json:"altitude_min,omitempty" yaml:"altitude_min,omitempty"`
	AltitudeMax *float64 `json:"altitude_max,omitempty" yaml:"altitude_max,omitempty"`
	Exclusion   bool     `json:"exclusion,omitempty" yaml:"exclusion,omitempty"`
}

func (*GeographicParams) Kind() Kind { return KindGeographic }

func (p *GeographicParams) validate() error {
	if err := requireFinite(limit("center.lat", &p.Center.Lat), limit("center.lon", &p.Center.Lon), limit("radius_m", &p.RadiusM)); err != nil {
		return err
	}
	if !p.Center.valid() {
		return errors.New("center coordinates out of range")
	}
	if p.RadiusM <= 0 {
		return errors.New("radius_m must be positive")
	}
	return validateAltitudes(p.AltitudeMin, p.AltitudeMax)
}

func (p *GeographicParams) evaluate(b Boundary, s Sample, _ *State) Result {
	pos, ok := s.Position()
	if !ok {
		if s.malformedPosition() {
			return fail(b, "position has non-numeric coordinates")
		}
		return pass(b)
	}
	dist := haversineM(p.Center, pos.LatLon)
	horizontal := dist <= p.RadiusM
	band := altitudeBand(pos, p.AltitudeMin, p.AltitudeMax)
	if p.Exclusion {
		if horizontal && band == "" {
			return fail(b, "position (%s, %s) inside exclusion zone", formatNumber(pos.Lat), formatNumber(pos.Lon))
		}
		return pass(b)
	}
	if !horizontal {
		return fail(b, "position (%s, %s) outside geofence (%s m from center, radius %s m)",
			formatNumber(pos.Lat), formatNumber(pos.Lon), formatNumber(math.Round(dist*10)/10), formatNumber(p.RadiusM))
	}
	if band != "" {
		return fail(b, "%s", band)
	}
	return pass(b)
}

// PolygonParams is a polygonal geofence with an optional altitude band.
type PolygonParams struct {
	Vertices    []LatLon `json:"vertices" yaml:"vertices"`
	AltitudeMin *float64 `json:"altitude_min,omitempty" yaml:"altitude_min,omitempty"`
	AltitudeMax *float64 `json:"altitude_max,omitempty" yaml:"altitude_max,omitempty"`
	Exclusion   bool     `json:"exclusion,omitempty" yaml:"exclusion,omitempty"`
}

func (*PolygonParams) Kind() Kind { return KindPolygon }

func (p *PolygonParams) validate() error {
	if len(p.Vertices) < 3 {
		return errors.New("polygon needs at least 3 vertices")
	}
	for i, v := range p.Vertices {
		if !v.valid() {
			return fmt.Errorf("vertex %d coordinates out of range", i)
		}
	}
	return validateAltitudes(p.AltitudeMin, p.AltitudeMax)
}

func (p *PolygonParams) evaluate(b Boundary, s Sample, _ *State) Result {
	pos, ok := s.Position()
	if !ok {
		if s.malformedPosition() {
			return fail(b, "position has non-numeric coordinates")
		}
		return pass(b)
	}
	horizontal := pointInPolygon(pos.LatLon, p.Vertices)
	band := altitudeBand(pos, p.AltitudeMin, p.AltitudeMax)
	if p.Exclusion {
		if horizontal && band == "" {
			return fail(b, "position (%s, %s) inside exclusion zone", formatNumber(pos.Lat), formatNumber(pos.Lon))
		}
		return pass(b)
	}
	if !horizontal {
		return fail(b, "position (%s, %s) outside polygon", formatNumber(pos.Lat), formatNumber(pos.Lon))
	}
	if band != "" {
		return fail(b, "%s", band)
	}
	return pass(b)
}

func validateAltitudes(minAlt, maxAlt *float64) error {
	if err := requireFinite(limit("altitude_min", minAlt), limit("altitude_max", maxAlt)); err != nil {
		return err
	}
	if minAlt != nil && maxAlt != nil && *minAlt > *maxAlt {
		return errors.New("altitude_min greater than altitude_max")
	}
	return nil
}

// TemporalParams limits operation to a daily window in a named timezone.
// When StartHour > EndHour the window wraps past midnight.
type TemporalParams struct {
	StartHour   float64  `json:"start_hour" yaml:"start_hour"`
	EndHour     float64  `json:"end_hour" yaml:"end_hour"`
	AllowedDays []string `json:"allowed_days,omitempty" yaml:"allowed_days,omitempty"`
	Timezone    string   `json:"timezone" yaml:"timezone"`

	loc *time.Location
}

func (*TemporalParams) Kind() Kind { return KindTemporal }

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

func (p *TemporalParams) validate() error {
	if err := requireFinite(limit("start_hour", &p.StartHour), limit("end_hour", &p.EndHour)); err != nil {
		return err
	}
	if p.StartHour < 0 || p.StartHour > 24 || p.EndHour < 0 || p.EndHour > 24 {
		return errors.New("start_hour and end_hour must be within 0..24")
	}
	for _, d := range p.AllowedDays {
		if _, ok := weekdays[strings.ToLower(d)]; !ok {
			return fmt.Errorf("unknown day %q", d)
		}
	}
	loc, err := time.LoadLocation(p.timezoneName())
	if err != nil {
		return fmt.Errorf("unknown timezone %q", p.Timezone)
	}
	p.loc = loc
	return nil
}

func (p *TemporalParams) timezoneName() string {
	if p.Timezone == "" {
		return "UTC"
	}
	return p.Timezone
}

func (p *TemporalParams) location() *time.Location {
	if p.loc != nil {
		return p.loc
	}
	if loc, err := time.LoadLocation(p.timezoneName()); err == nil {
		return loc
	}
	return time.UTC
}

func (p *TemporalParams) evaluate(b Boundary, s Sample, _ *State) Result {
	local := s.Timestamp.In(p.location())
	if len(p.AllowedDays) > 0 {
		allowed := false
		for _, d := range p.AllowedDays {
			if weekdays[strings.ToLower(d)] == local.Weekday() {
				allowed = true
				break
			}
		}
		if !allowed {
			return fail(b, "day %s not in allowed days", strings.ToLower(local.Weekday().String()))
		}
	}
	h := float64(local.Hour()) + float64(local.Minute())/60 + float64(local.Second())/3600
	var inside bool
	if p.StartHour <= p.EndHour {
		inside = h >= p.StartHour && h <= p.EndHour
	} else {
		inside = h >= p.StartHour || h <= p.EndHour
	}
	if !inside {
		return fail(b, "time %s outside operating window %s-%s (%s)",
			local.Format("15:04"), clock(p.StartHour), clock(p.EndHour), p.timezoneName())
	}
	return pass(b)
}

func clock(h float64) string {
	mins := int(math.Round(h * 60))
	return fmt.Sprintf("%02d:%02d", mins/60, mins%60)
}

// RateOfChangeParams caps how fast a parameter may change, averaged over a
// trailing window.
type RateOfChangeParams struct {
	Parameter string  `json:"parameter" yaml:"parameter"`
	MaxDelta  float64 `json:"max_delta" yaml:"max_delta"`
	WindowS   float64 `json:"window_s" yaml:"window_s"`
	Unit      string  `json:"unit,omitempty" yaml:"unit,omitempty"`
}

func (*RateOfChangeParams) Kind() Kind { return KindRateOfChange }

func (p *RateOfChangeParams) validate() error {
	if err := requireFinite(limit("max_delta", &p.MaxDelta), limit("window_s", &p.WindowS)); err != nil {
		return err
	}
	if strings.TrimSpace(p.Parameter) == "" {
		return errors.New("parameter is required")
	}
	if p.MaxDelta < 0 {
		return errors.New("max_delta must be non-negative")
	}
	if p.WindowS <= 0 {
		return errors.New("window_s must be positive")
	}
	return nil
}

func (p *RateOfChangeParams) window() time.Duration {
	return time.Duration(p.WindowS * float64(time.Second))
}

func (p *RateOfChangeParams) evaluate(b Boundary, s Sample, st *State) Result {
	v, present, err := s.Number(p.Parameter)
	if !present {
		return pass(b)
	}
	if err != nil {
		return fail(b, "%s has non-numeric value", p.Parameter)
	}
	ref, ok := st.rateReference(b.ID, s.Timestamp, p.window())
	if !ok {
		return pass(b)
	}
	rate := math.Abs(v-ref.value) / p.WindowS
	if rate > p.MaxDelta {
		return fail(b, "%s rate of change (%s per s) above maximum (%s per s)",
			p.Parameter, formatNumber(rate), formatNumber(p.MaxDelta))
	}
	return pass(b)
}

func (p *RateOfChangeParams) record(b Boundary, s Sample, st *State) {
	v, present, err := s.Number(p.Parameter)
	if !present || err != nil {
		return
	}
	st.pushRate(b.ID, point{at: s.Timestamp, value: v}, p.window())
}

// ConnectivityParams bounds the silence between agent contacts. It is
// evaluated at session-tick cadence, not per sample.
type ConnectivityParams struct {
	MaxGapS float64 `json:"max_gap_s" yaml:"max_gap_s"`
}

func (*ConnectivityParams) Kind() Kind { return KindConnectivity }

func (p *ConnectivityParams) validate() error {
	if err := requireFinite(limit("max_gap_s", &p.MaxGapS)); err != nil {
		return err
	}
	if p.MaxGapS <= 0 {
		return errors.New("max_gap_s must be positive")
	}
	return nil
}

func (p *ConnectivityParams) evaluate(b Boundary, _ Sample, _ *State) Result {
	return pass(b)
}

// MaxGap returns the allowed silence as a duration.
func (p *ConnectivityParams) MaxGap() time.Duration {
	return time.Duration(p.MaxGapS * float64(time.Second))
}

// CumulativeParams caps the running sum of a parameter per reset period.
type CumulativeParams struct {
	Parameter   string   `json:"parameter" yaml:"parameter"`
	MaxTotal    float64  `json:"max_total" yaml:"max_total"`
	ResetPeriod Duration `json:"reset_period" yaml:"reset_period"`
}

func (*CumulativeParams) Kind() Kind { return KindCumulative }

func (p *CumulativeParams) validate() error {
	if err := requireFinite(limit("max_total", &p.MaxTotal)); err != nil {
		return err
	}
	if strings.TrimSpace(p.Parameter) == "" {
		return errors.New("parameter is required")
	}
	if p.ResetPeriod <= 0 {
		return errors.New("reset_period must be positive")
	}
	return nil
}

func (p *CumulativeParams) evaluate(b Boundary, s Sample, st *State) Result {
	v, present, err := s.Number(p.Parameter)
	if !present {
		return pass(b)
	}
	if err != nil {
		return fail(b, "%s has non-numeric value", p.Parameter)
	}
	total := st.runningTotal(b.ID, s.Timestamp, time.Duration(p.ResetPeriod)).total + v
	if total > p.MaxTotal {
		return fail(b, "%s cumulative total (%s) above maximum (%s)",
			p.Parameter, formatNumber(total), formatNumber(p.MaxTotal))
	}
	return pass(b)
}

func (p *CumulativeParams) record(b Boundary, s Sample, st *State) {
	v, present, err := s.Number(p.Parameter)
	if !present || err != nil {
		return
	}
	acc := st.runningTotal(b.ID, s.Timestamp, time.Duration(p.ResetPeriod))
	acc.total += v
	st.totals[b.ID] = acc
}

// CompoundParams applies ThenLimit only while ConditionExpr holds.
type CompoundParams struct {
	ConditionExpr string     `json:"condition_expr" yaml:"condition_expr"`
	ThenLimit     RangeLimit `json:"then_limit" yaml:"then_limit"`

	cond *condition
}

// RangeLimit is the numeric limit a compound boundary enforces.
type RangeLimit struct {
	Parameter string   `json:"parameter" yaml:"parameter"`
	Min       *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max       *float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

func (*CompoundParams) Kind() Kind { return KindCompound }

func (p *CompoundParams) validate() error {
	if err := requireFinite(limit("then_limit.min", p.ThenLimit.Min), limit("then_limit.max", p.ThenLimit.Max)); err != nil {
		return err
	}
	cond, err := parseCondition(p.ConditionExpr)
	if err != nil {
		return fmt.Errorf("condition_expr: %w", err)
	}
	if strings.TrimSpace(p.ThenLimit.Parameter) == "" {
		return errors.New("then_limit.parameter is required")
	}
	if p.ThenLimit.Min == nil && p.ThenLimit.Max == nil {
		return errors.New("then_limit needs min or max")
	}
	if p.ThenLimit.Min != nil && p.ThenLimit.Max != nil && *p.ThenLimit.Min > *p.ThenLimit.Max {
		return errors.New("then_limit min greater than max")
	}
	p.cond = cond
	return nil
}

func (p *CompoundParams) condition() *condition {
	if p.cond != nil {
		return p.cond
	}
	cond, err := parseCondition(p.ConditionExpr)
	if err != nil {
		return nil
	}
	return cond
}

func (p *CompoundParams) evaluate(b Boundary, s Sample, _ *State) Result {
	cond := p.condition()
	if cond == nil || !cond.holds(s) {
		return pass(b)
	}
	v, present, err := s.Number(p.ThenLimit.Parameter)
	if !present {
		return pass(b)
	}
	if err != nil {
		return fail(b, "%s has non-numeric value", p.ThenLimit.Parameter)
	}
	r := checkRange(b, p.ThenLimit.Parameter, v, p.ThenLimit.Min, p.ThenLimit.Max, 0)
	if !r.Passed {
		r.Message = "when " + strings.TrimSpace(p.ConditionExpr) + ": " + r.Message
	}
	return r
}

// SequenceParams requires a phase parameter to move through RequiredOrder
// one step at a time, restarting at the first step after the last.
type SequenceParams struct {
	Parameter     string   `json:"parameter" yaml:"parameter"`
	RequiredOrder []string `json:"required_order" yaml:"required_order"`
}

func (*SequenceParams) Kind() Kind { return KindSequence }

func (p *SequenceParams) validate() error {
	if strings.TrimSpace(p.Parameter) == "" {
		return errors.New("parameter is required")
	}
	if len(p.RequiredOrder) == 0 {
		return errors.New("required_order is required")
	}
	seen := make(map[string]struct{}, len(p.RequiredOrder))
	for _, step := range p.RequiredOrder {
		if _, dup := seen[step]; dup {
			return fmt.Errorf("required_order repeats %q", step)
		}
		seen[step] = struct{}{}
	}
	return nil
}

func (p *SequenceParams) evaluate(b Boundary, s Sample, st *State) Result {
	v, ok := s.Text(p.Parameter)
	if !ok {
		return pass(b)
	}
	idx := slices.Index(p.RequiredOrder, v)
	if idx < 0 {
		return fail(b, "%s (%s) not in required order", p.Parameter, v)
	}
	cur := st.sequencePosition(b.ID)
	if p.allowed(cur, idx) {
		return pass(b)
	}
	expected := p.RequiredOrder[0]
	if cur >= 0 {
		expected = p.RequiredOrder[cur] + " or " + p.RequiredOrder[(cur+1)%len(p.RequiredOrder)]
	}
	return fail(b, "%s (%s) out of order, expected %s", p.Parameter, v, expected)
}

func (p *SequenceParams) allowed(cur, next int) bool {
	if cur < 0 {
		return next == 0
	}
	return next == cur || next == (cur+1)%len(p.RequiredOrder)
}

func (p *SequenceParams) record(b Boundary, s Sample, st *State) {
	v, ok := s.Text(p.Parameter)
	if !ok {
		return
	}
	if idx := slices.Index(p.RequiredOrder, v); idx >= 0 {
		st.sequences[b.ID] = idx
	}
}

// StatisticalParams bounds the mean and spread of a parameter over the last
// WindowSize samples.
type StatisticalParams struct {
	Parameter  string   `json:"parameter" yaml:"parameter"`
	WindowSize int      `json:"window_size" yaml:"window_size"`
	MinMean    *float64 `json:"min_mean,omitempty" yaml:"min_mean,omitempty"`
	MaxMean    *float64 `json:"max_mean,omitempty" yaml:"max_mean,omitempty"`
	MaxStdDev  *float64 `json:"max_stddev,omitempty" yaml:"max_stddev,omitempty"`
}

func (*StatisticalParams) Kind() Kind { return KindStatistical }

func (p *StatisticalParams) validate() error {
	if err := requireFinite(limit("min_mean", p.MinMean), limit("max_mean", p.MaxMean), limit("max_stddev", p.MaxStdDev)); err != nil {
		return err
	}
	if strings.TrimSpace(p.Parameter) == "" {
		return errors.New("parameter is required")
	}
	if p.WindowSize < 2 {
		return errors.New("window_size must be at least 2")
	}
	if p.MinMean == nil && p.MaxMean == nil && p.MaxStdDev == nil {
		return errors.New("one of min_mean, max_mean or max_stddev is required")
	}
	if p.MinMean != nil && p.MaxMean != nil && *p.MinMean > *p.MaxMean {
		return errors.New("min_mean greater than max_mean")
	}
	if p.MaxStdDev != nil && *p.MaxStdDev < 0 {
		return errors.New("max_stddev must be non-negative")
	}
	return nil
}

func (p *StatisticalParams) evaluate(b Boundary, s Sample, st *State) Result {
	v, present, err := s.Number(p.Parameter)
	if !present {
		return pass(b)
	}
	if err != nil {
		return fail(b, "%s has non-numeric value", p.Parameter)
	}
	window := st.windowWith(b.ID, v, p.WindowSize)
	if len(window) < 2 {
		return pass(b)
	}
	mean := Mean(window)
	if p.MaxMean != nil && mean > *p.MaxMean {
		return fail(b, "%s mean (%s) above maximum (%s)", p.Parameter, formatNumber(round3(mean)), formatNumber(*p.MaxMean))
	}
	if p.MinMean != nil && mean < *p.MinMean {
		return fail(b, "%s mean (%s) below minimum (%s)", p.Parameter, formatNumber(round3(mean)), formatNumber(*p.MinMean))
	}
	if p.MaxStdDev != nil {
		if sd := StdDev(window); sd > *p.MaxStdDev {
			return fail(b, "%s stddev (%s) above maximum (%s)", p.Parameter, formatNumber(round3(sd)), formatNumber(*p.MaxStdDev))
		}
	}
	return pass(b)
}

func (p *StatisticalParams) record(b Boundary, s Sample, st *State) {
	v, present, err := s.Number(p.Parameter)
	if !present || err != nil {
		return
	}
	st.windows[b.ID] = st.windowWith(b.ID, v, p.WindowSize)
}

// Mean returns the arithmetic mean of values, or 0 when empty.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation of values.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := Mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// Duration is a time.Duration persisted as a Go duration string ("24h").
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("invalid duration %q", string(b))
	}
	*d = Duration(parsed)
	return nil
}
