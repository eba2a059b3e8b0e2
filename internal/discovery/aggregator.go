// Package discovery proposes an envelope from telemetry observed while an
// application is in the observe state.
package discovery

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"oddcert/internal/boundary"
)

const (
	// DefaultSafetyMargin widens every observed range by 10% of its span.
	DefaultSafetyMargin = 0.10
	// DefaultMaxCategories caps the distinct values kept per string parameter.
	DefaultMaxCategories = 64

	// minDegreePad keeps a single observed position from producing a
	// zero-area polygon (about 11 m of latitude).
	minDegreePad = 0.0001

	// Ids carry the boundary family so one parameter observed as both a
	// number and a string, or a parameter named "area", cannot collide.
	numericIDPrefix = "discovered-numeric-"
	stateIDPrefix   = "discovered-state-"
	areaID          = "discovered-geo-area"
)

// NumericStats is the observed extent of one numeric parameter.
type NumericStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int64   `json:"count"`
}

func (n *NumericStats) add(v float64) {
	if n.Count == 0 || v < n.Min {
		n.Min = v
	}
	if n.Count == 0 || v > n.Max {
		n.Max = v
	}
	n.Count++
}

// Area is the bounding box of every observed position.
type Area struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
	// Altitude extent, only when at least one position carried altitude.
	Altitude *NumericStats `json:"altitude,omitempty"`
	Count    int64         `json:"count"`
}

func (a *Area) add(pos boundary.Position) {
	if a.Count == 0 {
		a.MinLat, a.MaxLat = pos.Lat, pos.Lat
		a.MinLon, a.MaxLon = pos.Lon, pos.Lon
	} else {
		a.MinLat = math.Min(a.MinLat, pos.Lat)
		a.MaxLat = math.Max(a.MaxLat, pos.Lat)
		a.MinLon = math.Min(a.MinLon, pos.Lon)
		a.MaxLon = math.Max(a.MaxLon, pos.Lon)
	}
	if pos.HasAltitude {
		if a.Altitude == nil {
			a.Altitude = &NumericStats{}
		}
		a.Altitude.add(pos.Altitude)
	}
	a.Count++
}

// Summary is a point-in-time copy of what an aggregator has seen.
type Summary struct {
	Samples     int64                   `json:"samples"`
	Numeric     map[string]NumericStats `json:"numeric"`
	Categorical map[string][]string     `json:"categorical"`
	// Dropped lists string parameters that exceeded the distinct value cap.
	Dropped     []string  `json:"dropped,omitempty"`
	Area        *Area     `json:"area,omitempty"`
	FirstSample time.Time `json:"first_sample,omitempty"`
	LastSample  time.Time `json:"last_sample,omitempty"`
}

// Aggregator accumulates per-parameter extents. It is safe for concurrent
// use; sessions of the same application may feed it in parallel.
type Aggregator struct {
	mu            sync.Mutex
	maxCategories int
	samples       int64
	first, last   time.Time
	numeric       map[string]*NumericStats
	categorical   map[string]map[string]struct{}
	dropped       map[string]struct{}
	area          *Area
}

// NewAggregator returns an empty aggregator. maxCategories <= 0 selects
// DefaultMaxCategories.
func NewAggregator(maxCategories int) *Aggregator {
	if maxCategories <= 0 {
		maxCategories = DefaultMaxCategories
	}
	return &Aggregator{
		maxCategories: maxCategories,
		numeric:       make(map[string]*NumericStats),
		categorical:   make(map[string]map[string]struct{}),
		dropped:       make(map[string]struct{}),
	}
}

// Observe folds one accepted sample into the aggregate.
func (a *Aggregator) Observe(s boundary.Sample) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.samples++
	if a.first.IsZero() || s.Timestamp.Before(a.first) {
		a.first = s.Timestamp
	}
	if s.Timestamp.After(a.last) {
		a.last = s.Timestamp
	}

	if pos, ok := s.Position(); ok {
		if a.area == nil {
			a.area = &Area{}
		}
		a.area.add(pos)
	}

	for name, raw := range s.Parameters {
		if raw == nil || boundary.IsPositionKey(name) {
			continue
		}
		switch v := raw.(type) {
		case string:
			a.observeCategory(name, v)
		case bool:
			a.observeCategory(name, fmt.Sprint(v))
		default:
			f, present, err := s.Number(name)
			if !present || err != nil {
				continue
			}
			st, ok := a.numeric[name]
			if !ok {
				st = &NumericStats{}
				a.numeric[name] = st
			}
			st.add(f)
		}
	}
}

func (a *Aggregator) observeCategory(name, value string) {
	if _, gone := a.dropped[name]; gone {
		return
	}
	set, ok := a.categorical[name]
	if !ok {
		set = make(map[string]struct{})
		a.categorical[name] = set
	}
	set[value] = struct{}{}
	if len(set) > a.maxCategories {
		delete(a.categorical, name)
		a.dropped[name] = struct{}{}
	}
}

// Summary copies the current aggregate.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := Summary{
		Samples:     a.samples,
		Numeric:     make(map[string]NumericStats, len(a.numeric)),
		Categorical: make(map[string][]string, len(a.categorical)),
		FirstSample: a.first,
		LastSample:  a.last,
	}
	for name, st := range a.numeric {
		out.Numeric[name] = *st
	}
	for name, set := range a.categorical {
		out.Categorical[name] = sortedKeys(set)
	}
	out.Dropped = sortedKeys(a.dropped)
	if a.area != nil {
		area := *a.area
		if area.Altitude != nil {
			alt := *area.Altitude
			area.Altitude = &alt
		}
		out.Area = &area
	}
	return out
}

// ErrInvalidMargin is returned for a negative or non-finite margin.
var ErrInvalidMargin = errors.New("safety margin must be a non-negative number")

// Propose builds an envelope from the aggregate. Numeric ranges are widened
// by margin times their span (times |value| for a single observed value),
// string parameters become allowed sets, and observed positions become a
// bounding polygon. An aggregate with nothing usable yields an envelope
// with no boundaries. The proposal is never applied by the aggregator.
func (a *Aggregator) Propose(margin float64) (*boundary.Envelope, error) {
	if margin < 0 || math.IsNaN(margin) || math.IsInf(margin, 0) {
		return nil, ErrInvalidMargin
	}
	sum := a.Summary()

	var bs []boundary.Boundary
	for _, name := range sortedKeys(sum.Numeric) {
		st := sum.Numeric[name]
		lo, hi := widen(st.Min, st.Max, margin)
		bs = append(bs, boundary.Boundary{
			ID:     numericIDPrefix + name,
			Name:   name + " (discovered)",
			Params: &boundary.NumericParams{Parameter: name, Min: &lo, Max: &hi},
		})
	}
	for _, name := range sortedKeys(sum.Categorical) {
		bs = append(bs, boundary.Boundary{
			ID:     stateIDPrefix + name,
			Name:   name + " (discovered states)",
			Params: &boundary.CategoricalParams{Parameter: name, AllowedValues: sum.Categorical[name]},
		})
	}
	if sum.Area != nil {
		bs = append(bs, boundary.Boundary{
			ID:     areaID,
			Name:   "Operating area (discovered)",
			Params: areaPolygon(sum.Area, margin),
		})
	}
	return boundary.NewEnvelope(bs, boundary.DefaultFailPolicy())
}

func widen(lo, hi, margin float64) (float64, float64) {
	pad := margin * (hi - lo)
	if hi == lo {
		pad = margin * math.Abs(lo)
	}
	return lo - pad, hi + pad
}

func areaPolygon(area *Area, margin float64) *boundary.PolygonParams {
	latPad := math.Max(margin*(area.MaxLat-area.MinLat), minDegreePad)
	lonPad := math.Max(margin*(area.MaxLon-area.MinLon), minDegreePad)
	south := math.Max(area.MinLat-latPad, -90)
	north := math.Min(area.MaxLat+latPad, 90)
	west := math.Max(area.MinLon-lonPad, -180)
	east := math.Min(area.MaxLon+lonPad, 180)

	p := &boundary.PolygonParams{Vertices: []boundary.LatLon{
		{Lat: south, Lon: west},
		{Lat: south, Lon: east},
		{Lat: north, Lon: east},
		{Lat: north, Lon: west},
	}}
	if area.Altitude != nil {
		lo, hi := widen(area.Altitude.Min, area.Altitude.Max, margin)
		p.AltitudeMin, p.AltitudeMax = &lo, &hi
	}
	return p
}

func sortedKeys[V any](m map[string]V) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
