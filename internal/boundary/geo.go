package boundary

import "math"

const earthRadiusM = 6371000.0

// LatLon is a WGS84 coordinate in decimal degrees.
type LatLon struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

func (p LatLon) valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Position is the location carried by a sample.
type Position struct {
	LatLon
	Altitude    float64
	HasAltitude bool
}

var (
	latKeys = []string{"latitude", "lat"}
	lonKeys = []string{"longitude", "lon", "lng"}
	altKeys = []string{"altitude", "alt"}
)

// IsPositionKey reports whether name is one of the coordinate keys Position
// reads.
func IsPositionKey(name string) bool {
	for _, keys := range [][]string{latKeys, lonKeys, altKeys} {
		for _, k := range keys {
			if k == name {
				return true
			}
		}
	}
	return false
}

// Position extracts the sample location. ok is false when either coordinate
// is missing or when any coordinate key holds a non-numeric value.
func (s Sample) Position() (Position, bool) {
	if s.malformedPosition() {
		return Position{}, false
	}
	lat, ok := firstNumber(s, latKeys)
	if !ok {
		return Position{}, false
	}
	lon, ok := firstNumber(s, lonKeys)
	if !ok {
		return Position{}, false
	}
	pos := Position{LatLon: LatLon{Lat: lat, Lon: lon}}
	if alt, ok := firstNumber(s, altKeys); ok {
		pos.Altitude = alt
		pos.HasAltitude = true
	}
	return pos, true
}

// malformedPosition reports whether a coordinate key is present but does not
// hold a finite number.
func (s Sample) malformedPosition() bool {
	for _, keys := range [][]string{latKeys, lonKeys, altKeys} {
		for _, k := range keys {
			if _, present, err := s.Number(k); present && err != nil {
				return true
			}
		}
	}
	return false
}

func firstNumber(s Sample, keys []string) (float64, bool) {
	for _, k := range keys {
		v, present, err := s.Number(k)
		if present && err == nil {
			return v, true
		}
	}
	return 0, false
}

// haversineM returns the great-circle distance between two points in metres.
func haversineM(a, b LatLon) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// pointInPolygon uses ray casting on the lon/lat plane. Points on an edge may
// fall either way; envelopes are expected to carry margins well above that.
func pointInPolygon(p LatLon, vertices []LatLon) bool {
	inside := false
	n := len(vertices)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi, vj := vertices[i], vertices[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) {
			crossLon := (vj.Lon-vi.Lon)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat) + vi.Lon
			if p.Lon < crossLon {
				inside = !inside
			}
		}
	}
	return inside
}

// altitudeBand checks an optional [min, max] altitude range. It returns a
// violation message, or "" when the altitude is inside or unknown.
func altitudeBand(pos Position, minAlt, maxAlt *float64) string {
	if !pos.HasAltitude {
		return ""
	}
	if maxAlt != nil && pos.Altitude > *maxAlt {
		return "altitude (" + formatNumber(pos.Altitude) + ") above maximum (" + formatNumber(*maxAlt) + ")"
	}
	if minAlt != nil && pos.Altitude < *minAlt {
		return "altitude (" + formatNumber(pos.Altitude) + ") below minimum (" + formatNumber(*minAlt) + ")"
	}
	return ""
}
