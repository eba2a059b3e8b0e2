package boundary

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects the textual form of a persisted envelope.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json, yaml or yml.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown envelope format %q", s)
	}
}

// Document is the persisted envelope shape. Boundaries are grouped by
// family; Order records the original envelope order so mixed-kind ordering
// survives a round trip.
type Document struct {
	NumericBoundaries      []numericDoc      `json:"numeric_boundaries,omitempty" yaml:"numeric_boundaries,omitempty"`
	GeoBoundaries          []geoDoc          `json:"geo_boundaries,omitempty" yaml:"geo_boundaries,omitempty"`
	TimeBoundaries         []timeDoc         `json:"time_boundaries,omitempty" yaml:"time_boundaries,omitempty"`
	StateBoundaries        []stateDoc        `json:"state_boundaries,omitempty" yaml:"state_boundaries,omitempty"`
	RateBoundaries         []rateDoc         `json:"rate_boundaries,omitempty" yaml:"rate_boundaries,omitempty"`
	ConnectivityBoundaries []connectivityDoc `json:"connectivity_boundaries,omitempty" yaml:"connectivity_boundaries,omitempty"`
	CumulativeBoundaries   []cumulativeDoc   `json:"cumulative_boundaries,omitempty" yaml:"cumulative_boundaries,omitempty"`
	CompoundBoundaries     []compoundDoc     `json:"compound_boundaries,omitempty" yaml:"compound_boundaries,omitempty"`
	SequenceBoundaries     []sequenceDoc     `json:"sequence_boundaries,omitempty" yaml:"sequence_boundaries,omitempty"`
	StatisticalBoundaries  []statisticalDoc  `json:"statistical_boundaries,omitempty" yaml:"statistical_boundaries,omitempty"`
	Order                  []string          `json:"order,omitempty" yaml:"order,omitempty"`
	FailPolicy             failPolicyDoc     `json:"fail_policy" yaml:"fail_policy"`
}

type header struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

type numericDoc struct {
	header        `yaml:",inline"`
	NumericParams `yaml:",inline"`
}

type stateDoc struct {
	header            `yaml:",inline"`
	CategoricalParams `yaml:",inline"`
}

type timeDoc struct {
	header         `yaml:",inline"`
	TemporalParams `yaml:",inline"`
}

type rateDoc struct {
	header             `yaml:",inline"`
	RateOfChangeParams `yaml:",inline"`
}

type connectivityDoc struct {
	header             `yaml:",inline"`
	ConnectivityParams `yaml:",inline"`
}

type cumulativeDoc struct {
	header           `yaml:",inline"`
	CumulativeParams `yaml:",inline"`
}

type compoundDoc struct {
	header         `yaml:",inline"`
	CompoundParams `yaml:",inline"`
}

type sequenceDoc struct {
	header         `yaml:",inline"`
	SequenceParams `yaml:",inline"`
}

type statisticalDoc struct {
	header            `yaml:",inline"`
	StatisticalParams `yaml:",inline"`
}

const (
	geoTypeCircle  = "circle"
	geoTypePolygon = "polygon"
)

// geoDoc holds both geofence shapes; Type selects which fields apply.
type geoDoc struct {
	header      `yaml:",inline"`
	Type        string   `json:"type" yaml:"type"`
	Center      *LatLon  `json:"center,omitempty" yaml:"center,omitempty"`
	RadiusM     float64  `json:"radius_m,omitempty" yaml:"radius_m,omitempty"`
	Vertices    []LatLon `json:"vertices,omitempty" yaml:"vertices,omitempty"`
	AltitudeMin *float64 `json:"altitude_min,omitempty" yaml:"altitude_min,omitempty"`
	AltitudeMax *float64 `json:"altitude_max,omitempty" yaml:"altitude_max,omitempty"`
	Exclusion   bool     `json:"exclusion,omitempty" yaml:"exclusion,omitempty"`
}

type failPolicyDoc struct {
	ViolationAction      ViolationAction      `json:"violation_action,omitempty" yaml:"violation_action,omitempty"`
	ConnectionLossAction ConnectionLossAction `json:"connection_loss_action,omitempty" yaml:"connection_loss_action,omitempty"`
	FailClosed           *bool                `json:"fail_closed,omitempty" yaml:"fail_closed,omitempty"`
}

// ToDocument converts an envelope into its persisted shape.
func ToDocument(e *Envelope) Document {
	failClosed := e.FailPolicy.FailClosed
	doc := Document{
		Order: e.IDs(),
		FailPolicy: failPolicyDoc{
			ViolationAction:      e.FailPolicy.ViolationAction,
			ConnectionLossAction: e.FailPolicy.ConnectionLossAction,
			FailClosed:           &failClosed,
		},
	}
	for _, b := range e.Boundaries {
		h := header{ID: b.ID, Name: b.Name}
		switch p := b.Params.(type) {
		case *NumericParams:
			doc.NumericBoundaries = append(doc.NumericBoundaries, numericDoc{h, *p})
		case *CategoricalParams:
			doc.StateBoundaries = append(doc.StateBoundaries, stateDoc{h, *p})
		case *GeographicParams:
			center := p.Center
			doc.GeoBoundaries = append(doc.GeoBoundaries, geoDoc{
				header: h, Type: geoTypeCircle, Center: &center, RadiusM: p.RadiusM,
				AltitudeMin: p.AltitudeMin, AltitudeMax: p.AltitudeMax, Exclusion: p.Exclusion,
			})
		case *PolygonParams:
			doc.GeoBoundaries = append(doc.GeoBoundaries, geoDoc{
				header: h, Type: geoTypePolygon, Vertices: p.Vertices,
				AltitudeMin: p.AltitudeMin, AltitudeMax: p.AltitudeMax, Exclusion: p.Exclusion,
			})
		case *TemporalParams:
			doc.TimeBoundaries = append(doc.TimeBoundaries, timeDoc{h, *p})
		case *RateOfChangeParams:
			doc.RateBoundaries = append(doc.RateBoundaries, rateDoc{h, *p})
		case *ConnectivityParams:
			doc.ConnectivityBoundaries = append(doc.ConnectivityBoundaries, connectivityDoc{h, *p})
		case *CumulativeParams:
			doc.CumulativeBoundaries = append(doc.CumulativeBoundaries, cumulativeDoc{h, *p})
		case *CompoundParams:
			doc.CompoundBoundaries = append(doc.CompoundBoundaries, compoundDoc{h, *p})
		case *SequenceParams:
			doc.SequenceBoundaries = append(doc.SequenceBoundaries, sequenceDoc{h, *p})
		case *StatisticalParams:
			doc.StatisticalBoundaries = append(doc.StatisticalBoundaries, statisticalDoc{h, *p})
		}
	}
	return doc
}

// Envelope converts a persisted document back into a validated envelope.
func (d Document) Envelope() (*Envelope, error) {
	var boundaries []Boundary
	add := func(h header, p Params) {
		boundaries = append(boundaries, Boundary{ID: h.ID, Name: h.Name, Params: p})
	}
	for i := range d.NumericBoundaries {
		p := d.NumericBoundaries[i].NumericParams
		add(d.NumericBoundaries[i].header, &p)
	}
	for _, g := range d.GeoBoundaries {
		switch g.Type {
		case geoTypeCircle:
			p := &GeographicParams{RadiusM: g.RadiusM, AltitudeMin: g.AltitudeMin, AltitudeMax: g.AltitudeMax, Exclusion: g.Exclusion}
			if g.Center != nil {
				p.Center = *g.Center
			}
			add(g.header, p)
		case geoTypePolygon:
			add(g.header, &PolygonParams{Vertices: g.Vertices, AltitudeMin: g.AltitudeMin, AltitudeMax: g.AltitudeMax, Exclusion: g.Exclusion})
		default:
			return nil, &ValidationError{BoundaryID: g.ID, Reason: fmt.Sprintf("unknown geo boundary type %q", g.Type)}
		}
	}
	for i := range d.TimeBoundaries {
		p := d.TimeBoundaries[i].TemporalParams
		add(d.TimeBoundaries[i].header, &p)
	}
	for i := range d.StateBoundaries {
		p := d.StateBoundaries[i].CategoricalParams
		add(d.StateBoundaries[i].header, &p)
	}
	for i := range d.RateBoundaries {
		p := d.RateBoundaries[i].RateOfChangeParams
		add(d.RateBoundaries[i].header, &p)
	}
	for i := range d.ConnectivityBoundaries {
		p := d.ConnectivityBoundaries[i].ConnectivityParams
		add(d.ConnectivityBoundaries[i].header, &p)
	}
	for i := range d.CumulativeBoundaries {
		p := d.CumulativeBoundaries[i].CumulativeParams
		add(d.CumulativeBoundaries[i].header, &p)
	}
	for i := range d.CompoundBoundaries {
		p := d.CompoundBoundaries[i].CompoundParams
		add(d.CompoundBoundaries[i].header, &p)
	}
	for i := range d.SequenceBoundaries {
		p := d.SequenceBoundaries[i].SequenceParams
		add(d.SequenceBoundaries[i].header, &p)
	}
	for i := range d.StatisticalBoundaries {
		p := d.StatisticalBoundaries[i].StatisticalParams
		add(d.StatisticalBoundaries[i].header, &p)
	}

	if len(d.Order) > 0 {
		ordered, err := applyOrder(boundaries, d.Order)
		if err != nil {
			return nil, err
		}
		boundaries = ordered
	}

	return NewEnvelope(boundaries, d.FailPolicy.policy())
}

func (p failPolicyDoc) policy() FailPolicy {
	policy := DefaultFailPolicy()
	if p.ViolationAction != "" {
		policy.ViolationAction = p.ViolationAction
	}
	if p.ConnectionLossAction != "" {
		policy.ConnectionLossAction = p.ConnectionLossAction
	}
	if p.FailClosed != nil {
		policy.FailClosed = *p.FailClosed
	}
	return policy
}

func applyOrder(boundaries []Boundary, order []string) ([]Boundary, error) {
	if len(order) != len(boundaries) {
		return nil, &ValidationError{Reason: fmt.Sprintf("order lists %d boundaries, envelope has %d", len(order), len(boundaries))}
	}
	pos := make(map[string]int, len(order))
	for i, id := range order {
		if _, dup := pos[id]; dup {
			return nil, &ValidationError{BoundaryID: id, Reason: "duplicate boundary id"}
		}
		pos[id] = i
	}
	for _, b := range boundaries {
		if _, ok := pos[b.ID]; !ok {
			return nil, &ValidationError{BoundaryID: b.ID, Reason: "boundary missing from order"}
		}
	}
	out := append([]Boundary(nil), boundaries...)
	sort.SliceStable(out, func(i, j int) bool { return pos[out[i].ID] < pos[out[j].ID] })
	return out, nil
}

// MarshalJSON renders the persisted shape.
func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(ToDocument(&e))
}

// UnmarshalJSON parses and validates the persisted shape. Unknown fields are
// rejected.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return &ValidationError{Reason: "malformed envelope: " + err.Error()}
	}
	env, err := doc.Envelope()
	if err != nil {
		return err
	}
	*e = *env
	return nil
}

// MarshalYAML renders the persisted shape.
func (e Envelope) MarshalYAML() (any, error) {
	return ToDocument(&e), nil
}

// UnmarshalYAML parses and validates the persisted shape.
func (e *Envelope) UnmarshalYAML(node *yaml.Node) error {
	var doc Document
	if err := node.Decode(&doc); err != nil {
		return &ValidationError{Reason: "malformed envelope: " + err.Error()}
	}
	env, err := doc.Envelope()
	if err != nil {
		return err
	}
	*e = *env
	return nil
}

// Encode writes env in the requested format.
func Encode(env *Envelope, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(env); err != nil {
			return nil, fmt.Errorf("encode envelope yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode envelope yaml: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return json.MarshalIndent(env, "", "  ")
	}
}

// Decode parses an envelope in the requested format. YAML input rejects
// unknown fields like JSON does.
func Decode(data []byte, format Format) (*Envelope, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ValidationError{Reason: "envelope document is empty"}
	}
	if format == FormatYAML {
		var doc Document
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, asValidation(err)
		}
		return doc.Envelope()
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, asValidation(err)
	}
	return &env, nil
}

func asValidation(err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	return &ValidationError{Reason: "malformed envelope: " + err.Error()}
}
