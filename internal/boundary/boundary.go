// Package boundary defines the typed boundary taxonomy of an Operational
// Design Domain and the evaluator that decides, for one telemetry sample,
// whether an autonomous system is inside its declared envelope.
//
// A Boundary is a closed tagged variant: Kind selects exactly one concrete
// Params type. Every Params type carries its own evaluation, so a kind cannot
// exist without one.
//
// Evaluation is pure. It reads a snapshot of the session-owned rolling State
// and never mutates it; the caller commits the sample with State.Record once
// the verdict is known.
package boundary

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	dErrors "oddcert/pkg/domain-errors"
)

// Kind names a boundary variant.
type Kind string

const (
	KindNumeric      Kind = "numeric"
	KindCategorical  Kind = "categorical"
	KindGeographic   Kind = "geographic"
	KindPolygon      Kind = "polygon"
	KindTemporal     Kind = "temporal"
	KindRateOfChange Kind = "rate_of_change"
	KindConnectivity Kind = "connectivity"
	KindCumulative   Kind = "cumulative"
	KindCompound     Kind = "compound"
	KindSequence     Kind = "sequence"
	KindStatistical  Kind = "statistical"
)

// Params is the sealed set of kind-specific boundary parameters.
type Params interface {
	Kind() Kind
	validate() error
	evaluate(b Boundary, s Sample, st *State) Result
}

// recorder is implemented by kinds that keep rolling state between samples.
type recorder interface {
	record(b Boundary, s Sample, st *State)
}

// Boundary is one named constraint inside an envelope.
type Boundary struct {
	ID     string
	Name   string
	Params Params
}

// Kind returns the variant tag, or "" when Params is unset.
func (b Boundary) Kind() Kind {
	if b.Params == nil {
		return ""
	}
	return b.Params.Kind()
}

// Validate checks the definition-time invariants of a single boundary.
func (b Boundary) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return &ValidationError{Reason: "boundary id is required"}
	}
	if b.Params == nil {
		return &ValidationError{BoundaryID: b.ID, Reason: "boundary kind is required"}
	}
	if err := b.Params.validate(); err != nil {
		return &ValidationError{BoundaryID: b.ID, Reason: err.Error()}
	}
	return nil
}

// ValidationError rejects a malformed boundary or envelope at definition
// time. It never reaches the evaluator.
type ValidationError struct {
	BoundaryID string
	Reason     string
}

func (e *ValidationError) Error() string {
	if e.BoundaryID == "" {
		return e.Reason
	}
	return fmt.Sprintf("boundary %q: %s", e.BoundaryID, e.Reason)
}

// Unwrap exposes the domain code so handlers render a 422.
func (e *ValidationError) Unwrap() error {
	return dErrors.New(dErrors.CodeValidation, e.Error())
}

// Sample is one telemetry record. It is ephemeral: only tallies and, during
// a conformance test, evaluation records outlive it.
type Sample struct {
	Timestamp  time.Time      `json:"timestamp"`
	ActionID   string         `json:"action_id,omitempty"`
	Parameters map[string]any `json:"parameters"`
}

// Value returns the raw value of a parameter.
func (s Sample) Value(name string) (any, bool) {
	v, ok := s.Parameters[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Number returns a parameter as float64. present is false when the sample
// does not carry the parameter; err is set when it does but is not numeric.
func (s Sample) Number(name string) (v float64, present bool, err error) {
	raw, ok := s.Value(name)
	if !ok {
		return 0, false, nil
	}
	v, err = toFloat(raw)
	if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
		return 0, true, fmt.Errorf("%s is not a finite number", name)
	}
	return v, true, err
}

// Text returns a parameter rendered as a string.
func (s Sample) Text(name string) (string, bool) {
	raw, ok := s.Value(name)
	if !ok {
		return "", false
	}
	switch t := raw.(type) {
	case string:
		return t, true
	case fmt.Stringer:
		return t.String(), true
	default:
		return fmt.Sprint(t), true
	}
}

func toFloat(val any) (float64, error) {
	switch t := val.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", val)
	}
}

// Result is the outcome of one boundary against one sample.
type Result struct {
	BoundaryID string
	Passed     bool
	Message    string
}

func pass(b Boundary) Result {
	return Result{BoundaryID: b.ID, Passed: true}
}

func fail(b Boundary, format string, args ...any) Result {
	return Result{BoundaryID: b.ID, Message: fmt.Sprintf(format, args...)}
}

// Verdict is the envelope-level outcome of a sample.
type Verdict string

const (
	VerdictPass  Verdict = "PASS"
	VerdictBlock Verdict = "BLOCK"
)

// Violation names a failed boundary and why it failed.
type Violation struct {
	BoundaryID string `json:"boundary_id" cbor:"boundary_id"`
	Message    string `json:"message" cbor:"message"`
}

// EvaluationResult is the immutable outcome of evaluating one sample against
// a whole envelope. BLOCK carries every violation, never just the first.
type EvaluationResult struct {
	SampleRef   string      `json:"sample_ref" cbor:"sample_ref"`
	Verdict     Verdict     `json:"verdict" cbor:"verdict"`
	Violations  []Violation `json:"violations" cbor:"violations"`
	EvaluatedAt time.Time   `json:"evaluated_at" cbor:"evaluated_at"`
}

// Blocked reports whether the sample was outside the envelope.
func (r EvaluationResult) Blocked() bool {
	return r.Verdict == VerdictBlock
}

// formatNumber renders a float without trailing zeros, so 150 prints as
// "150" and 12.5 as "12.5".
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
