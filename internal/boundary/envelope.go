package boundary

import (
	"fmt"
	"strings"
)

// ViolationAction decides what a violation does to an in-progress
// conformance test.
type ViolationAction string

const (
	// ViolationFailTest fails the running CAT-72 immediately.
	ViolationFailTest ViolationAction = "fail_test"
	// ViolationRecord records the violation as unresolved; a reviewer may
	// resolve it before the test window closes.
	ViolationRecord ViolationAction = "record"
)

// ConnectionLossAction is what the agent-side interlock does when contact
// with the service is lost.
type ConnectionLossAction string

const (
	ConnectionLossStop       ConnectionLossAction = "stop"
	ConnectionLossHold       ConnectionLossAction = "hold"
	ConnectionLossReturnHome ConnectionLossAction = "return_home"
)

// FailPolicy governs violations and connectivity faults. FailClosed treats
// a connectivity fault as a violation; fail-open must be explicit.
type FailPolicy struct {
	ViolationAction      ViolationAction
	ConnectionLossAction ConnectionLossAction
	FailClosed           bool
}

// DefaultFailPolicy is fail-closed.
func DefaultFailPolicy() FailPolicy {
	return FailPolicy{
		ViolationAction:      ViolationFailTest,
		ConnectionLossAction: ConnectionLossStop,
		FailClosed:           true,
	}
}

func (p FailPolicy) validate() error {
	switch p.ViolationAction {
	case ViolationFailTest, ViolationRecord:
	default:
		return &ValidationError{Reason: fmt.Sprintf("unknown violation_action %q", p.ViolationAction)}
	}
	switch p.ConnectionLossAction {
	case ConnectionLossStop, ConnectionLossHold, ConnectionLossReturnHome:
	default:
		return &ValidationError{Reason: fmt.Sprintf("unknown connection_loss_action %q", p.ConnectionLossAction)}
	}
	return nil
}

// Envelope is the complete set of boundaries an application is held to.
//
// Invariants:
//   - boundary ids are unique within the envelope
//   - every boundary passed its definition-time validation
//   - boundary order is preserved through persistence
//
// An envelope is owned by one application and is immutable once the
// applicant has acknowledged it; a new certification cycle replaces it.
type Envelope struct {
	Boundaries []Boundary
	FailPolicy FailPolicy
}

// NewEnvelope validates boundaries and policy and returns the envelope.
func NewEnvelope(boundaries []Boundary, policy FailPolicy) (*Envelope, error) {
	env := &Envelope{Boundaries: boundaries, FailPolicy: policy}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return env, nil
}

// Validate checks every boundary and the fail policy.
func (e *Envelope) Validate() error {
	seen := make(map[string]struct{}, len(e.Boundaries))
	for _, b := range e.Boundaries {
		if err := b.Validate(); err != nil {
			return err
		}
		key := strings.TrimSpace(b.ID)
		if _, dup := seen[key]; dup {
			return &ValidationError{BoundaryID: b.ID, Reason: "duplicate boundary id"}
		}
		seen[key] = struct{}{}
	}
	return e.FailPolicy.validate()
}

// Boundary looks up a boundary by id.
func (e *Envelope) Boundary(id string) (Boundary, bool) {
	for _, b := range e.Boundaries {
		if b.ID == id {
			return b, true
		}
	}
	return Boundary{}, false
}

// IDs returns boundary ids in envelope order.
func (e *Envelope) IDs() []string {
	ids := make([]string, 0, len(e.Boundaries))
	for _, b := range e.Boundaries {
		ids = append(ids, b.ID)
	}
	return ids
}

// Len returns the number of boundaries.
func (e *Envelope) Len() int {
	if e == nil {
		return 0
	}
	return len(e.Boundaries)
}
