package models

import (
	"fmt"
	"slices"
	"strings"

	dErrors "oddcert/pkg/domain-errors"
)

// State is the certification lifecycle state of an application.
type State string

const (
	StatePending     State = "pending"
	StateUnderReview State = "under_review"
	StateApproved    State = "approved"
	StateObserve     State = "observe"
	StateBounded     State = "bounded"
	StateTesting     State = "testing"
	StateConformant  State = "conformant"
	StateSuspended   State = "suspended"
	StateRevoked     State = "revoked"
	StateExpired     State = "expired"
)

var allStates = []State{
	StatePending, StateUnderReview, StateApproved, StateObserve, StateBounded,
	StateTesting, StateConformant, StateSuspended, StateRevoked, StateExpired,
}

// ParseState validates a state name from a request.
func ParseState(s string) (State, error) {
	st := State(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(allStates, st) {
		return st, nil
	}
	if st == "" {
		return "", dErrors.New(dErrors.CodeValidation, "state is required")
	}
	return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown state %q", s))
}

func (s State) String() string { return string(s) }

// AcceptsSessions reports whether agents may register in this state.
func (s State) AcceptsSessions() bool {
	switch s {
	case StateApproved, StateObserve, StateBounded, StateTesting, StateConformant, StateSuspended:
		return true
	default:
		return false
	}
}

// Trigger is what caused a transition. Each edge of the lifecycle lists the
// triggers allowed to fire it.
type Trigger string

const (
	// TriggerReviewer is a manual transition by an admin or operator.
	TriggerReviewer Trigger = "reviewer"
	// TriggerRegistration is the first agent session registration.
	TriggerRegistration Trigger = "session_registration"
	// TriggerFinalize closes observation with an envelope proposal.
	TriggerFinalize Trigger = "finalize_boundaries"
	// TriggerBegin starts a conformance test attempt.
	TriggerBegin Trigger = "begin_cat72"
	// TriggerAutoPass is a conformance test reaching its duration clean.
	TriggerAutoPass Trigger = "cat72_pass"
	// TriggerAutoFail is a failing violation, connectivity fault or a test
	// expiring with unresolved violations.
	TriggerAutoFail Trigger = "cat72_fail"
	// TriggerOverride is an audited administrative pass.
	TriggerOverride Trigger = "admin_override"
	// TriggerExpiry is the certificate expiry sweep.
	TriggerExpiry Trigger = "certificate_expiry"
)

type edge struct {
	from, to State
}

// transitions is the lifecycle graph. Anything absent is invalid.
var transitions = map[edge][]Trigger{
	{StatePending, StateUnderReview}:   {TriggerReviewer},
	{StateUnderReview, StateApproved}:  {TriggerReviewer},
	{StateApproved, StateObserve}:      {TriggerRegistration},
	{StateObserve, StateBounded}:       {TriggerFinalize},
	{StateBounded, StateTesting}:       {TriggerBegin},
	{StateSuspended, StateTesting}:     {TriggerBegin},
	{StateTesting, StateConformant}:    {TriggerAutoPass, TriggerOverride},
	{StateTesting, StateSuspended}:     {TriggerAutoFail, TriggerReviewer},
	{StateConformant, StateExpired}:    {TriggerExpiry},
	{StateSuspended, StatePending}:     {TriggerReviewer},
	{StateRevoked, StatePending}:       {TriggerReviewer},
	{StateExpired, StatePending}:       {TriggerReviewer},
	{StateUnderReview, StateRevoked}:   {TriggerReviewer},
	{StateConformant, StateSuspended}:  {TriggerReviewer},
	{StateConformant, StateRevoked}:    {TriggerReviewer},
	{StateSuspended, StateRevoked}:     {TriggerReviewer},
	{StateExpired, StateRevoked}:       {TriggerReviewer},
	{StatePending, StateRevoked}:       {TriggerReviewer},
	{StatePending, StateSuspended}:     {TriggerReviewer},
	{StateUnderReview, StateSuspended}: {TriggerReviewer},
	{StateApproved, StateSuspended}:    {TriggerReviewer},
	{StateApproved, StateRevoked}:      {TriggerReviewer},
	{StateObserve, StateSuspended}:     {TriggerReviewer},
	{StateObserve, StateRevoked}:       {TriggerReviewer},
	{StateBounded, StateSuspended}:     {TriggerReviewer},
	{StateBounded, StateRevoked}:       {TriggerReviewer},
	{StateTesting, StateRevoked}:       {TriggerReviewer},
}

// CheckTransition validates one edge of the lifecycle for a trigger.
func CheckTransition(from, to State, trigger Trigger) error {
	if from == to {
		return &TransitionError{From: from, To: to, Reason: "application is already in this state"}
	}
	triggers, ok := transitions[edge{from, to}]
	if !ok {
		return &TransitionError{From: from, To: to, Reason: "no such transition"}
	}
	if !slices.Contains(triggers, trigger) {
		return &TransitionError{From: from, To: to, Reason: fmt.Sprintf("transition cannot be triggered by %s", trigger)}
	}
	return nil
}

// Targets lists the states reachable from s by trigger, in lifecycle order.
func Targets(s State, trigger Trigger) []State {
	var out []State
	for _, to := range allStates {
		if CheckTransition(s, to, trigger) == nil {
			out = append(out, to)
		}
	}
	return out
}

// TransitionError rejects a lifecycle edge. It is never coerced into a
// different transition.
type TransitionError struct {
	From   State
	To     State
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s: %s", e.From, e.To, e.Reason)
}

// Unwrap exposes the domain error code so handlers map it to 409.
func (e *TransitionError) Unwrap() error {
	return dErrors.New(dErrors.CodeInvalidTransition, e.Error())
}

// ErrorFields adds the current and attempted state to the error body.
func (e *TransitionError) ErrorFields() map[string]string {
	return map[string]string{
		"reason":          e.Reason,
		"current_state":   string(e.From),
		"attempted_state": string(e.To),
	}
}
