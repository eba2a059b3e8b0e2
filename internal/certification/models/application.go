package models

import (
	"strings"
	"time"

	"oddcert/internal/boundary"
	id "oddcert/pkg/domain"
	dErrors "oddcert/pkg/domain-errors"
)

// EnvelopeSource records where the current envelope came from.
type EnvelopeSource string

const (
	EnvelopeDiscovered EnvelopeSource = "discovered"
	EnvelopeManual     EnvelopeSource = "manual"
)

// SuspensionCAT72Failed marks a suspension caused by a failed test; only
// such suspensions may retry the test directly.
const SuspensionCAT72Failed = "cat72_failed"

const (
	maxNameLen        = 200
	maxDescriptionLen = 2000
)

// Application is an autonomous system going through certification.
//
// Invariants:
//   - State changes only through ApplyTransition after CheckTransition
//   - Envelope may change only before testing begins; acknowledgment is
//     cleared whenever the envelope changes
//   - StateConformant is entered only from StateTesting with a CAT-72 PASS
type Application struct {
	ID                     id.ApplicationID   `json:"id"`
	Name                   string             `json:"name"`
	Description            string             `json:"description,omitempty"`
	ApplicantID            string             `json:"applicant_id"`
	State                  State              `json:"state"`
	Envelope               *boundary.Envelope `json:"envelope"`
	EnvelopeSource         EnvelopeSource     `json:"envelope_source,omitempty"`
	EnvelopeAcknowledgedAt *time.Time         `json:"envelope_acknowledged_at,omitempty"`
	EnvelopeAcknowledgedBy string             `json:"envelope_acknowledged_by,omitempty"`
	CAT72                  *CAT72Test         `json:"cat72"`
	SuspensionReason       string             `json:"suspension_reason,omitempty"`
	CredentialIssuedAt     *time.Time         `json:"credential_issued_at,omitempty"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

// NewApplication validates and creates a pending application.
func NewApplication(appID id.ApplicationID, name, description, applicantID string, now time.Time) (*Application, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "name is required")
	}
	if len(name) > maxNameLen {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "name must be 200 characters or less")
	}
	if len(description) > maxDescriptionLen {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "description must be 2000 characters or less")
	}
	if strings.TrimSpace(applicantID) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "applicant_id is required")
	}
	return &Application{
		ID:          appID,
		Name:        name,
		Description: description,
		ApplicantID: applicantID,
		State:       StatePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Acknowledged reports whether the current envelope was accepted.
func (a *Application) Acknowledged() bool {
	return a.EnvelopeAcknowledgedAt != nil
}

// Observing reports whether telemetry feeds auto-discovery.
func (a *Application) Observing() bool {
	return a.State == StateObserve
}

// Testing reports whether a conformance test is running.
func (a *Application) Testing() bool {
	return a.State == StateTesting && a.CAT72 != nil && a.CAT72.Running()
}

// CanTransition checks the lifecycle edge and the guards that belong to the
// application itself.
func (a *Application) CanTransition(to State, trigger Trigger) error {
	if err := CheckTransition(a.State, to, trigger); err != nil {
		return err
	}
	switch {
	case to == StateBounded:
		if a.Envelope == nil || a.Envelope.Len() == 0 {
			return &TransitionError{From: a.State, To: to, Reason: "no boundaries discovered or defined"}
		}
	case to == StateTesting && a.State == StateSuspended:
		if a.SuspensionReason != SuspensionCAT72Failed {
			return &TransitionError{From: a.State, To: to, Reason: "only a failed CAT-72 may be retried; reinstate instead"}
		}
		fallthrough
	case to == StateTesting:
		if a.Envelope == nil || a.Envelope.Len() == 0 {
			return &TransitionError{From: a.State, To: to, Reason: "no envelope defined"}
		}
	case to == StateConformant:
		if a.CAT72 == nil || a.CAT72.Result != CAT72Pass {
			return &TransitionError{From: a.State, To: to, Reason: "CAT-72 has not passed"}
		}
	}
	return nil
}

// ApplyTransition moves the application to a new state.
func (a *Application) ApplyTransition(to State, now time.Time) {
	a.State = to
	a.UpdatedAt = now
	if to != StateSuspended {
		a.SuspensionReason = ""
	}
}

// CanDefineEnvelope checks that the envelope may still change.
func (a *Application) CanDefineEnvelope() error {
	switch a.State {
	case StateApproved, StateObserve, StateBounded:
		return nil
	case StateSuspended:
		if a.SuspensionReason == SuspensionCAT72Failed {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeConflict, "envelope cannot be changed in state "+a.State.String())
}

// ApplyEnvelope replaces the envelope and clears any acknowledgment.
func (a *Application) ApplyEnvelope(env *boundary.Envelope, source EnvelopeSource, now time.Time) {
	a.Envelope = env
	a.EnvelopeSource = source
	a.EnvelopeAcknowledgedAt = nil
	a.EnvelopeAcknowledgedBy = ""
	a.UpdatedAt = now
}

// CanAcknowledge checks that there is an unacknowledged envelope to accept.
func (a *Application) CanAcknowledge() error {
	if a.Envelope == nil || a.Envelope.Len() == 0 {
		return dErrors.New(dErrors.CodeConflict, "no envelope to acknowledge")
	}
	if a.Acknowledged() {
		return dErrors.New(dErrors.CodeConflict, "envelope already acknowledged")
	}
	switch a.State {
	case StateBounded, StateSuspended:
		return nil
	}
	return dErrors.New(dErrors.CodeConflict, "envelope can only be acknowledged once boundaries are finalized")
}

// ApplyAcknowledge records acceptance of the envelope.
func (a *Application) ApplyAcknowledge(by string, now time.Time) {
	a.EnvelopeAcknowledgedAt = &now
	a.EnvelopeAcknowledgedBy = by
	a.UpdatedAt = now
}

// ApplyBeginCAT72 starts a new test attempt.
func (a *Application) ApplyBeginCAT72(now time.Time, durationHours int) *CAT72Test {
	attempt := 1
	if a.CAT72 != nil {
		attempt = a.CAT72.Attempt + 1
	}
	a.CAT72 = NewCAT72Test(a.ID, attempt, now, durationHours)
	a.ApplyTransition(StateTesting, now)
	return a.CAT72
}

// ApplyFailure ends the running test with FAIL and suspends.
func (a *Application) ApplyFailure(now time.Time, reason string) {
	if a.CAT72 != nil && a.CAT72.Running() {
		a.CAT72.ApplyFail(now, reason)
	}
	a.ApplyTransition(StateSuspended, now)
	a.SuspensionReason = SuspensionCAT72Failed
}

// ApplyReinstate returns the application to pending for a new cycle. The
// envelope is kept as a starting point but must be acknowledged again.
func (a *Application) ApplyReinstate(now time.Time) {
	a.ApplyTransition(StatePending, now)
	a.EnvelopeAcknowledgedAt = nil
	a.EnvelopeAcknowledgedBy = ""
	a.CAT72 = nil
}

// Clone returns a copy whose nested pointers are not shared. The envelope
// is shared: envelopes are replaced, never edited in place.
func (a *Application) Clone() *Application {
	c := *a
	if a.CAT72 != nil {
		t := *a.CAT72
		if a.CAT72.EndedAt != nil {
			e := *a.CAT72.EndedAt
			t.EndedAt = &e
		}
		c.CAT72 = &t
	}
	if a.EnvelopeAcknowledgedAt != nil {
		t := *a.EnvelopeAcknowledgedAt
		c.EnvelopeAcknowledgedAt = &t
	}
	if a.CredentialIssuedAt != nil {
		t := *a.CredentialIssuedAt
		c.CredentialIssuedAt = &t
	}
	return &c
}
