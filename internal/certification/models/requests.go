package models

import (
	"time"

	id "oddcert/pkg/domain"
)

// SubmitRequest creates an application.
type SubmitRequest struct {
	Name        string
	Description string
}

// TransitionRequest asks for a lifecycle move.
type TransitionRequest struct {
	ApplicationID id.ApplicationID
	To            State
	Reason        string
	// Override asks for an administrative override: an unacknowledged
	// envelope when beginning CAT-72, or a pass into conformant.
	Override bool
}

// TransitionResult is the application after a transition, plus whatever
// the transition produced.
type TransitionResult struct {
	Application *Application
	From        State
	// AgentCredential is set on approval and shown only once.
	AgentCredential     string
	CredentialExpiresAt *time.Time
	Certificate         *Certificate
}

// TickResult summarises one pass of the CAT-72 ticker.
type TickResult struct {
	Running  int
	Passed   int
	Failed   int
	Expired  int
	Repaired int
}
