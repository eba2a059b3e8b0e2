package ports

//go:generate mockgen -source=certification.go -destination=mocks/certification.go -package=mocks

import (
	"context"

	"oddcert/internal/boundary"
	"oddcert/internal/session/models"
	id "oddcert/pkg/domain"
)

// ApplicationView is what the session manager needs to know about the
// application an agent reports for.
type ApplicationView struct {
	ApplicationID id.ApplicationID
	State         string
	// AcceptsSessions is false before approval and after revocation or expiry.
	AcceptsSessions bool
	Observing       bool
	Testing         bool
	// Envelope is nil until one is proposed or defined.
	Envelope *boundary.Envelope
}

// CertificationPort is the certification lifecycle as seen from the
// telemetry path. Defined here so the session module does not depend on the
// certification service.
type CertificationPort interface {
	// View returns the current state and envelope of an application.
	View(ctx context.Context, appID id.ApplicationID) (*ApplicationView, error)

	// SessionRegistered is called after a session is created; the first
	// registration for an approved application starts observation.
	SessionRegistered(ctx context.Context, appID id.ApplicationID, sessionID id.SessionID) error

	// RecordEvaluations delivers evaluation results while the application is
	// under a conformance test. Violations are applied synchronously.
	RecordEvaluations(ctx context.Context, appID id.ApplicationID, sessionID id.SessionID, results []boundary.EvaluationResult) error

	// ConnectivityFault routes a lost-contact fault to the fail policy.
	ConnectivityFault(ctx context.Context, fault models.ConnectivityFault) error
}
