package adapters

import (
	"context"

	"oddcert/internal/boundary"
	certService "oddcert/internal/certification/service"
	"oddcert/internal/session/models"
	"oddcert/internal/session/ports"
	id "oddcert/pkg/domain"
)

// CertificationAdapter implements ports.CertificationPort by calling the
// certification service in process.
type CertificationAdapter struct {
	certification *certService.Service
}

// NewCertificationAdapter creates a new certification adapter.
func NewCertificationAdapter(certification *certService.Service) ports.CertificationPort {
	return &CertificationAdapter{certification: certification}
}

// View projects the application onto what the telemetry path needs.
func (a *CertificationAdapter) View(ctx context.Context, appID id.ApplicationID) (*ports.ApplicationView, error) {
	app, err := a.certification.Application(ctx, appID)
	if err != nil {
		return nil, err
	}
	return &ports.ApplicationView{
		ApplicationID:   app.ID,
		State:           app.State.String(),
		AcceptsSessions: app.State.AcceptsSessions(),
		Observing:       app.Observing(),
		Testing:         app.Testing(),
		Envelope:        app.Envelope,
	}, nil
}

func (a *CertificationAdapter) SessionRegistered(ctx context.Context, appID id.ApplicationID, sessionID id.SessionID) error {
	return a.certification.SessionRegistered(ctx, appID, sessionID)
}

func (a *CertificationAdapter) RecordEvaluations(ctx context.Context, appID id.ApplicationID, sessionID id.SessionID, results []boundary.EvaluationResult) error {
	return a.certification.RecordEvaluations(ctx, appID, sessionID, results)
}

func (a *CertificationAdapter) ConnectivityFault(ctx context.Context, fault models.ConnectivityFault) error {
	return a.certification.ConnectivityFault(ctx, fault)
}
