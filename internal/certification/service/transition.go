package service

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"oddcert/internal/certification/models"
	"oddcert/internal/notify"
	id "oddcert/pkg/domain"
	dErrors "oddcert/pkg/domain-errors"
	"oddcert/pkg/platform/audit"
	"oddcert/pkg/platform/sentinel"
	"oddcert/pkg/requestcontext"
)

// Transition moves an application along the lifecycle. Moves with their
// own operation (finalize, begin, override) are routed there; everything
// else is a reviewer decision.
func (s *Service) Transition(ctx context.Context, req models.TransitionRequest) (*models.TransitionResult, error) {
	ctx, span := s.tracer.Start(ctx, "certification.Transition", trace.WithAttributes(
		attribute.String("application_id", req.ApplicationID.String()),
		attribute.String("to_state", req.To.String()),
	))
	defer span.End()

	result, err := s.route(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transition failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("from_state", result.From.String()))
	return result, nil
}

func (s *Service) route(ctx context.Context, req models.TransitionRequest) (*models.TransitionResult, error) {
	switch {
	case req.To == models.StateBounded:
		return s.FinalizeBoundaries(ctx, req.ApplicationID)
	case req.To == models.StateTesting:
		return s.BeginCAT72(ctx, req.ApplicationID, req.Override)
	case req.To == models.StateConformant && req.Override:
		return s.Override(ctx, req.ApplicationID, req.Reason)
	default:
		return s.reviewerTransition(ctx, req)
	}
}

func (s *Service) reviewerTransition(ctx context.Context, req models.TransitionRequest) (*models.TransitionResult, error) {
	actor, err := requireReviewer(ctx)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)
	if (req.To == models.StateSuspended || req.To == models.StateRevoked) && reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required to suspend or revoke")
	}

	result := &models.TransitionResult{}
	var testFailed bool
	app, err := s.mutate(ctx, req.ApplicationID, func(ctx context.Context, app *models.Application) error {
		result.From = app.State
		if err := app.CanTransition(req.To, models.TriggerReviewer); err != nil {
			return s.denied(req.To, err)
		}
		now := requestcontext.Now(ctx)

		if app.Testing() {
			failure := models.FailureReviewerSuspension
			if req.To == models.StateRevoked {
				failure = models.FailureReviewerRevocation
			}
			app.CAT72.ApplyFail(now, failure)
			testFailed = true
			if err := s.emitCAT72Completed(ctx, app); err != nil {
				return err
			}
		}

		switch req.To {
		case models.StatePending:
			app.ApplyReinstate(now)
		case models.StateSuspended:
			app.ApplyTransition(req.To, now)
			app.SuspensionReason = "reviewer"
		default:
			app.ApplyTransition(req.To, now)
		}

		if req.To == models.StateSuspended || req.To == models.StateRevoked {
			if err := s.mirrorCertificate(ctx, app); err != nil {
				return err
			}
		}

		if req.To == models.StateApproved && s.credentials != nil {
			token, expiresAt, err := s.credentials.IssueAgentToken(ctx, app.ID, now)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue agent credential")
			}
			app.CredentialIssuedAt = &now
			result.AgentCredential = token
			result.CredentialExpiresAt = &expiresAt
			if err := s.emit(ctx, audit.Event{
				Action:        string(audit.EventCredentialIssued),
				ApplicationID: app.ID,
				Subject:       "agent",
			}); err != nil {
				return err
			}
		}

		return s.emitTransition(ctx, app, result.From, models.TriggerReviewer, reason)
	})
	if err != nil {
		return nil, err
	}
	result.Application = app

	if result.From == models.StateObserve {
		s.discovery.Stop(app.ID)
	}
	if testFailed {
		s.metrics.IncrementCAT72Result(string(models.CAT72Fail))
	}
	switch req.To {
	case models.StateApproved:
		s.notify(ctx, notify.KindApplicationApproved, app, reason, "")
	case models.StateRevoked:
		s.notify(ctx, notify.KindApplicationRejected, app, reason, "")
	case models.StateSuspended:
		s.notify(ctx, notify.KindApplicationSuspended, app, reason, "")
	}

	s.logger.InfoContext(ctx, "application transitioned",
		"request_id", requestcontext.RequestID(ctx),
		"application_id", app.ID.String(),
		"from", result.From.String(),
		"to", app.State.String(),
		"actor_id", actor.ID,
	)
	return result, nil
}

// Override passes a running CAT-72 administratively and issues the
// certificate. The override and its reason are kept on the test record.
func (s *Service) Override(ctx context.Context, appID id.ApplicationID, reason string) (*models.TransitionResult, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required for an override")
	}

	result := &models.TransitionResult{}
	app, err := s.mutate(ctx, appID, func(ctx context.Context, app *models.Application) error {
		result.From = app.State
		if !app.Testing() {
			return s.denied(models.StateConformant, &models.TransitionError{
				From: app.State, To: models.StateConformant, Reason: "no CAT-72 test running",
			})
		}
		now := requestcontext.Now(ctx)
		app.CAT72.ApplyOverride(now, reason)
		if err := app.CanTransition(models.StateConformant, models.TriggerOverride); err != nil {
			return s.denied(models.StateConformant, err)
		}
		app.ApplyTransition(models.StateConformant, now)

		if err := s.emit(ctx, audit.Event{
			Action:        string(audit.EventOverrideApplied),
			ApplicationID: app.ID,
			ToState:       models.StateConformant.String(),
			Reason:        reason,
		}); err != nil {
			return err
		}
		if err := s.emitCAT72Completed(ctx, app); err != nil {
			return err
		}
		cert, err := s.issueCertificate(ctx, app, now)
		if err != nil {
			return err
		}
		result.Certificate = cert
		return s.emitTransition(ctx, app, result.From, models.TriggerOverride, reason)
	})
	if err != nil {
		return nil, err
	}
	result.Application = app

	s.metrics.IncrementCAT72Result(string(models.CAT72Pass))
	s.notify(ctx, notify.KindCertificateIssued, app, reason, result.Certificate.Number.String())
	s.logger.WarnContext(ctx, "CAT-72 overridden",
		"request_id", requestcontext.RequestID(ctx),
		"application_id", appID.String(),
		"actor_id", actor.ID,
		"reason", reason,
		"certificate_number", result.Certificate.Number.String(),
	)
	return result, nil
}

// mirrorCertificate carries a suspension or revocation onto the
// application's certificate. A revoked certificate stays revoked.
func (s *Service) mirrorCertificate(ctx context.Context, app *models.Application) error {
	state, ok := models.CertificateStateFor(app.State)
	if !ok {
		return nil
	}
	cert, err := s.certs.FindCertificateByApplication(ctx, app.ID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load certificate")
	}
	if cert.State == state || cert.State == models.CertificateRevoked {
		return nil
	}
	if err := s.certs.UpdateCertificateState(ctx, cert.Number, state); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update certificate")
	}
	return nil
}

func (s *Service) emitCAT72Completed(ctx context.Context, app *models.Application) error {
	t := app.CAT72
	return s.emit(ctx, audit.Event{
		Action:        string(audit.EventCAT72Completed),
		ApplicationID: app.ID,
		Subject:       t.IdempotencyKey(),
		Decision:      string(t.Result),
		Reason:        t.FailureReason,
	})
}
