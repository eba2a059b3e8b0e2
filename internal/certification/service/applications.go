package service

import (
	"context"
	"errors"
	"strconv"

	"oddcert/internal/boundary"
	"oddcert/internal/certification/models"
	id "oddcert/pkg/domain"
	dErrors "oddcert/pkg/domain-errors"
	"oddcert/pkg/platform/audit"
	"oddcert/pkg/platform/sentinel"
	"oddcert/pkg/requestcontext"
)

// Submit creates a pending application owned by the calling applicant.
func (s *Service) Submit(ctx context.Context, req models.SubmitRequest) (*models.Application, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	app, err := models.NewApplication(id.NewApplicationID(), req.Name, req.Description, actor.ID, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			de, _ := dErrors.From(err)
			return nil, dErrors.New(dErrors.CodeValidation, de.Message)
		}
		return nil, err
	}

	err = s.tx.RunInTx(ctx, app.ID, func(ctx context.Context) error {
		if err := s.apps.Create(ctx, app); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "application already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create application")
		}
		return s.emit(ctx, audit.Event{
			Action:        string(audit.EventApplicationSubmitted),
			ApplicationID: app.ID,
			ToState:       app.State.String(),
			Subject:       app.Name,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "application submitted",
		"request_id", requestcontext.RequestID(ctx),
		"application_id", app.ID.String(),
		"applicant_id", actor.ID,
	)
	return app, nil
}

// Get returns the application with its timer reading and latest
// certificate.
func (s *Service) Get(ctx context.Context, appID id.ApplicationID) (*models.StatusView, error) {
	app, err := s.load(ctx, appID)
	if err != nil {
		return nil, err
	}
	if err := requireReader(ctx, app); err != nil {
		return nil, err
	}

	view := &models.StatusView{Application: app}
	if app.CAT72 != nil {
		p := app.CAT72.Progress(requestcontext.Now(ctx))
		view.Progress = &p
	}
	cert, err := s.certs.FindCertificateByApplication(ctx, appID)
	switch {
	case err == nil:
		view.Certificate = cert
	case errors.Is(err, sentinel.ErrNotFound):
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load certificate")
	}
	return view, nil
}

// Application loads an application without access checks. It backs the
// telemetry path, where the agent credential was already checked.
func (s *Service) Application(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	return s.load(ctx, appID)
}

// GetEnvelope returns the persisted envelope, or nil before one exists.
func (s *Service) GetEnvelope(ctx context.Context, appID id.ApplicationID) (*boundary.Envelope, error) {
	app, err := s.load(ctx, appID)
	if err != nil {
		return nil, err
	}
	if err := requireReader(ctx, app); err != nil {
		return nil, err
	}
	return app.Envelope, nil
}

// DefineEnvelope sets a manual envelope. Any earlier acknowledgment is
// cleared.
func (s *Service) DefineEnvelope(ctx context.Context, appID id.ApplicationID, env *boundary.Envelope) (*models.Application, error) {
	if env == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "envelope is required")
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}

	app, err := s.mutate(ctx, appID, func(ctx context.Context, app *models.Application) error {
		if _, err := requireOwnerOrReviewer(ctx, app); err != nil {
			return err
		}
		if err := app.CanDefineEnvelope(); err != nil {
			return err
		}
		app.ApplyEnvelope(env, models.EnvelopeManual, requestcontext.Now(ctx))
		return s.emit(ctx, audit.Event{
			Action:        string(audit.EventEnvelopeDefined),
			ApplicationID: app.ID,
			Decision:      string(models.EnvelopeManual),
			Reason:        boundaryCount(env),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "envelope defined",
		"request_id", requestcontext.RequestID(ctx),
		"application_id", appID.String(),
		"boundaries", env.Len(),
	)
	return app, nil
}

// AcknowledgeEnvelope records the applicant's acceptance of the current
// envelope. Only the owner or an admin may acknowledge.
func (s *Service) AcknowledgeEnvelope(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	return s.mutate(ctx, appID, func(ctx context.Context, app *models.Application) error {
		actor, err := requireActor(ctx)
		if err != nil {
			return err
		}
		if actor.ID != app.ApplicantID && actor.Role != id.RoleAdmin {
			return dErrors.New(dErrors.CodeForbidden, "only the applicant or an admin may acknowledge the envelope")
		}
		if err := app.CanAcknowledge(); err != nil {
			return err
		}
		app.ApplyAcknowledge(actor.ID, requestcontext.Now(ctx))
		return s.emit(ctx, audit.Event{
			Action:        string(audit.EventEnvelopeAcknowledged),
			ApplicationID: app.ID,
			Decision:      string(app.EnvelopeSource),
		})
	})
}

// FinalizeBoundaries closes observation. A manual envelope is kept;
// otherwise the discovery proposal becomes the envelope. The result still
// needs acknowledgment before testing.
func (s *Service) FinalizeBoundaries(ctx context.Context, appID id.ApplicationID) (*models.TransitionResult, error) {
	result := &models.TransitionResult{}
	app, err := s.mutate(ctx, appID, func(ctx context.Context, app *models.Application) error {
		if _, err := requireOwnerOrReviewer(ctx, app); err != nil {
			return err
		}
		result.From = app.State
		if err := models.CheckTransition(app.State, models.StateBounded, models.TriggerFinalize); err != nil {
			return s.denied(models.StateBounded, err)
		}
		now := requestcontext.Now(ctx)

		if app.EnvelopeSource != models.EnvelopeManual || app.Envelope.Len() == 0 {
			proposal, err := s.discovery.Propose(ctx, appID)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build envelope proposal")
			}
			if proposal.Len() > 0 {
				app.ApplyEnvelope(proposal, models.EnvelopeDiscovered, now)
				if err := s.emit(ctx, audit.Event{
					Action:        string(audit.EventEnvelopeProposed),
					ApplicationID: app.ID,
					Decision:      string(models.EnvelopeDiscovered),
					Reason:        boundaryCount(proposal),
				}); err != nil {
					return err
				}
			}
		}

		if err := app.CanTransition(models.StateBounded, models.TriggerFinalize); err != nil {
			return s.denied(models.StateBounded, err)
		}
		app.ApplyTransition(models.StateBounded, now)
		return s.emitTransition(ctx, app, result.From, models.TriggerFinalize, "")
	})
	if err != nil {
		return nil, err
	}
	s.discovery.Stop(appID)
	result.Application = app

	s.logger.InfoContext(ctx, "boundaries finalized",
		"request_id", requestcontext.RequestID(ctx),
		"application_id", appID.String(),
		"envelope_source", string(app.EnvelopeSource),
		"boundaries", app.Envelope.Len(),
	)
	return result, nil
}

// SessionRegistered moves an approved application into observation on its
// first agent session. An application already in observe whose aggregate
// was lost (a restart) starts discovery over.
func (s *Service) SessionRegistered(ctx context.Context, appID id.ApplicationID, sessionID id.SessionID) error {
	var startDiscovery bool
	_, err := s.mutate(ctx, appID, func(ctx context.Context, app *models.Application) error {
		switch app.State {
		case models.StateApproved:
		case models.StateObserve:
			startDiscovery = !s.discovery.Observing(appID)
			return errNoChange
		default:
			return errNoChange
		}
		if err := app.CanTransition(models.StateObserve, models.TriggerRegistration); err != nil {
			return err
		}
		from := app.State
		app.ApplyTransition(models.StateObserve, requestcontext.Now(ctx))
		startDiscovery = true
		return s.emitTransition(ctx, app, from, models.TriggerRegistration, "session "+sessionID.String())
	})
	if err != nil {
		return err
	}
	if startDiscovery {
		s.discovery.Start(ctx, appID)
	}
	return nil
}

func boundaryCount(env *boundary.Envelope) string {
	switch n := env.Len(); n {
	case 1:
		return "1 boundary"
	default:
		return strconv.Itoa(n) + " boundaries"
	}
}
