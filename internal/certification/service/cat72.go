package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"oddcert/internal/boundary"
	"oddcert/internal/certification/evidence"
	"oddcert/internal/certification/models"
	"oddcert/internal/notify"
	sessionModels "oddcert/internal/session/models"
	id "oddcert/pkg/domain"
	dErrors "oddcert/pkg/domain-errors"
	"oddcert/pkg/platform/audit"
	"oddcert/pkg/requestcontext"
)

// BeginCAT72 starts a conformance test attempt from bounded, or retries
// one after a failed attempt. The envelope must be acknowledged unless an
// admin overrides, and an agent must be online.
func (s *Service) BeginCAT72(ctx context.Context, appID id.ApplicationID, override bool) (*models.TransitionResult, error) {
	result := &models.TransitionResult{}
	app, err := s.mutate(ctx, appID, func(ctx context.Context, app *models.Application) error {
		actor, err := requireOwnerOrReviewer(ctx, app)
		if err != nil {
			return err
		}
		result.From = app.State
		if err := app.CanTransition(models.StateTesting, models.TriggerBegin); err != nil {
			return s.denied(models.StateTesting, err)
		}
		overridden := false
		if !app.Acknowledged() {
			if !override {
				return s.denied(models.StateTesting, &models.TransitionError{
					From: app.State, To: models.StateTesting, Reason: "envelope has not been acknowledged",
				})
			}
			if actor.Role != id.RoleAdmin {
				return dErrors.New(dErrors.CodeForbidden, "admin role required to override acknowledgment")
			}
			overridden = true
		}
		online, err := s.sessions.HasOnlineSession(ctx, appID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check agent sessions")
		}
		if !online {
			return s.denied(models.StateTesting, &models.TransitionError{
				From: app.State, To: models.StateTesting, Reason: "no agent session online",
			})
		}

		test := app.ApplyBeginCAT72(requestcontext.Now(ctx), s.cat72Hours)
		if overridden {
			if err := s.emit(ctx, audit.Event{
				Action:        string(audit.EventOverrideApplied),
				ApplicationID: app.ID,
				ToState:       models.StateTesting.String(),
				Reason:        "unacknowledged envelope",
			}); err != nil {
				return err
			}
		}
		if err := s.emit(ctx, audit.Event{
			Action:        string(audit.EventCAT72Started),
			ApplicationID: app.ID,
			Subject:       test.IdempotencyKey(),
			Decision:      "attempt " + strconv.Itoa(test.Attempt),
		}); err != nil {
			return err
		}
		return s.emitTransition(ctx, app, result.From, models.TriggerBegin, "")
	})
	if err != nil {
		return nil, err
	}
	result.Application = app

	s.logger.InfoContext(ctx, "CAT-72 started",
		"request_id", requestcontext.RequestID(ctx),
		"application_id", appID.String(),
		"attempt", app.CAT72.Attempt,
		"duration_hours", app.CAT72.DurationHours,
		"override", override,
	)
	return result, nil
}

// CAT72Status reads the timer of the latest attempt.
func (s *Service) CAT72Status(ctx context.Context, appID id.ApplicationID) (*models.Progress, error) {
	app, err := s.load(ctx, appID)
	if err != nil {
		return nil, err
	}
	if err := requireReader(ctx, app); err != nil {
		return nil, err
	}
	if app.CAT72 == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "no CAT-72 test for this application")
	}
	p := app.CAT72.Progress(requestcontext.Now(ctx))
	return &p, nil
}

// ResolveViolations signs off the violations recorded so far in the
// running test. It returns how many were resolved.
func (s *Service) ResolveViolations(ctx context.Context, appID id.ApplicationID, reason string) (*models.Application, int, error) {
	actor, err := requireReviewer(ctx)
	if err != nil {
		return nil, 0, err
	}
	var resolved int
	app, err := s.mutate(ctx, appID, func(ctx context.Context, app *models.Application) error {
		if !app.Testing() {
			return dErrors.New(dErrors.CodeConflict, "no CAT-72 test running")
		}
		resolved = app.CAT72.ApplyResolve()
		if resolved == 0 {
			return errNoChange
		}
		return s.emit(ctx, audit.Event{
			Action:        string(audit.EventViolationsResolved),
			ApplicationID: app.ID,
			Subject:       app.CAT72.IdempotencyKey(),
			Decision:      strconv.Itoa(resolved),
			Reason:        reason,
		})
	})
	if err != nil {
		return nil, 0, err
	}
	s.logger.InfoContext(ctx, "violations resolved",
		"request_id", requestcontext.RequestID(ctx),
		"application_id", appID.String(),
		"resolved", resolved,
		"actor_id", actor.ID,
	)
	return app, resolved, nil
}

// RecordEvaluations appends a telemetry batch to the running test's
// evidence and applies any violations under the envelope's fail policy.
// Results that arrive after the test ended are dropped, and a test whose
// duration has elapsed is completed instead.
func (s *Service) RecordEvaluations(ctx context.Context, appID id.ApplicationID, sessionID id.SessionID, results []boundary.EvaluationResult) error {
	if len(results) == 0 {
		return nil
	}
	var failed, due bool
	app, err := s.mutate(ctx, appID, func(ctx context.Context, app *models.Application) error {
		if !app.Testing() {
			return errNoChange
		}
		now := requestcontext.Now(ctx)
		if app.CAT72.Due(now) {
			due = true
			return errNoChange
		}
		records := make([]evidence.Record, 0, len(results))
		violations := 0
		for _, r := range results {
			records = append(records, evidence.Record{
				ApplicationID: appID,
				Attempt:       app.CAT72.Attempt,
				SessionID:     sessionID,
				Kind:          evidence.KindEvaluation,
				Result:        r,
				RecordedAt:    now,
			})
			if r.Blocked() {
				violations++
			}
		}
		if err := s.evidence.AppendEvidence(ctx, records); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record evidence")
		}
		app.CAT72.EvaluationCount += int64(len(results))
		app.CAT72.Advance(now)

		if violations == 0 {
			return nil
		}
		var err error
		failed, err = s.applyViolations(ctx, app, violations, models.FailureViolation)
		return err
	})
	if err != nil {
		return err
	}
	if due {
		return s.completeDue(ctx, appID)
	}
	if failed {
		s.afterFailure(ctx, app)
	}
	return nil
}

// ConnectivityFault records a lost-contact fault against the running test.
// Fail-closed envelopes treat it as a violation; fail-open envelopes keep
// it as evidence only. A fault detected after the test's duration has
// elapsed completes the test instead.
func (s *Service) ConnectivityFault(ctx context.Context, fault sessionModels.ConnectivityFault) error {
	var failed, due bool
	app, err := s.mutate(ctx, fault.ApplicationID, func(ctx context.Context, app *models.Application) error {
		if !app.Testing() {
			return errNoChange
		}
		now := requestcontext.Now(ctx)
		if app.CAT72.Due(now) {
			due = true
			return errNoChange
		}
		violations := fault.Violations
		if len(violations) == 0 {
			violations = []boundary.Violation{{
				BoundaryID: "heartbeat",
				Message:    "no contact since " + fault.LastSeen.UTC().Format(time.RFC3339),
			}}
		}
		record := evidence.Record{
			ApplicationID: app.ID,
			Attempt:       app.CAT72.Attempt,
			SessionID:     fault.SessionID,
			Kind:          evidence.KindConnectivityFault,
			Result: boundary.EvaluationResult{
				SampleRef:   "session:" + fault.SessionID.String(),
				Verdict:     boundary.VerdictBlock,
				Violations:  violations,
				EvaluatedAt: fault.DetectedAt,
			},
			RecordedAt: now,
		}
		if err := s.evidence.AppendEvidence(ctx, []evidence.Record{record}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record evidence")
		}
		app.CAT72.Advance(now)

		policy := app.Envelope.FailPolicy
		decision := "evidence_only"
		if policy.FailClosed {
			decision = string(policy.ViolationAction)
		}
		if err := s.emit(ctx, audit.Event{
			Action:        string(audit.EventConnectivityFault),
			ApplicationID: app.ID,
			SessionID:     fault.SessionID,
			Decision:      decision,
			Reason:        violations[0].Message,
		}); err != nil {
			return err
		}
		if !policy.FailClosed {
			return nil
		}
		var err error
		failed, err = s.applyViolations(ctx, app, 1, models.FailureConnectivity)
		return err
	})
	if err != nil {
		return err
	}
	if due {
		return s.completeDue(ctx, fault.ApplicationID)
	}
	if failed {
		s.afterFailure(ctx, app)
	}
	s.logger.WarnContext(ctx, "connectivity fault",
		"application_id", fault.ApplicationID.String(),
		"session_id", fault.SessionID.String(),
		"last_seen", fault.LastSeen,
	)
	return nil
}

// completeDue finishes a test whose duration elapsed before the ticker
// reached it. The late input is not part of the window and is discarded.
func (s *Service) completeDue(ctx context.Context, appID id.ApplicationID) error {
	s.logger.InfoContext(ctx, "input after CAT-72 window dropped", "application_id", appID.String())
	_, err := s.tickOne(ctx, appID)
	return err
}

// applyViolations applies n violations under the envelope's violation
// action. It reports whether the test failed.
func (s *Service) applyViolations(ctx context.Context, app *models.Application, n int, failure string) (bool, error) {
	action := app.Envelope.FailPolicy.ViolationAction
	s.metrics.AddViolations(string(action), n)
	app.CAT72.ApplyViolation(n)
	if action != boundary.ViolationFailTest {
		return false, nil
	}
	return true, s.failTest(ctx, app, failure)
}

// failTest ends the running test with FAIL and suspends the application.
func (s *Service) failTest(ctx context.Context, app *models.Application, failure string) error {
	if err := app.CanTransition(models.StateSuspended, models.TriggerAutoFail); err != nil {
		return err
	}
	from := app.State
	app.ApplyFailure(requestcontext.Now(ctx), failure)
	if err := s.emitCAT72Completed(ctx, app); err != nil {
		return err
	}
	return s.emitTransition(ctx, app, from, models.TriggerAutoFail, failure)
}

func (s *Service) afterFailure(ctx context.Context, app *models.Application) {
	s.metrics.IncrementCAT72Result(string(models.CAT72Fail))
	s.notify(ctx, notify.KindApplicationSuspended, app, app.CAT72.FailureReason, "")
	s.logger.WarnContext(ctx, "CAT-72 failed",
		"application_id", app.ID.String(),
		"attempt", app.CAT72.Attempt,
		"reason", app.CAT72.FailureReason,
		"total_violations", app.CAT72.TotalViolations,
	)
}

// -----------------------------------------------------------------------------
// Ticker
// -----------------------------------------------------------------------------

type tickOutcome int

const (
	tickRunning tickOutcome = iota
	tickPassed
	tickFailed
	tickIdle
)

// Tick advances every running test, completes those that reached their
// duration, expires lapsed certificates and issues any certificate a
// conformant application is missing.
func (s *Service) Tick(ctx context.Context) (*models.TickResult, error) {
	start := time.Now()
	ctx = requestcontext.WithTime(ctx, requestcontext.Now(ctx))
	ctx, span := s.tracer.Start(ctx, "certification.Tick")
	defer span.End()

	result := &models.TickResult{}
	active, err := s.apps.ListByState(ctx, models.StateTesting)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list testing applications")
	}
	var errs []error
	for _, app := range active {
		outcome, err := s.tickOne(ctx, app.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		switch outcome {
		case tickRunning:
			result.Running++
		case tickPassed:
			result.Passed++
		case tickFailed:
			result.Failed++
		}
	}

	expired, err := s.expireCertificates(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	result.Expired = expired

	repaired, err := s.repairCertificates(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	result.Repaired = repaired

	span.SetAttributes(
		attribute.Int("running", result.Running),
		attribute.Int("passed", result.Passed),
		attribute.Int("failed", result.Failed),
	)
	s.metrics.ObserveTick(result.Running, time.Since(start))
	return result, errors.Join(errs...)
}

func (s *Service) tickOne(ctx context.Context, appID id.ApplicationID) (tickOutcome, error) {
	outcome := tickIdle
	var cert *models.Certificate
	app, err := s.mutate(ctx, appID, func(ctx context.Context, app *models.Application) error {
		if !app.Testing() {
			return errNoChange
		}
		now := requestcontext.Now(ctx)
		if !app.CAT72.Due(now) {
			app.CAT72.Advance(now)
			outcome = tickRunning
			return nil
		}
		if app.CAT72.UnresolvedViolations > 0 {
			outcome = tickFailed
			return s.failTest(ctx, app, models.FailureUnresolved)
		}

		from := app.State
		app.CAT72.ApplyPass(now)
		if err := app.CanTransition(models.StateConformant, models.TriggerAutoPass); err != nil {
			return err
		}
		app.ApplyTransition(models.StateConformant, now)
		if err := s.emitCAT72Completed(ctx, app); err != nil {
			return err
		}
		var err error
		cert, err = s.issueCertificate(ctx, app, now)
		if err != nil {
			return err
		}
		outcome = tickPassed
		return s.emitTransition(ctx, app, from, models.TriggerAutoPass, "")
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "CAT-72 tick failed", "application_id", appID.String(), "error", err)
		return tickIdle, err
	}

	switch outcome {
	case tickPassed:
		s.metrics.IncrementCAT72Result(string(models.CAT72Pass))
		s.notify(ctx, notify.KindCertificateIssued, app, "", cert.Number.String())
		s.logger.InfoContext(ctx, "CAT-72 passed",
			"application_id", appID.String(),
			"attempt", app.CAT72.Attempt,
			"certificate_number", cert.Number.String(),
		)
	case tickFailed:
		s.afterFailure(ctx, app)
	}
	return outcome, nil
}

// expireCertificates moves lapsed certificates and their applications to
// expired.
func (s *Service) expireCertificates(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	certs, err := s.certs.ListExpiredCertificates(ctx, now)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list expired certificates")
	}
	expired := 0
	var errs []error
	for _, cert := range certs {
		_, err := s.mutate(ctx, cert.ApplicationID, func(ctx context.Context, app *models.Application) error {
			if err := s.certs.UpdateCertificateState(ctx, cert.Number, models.CertificateExpired); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to expire certificate")
			}
			if app.State != models.StateConformant {
				return nil
			}
			if err := app.CanTransition(models.StateExpired, models.TriggerExpiry); err != nil {
				return err
			}
			from := app.State
			app.ApplyTransition(models.StateExpired, now)
			return s.emitTransition(ctx, app, from, models.TriggerExpiry, cert.Number.String())
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		expired++
		s.logger.InfoContext(ctx, "certificate expired",
			"application_id", cert.ApplicationID.String(),
			"certificate_number", cert.Number.String(),
		)
	}
	return expired, errors.Join(errs...)
}

// repairCertificates issues the certificate for any conformant application
// whose passing attempt has none.
func (s *Service) repairCertificates(ctx context.Context) (int, error) {
	apps, err := s.apps.ListByState(ctx, models.StateConformant)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list conformant applications")
	}
	repaired := 0
	for _, app := range apps {
		if app.CAT72 == nil || app.CAT72.Result != models.CAT72Pass {
			continue
		}
		if _, err := s.certs.FindCertificateByKey(ctx, app.CAT72.IdempotencyKey()); err == nil {
			continue
		}
		_, err := s.mutate(ctx, app.ID, func(ctx context.Context, app *models.Application) error {
			_, err := s.issueCertificate(ctx, app, requestcontext.Now(ctx))
			return err
		})
		if err != nil {
			return repaired, err
		}
		repaired++
	}
	return repaired, nil
}

// Run ticks at interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.InfoContext(ctx, "CAT-72 ticker started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			res, err := s.Tick(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "CAT-72 tick completed with errors", "error", err)
			}
			if res != nil && (res.Passed+res.Failed+res.Expired+res.Repaired) > 0 {
				s.logger.InfoContext(ctx, "CAT-72 tick",
					"running", res.Running,
					"passed", res.Passed,
					"failed", res.Failed,
					"expired", res.Expired,
					"repaired", res.Repaired,
				)
			}
		}
	}
}
