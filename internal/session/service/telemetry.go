package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"oddcert/internal/boundary"
	"oddcert/internal/session/models"
	"oddcert/internal/session/ports"
	id "oddcert/pkg/domain"
	dErrors "oddcert/pkg/domain-errors"
	"oddcert/pkg/requestcontext"
)

// Telemetry evaluates a batch of samples for a live session.
//
// While the application is under observation every sample feeds
// auto-discovery. When an envelope exists every sample is evaluated against
// it with the session's rolling state. During a conformance test the
// evaluation results are handed to the certification lifecycle before the
// call returns, so a fail_test violation suspends the test synchronously.
func (s *Service) Telemetry(ctx context.Context, sessionID id.SessionID, samples []boundary.Sample) (_ *models.TelemetryResult, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "session.telemetry", trace.WithAttributes(
		attribute.String("session_id", sessionID.String()),
		attribute.Int("records", len(samples)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if len(samples) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "records must not be empty")
	}
	if len(samples) > s.maxBatch {
		return nil, dErrors.New(dErrors.CodeValidation, "too many records in one batch, maximum is "+strconv.Itoa(s.maxBatch))
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, translateStoreError(err, "failed to load session")
	}
	if err := authorizeAgent(ctx, session.ApplicationID); err != nil {
		return nil, err
	}
	if err := session.CanAccept(); err != nil {
		return nil, err
	}

	view, err := s.certification.View(ctx, session.ApplicationID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("application_id", session.ApplicationID.String()),
		attribute.String("application_state", view.State),
	)

	now := requestcontext.Now(ctx)
	result, observed := s.evaluate(sessionID, view, samples, now)

	// The tally is committed last so a batch rejected by the lifecycle can be
	// retried without being counted twice.
	if view.Testing && len(result.Results) > 0 {
		if err := s.certification.RecordEvaluations(ctx, session.ApplicationID, sessionID, result.Results); err != nil {
			return nil, err
		}
	}

	if _, err := s.sessions.Execute(ctx, sessionID,
		func(m *models.Session) error { return m.CanAccept() },
		func(m *models.Session) {
			m.ApplyTelemetry(int64(result.Passed), int64(result.Blocked), int64(observed), now)
		},
	); err != nil {
		return nil, translateStoreError(err, "failed to record telemetry")
	}

	s.metrics.ObserveTelemetry(result.Passed, result.Blocked, observed, time.Since(start))
	span.SetAttributes(
		attribute.Int("passed", result.Passed),
		attribute.Int("blocked", result.Blocked),
	)
	if result.Blocked > 0 {
		s.logger.WarnContext(ctx, "telemetry outside envelope",
			"request_id", requestcontext.RequestID(ctx),
			"application_id", session.ApplicationID.String(),
			"session_id", sessionID.String(),
			"blocked", result.Blocked,
			"testing", view.Testing,
		)
	}
	return result, nil
}

// evaluate runs one batch through the session's actor. Samples without a
// timestamp are stamped with the receipt time.
func (s *Service) evaluate(sessionID id.SessionID, view *ports.ApplicationView, samples []boundary.Sample, now time.Time) (*models.TelemetryResult, int) {
	result := &models.TelemetryResult{Violations: []models.SampleViolations{}}
	observed := 0

	a := s.actorFor(sessionID)
	a.mu.Lock()
	defer a.mu.Unlock()

	env := view.Envelope
	if env != nil {
		key := strings.Join(env.IDs(), "\x00")
		if key != a.envelopeKey {
			a.state = boundary.NewState()
			a.envelopeKey = key
		}
	}

	for _, sample := range samples {
		if sample.Timestamp.IsZero() {
			sample.Timestamp = now
		}
		result.Accepted++
		if view.Observing && s.discovery.Observe(view.ApplicationID, sample) {
			observed++
		}
		if env == nil || env.Len() == 0 {
			continue
		}
		res := boundary.EvaluateEnvelope(env, sample, a.state)
		a.state.Record(env, sample)
		result.Results = append(result.Results, res)
		if res.Blocked() {
			result.Blocked++
			result.Violations = append(result.Violations, models.SampleViolations{
				SampleRef:  res.SampleRef,
				Violations: res.Violations,
			})
			continue
		}
		result.Passed++
	}
	return result, observed
}
