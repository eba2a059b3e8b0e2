// Package service runs agent sessions: registration, heartbeats, telemetry
// evaluation and the silence sweep.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"oddcert/internal/boundary"
	"oddcert/internal/session/metrics"
	"oddcert/internal/session/models"
	"oddcert/internal/session/ports"
	id "oddcert/pkg/domain"
	dErrors "oddcert/pkg/domain-errors"
	"oddcert/pkg/platform/audit"
	"oddcert/pkg/platform/sentinel"
	"oddcert/pkg/requestcontext"
)

const (
	DefaultHeartbeatTimeout = 120 * time.Second
	DefaultEndAfter         = 24 * time.Hour
	DefaultMaxBatch         = 1000
	defaultSweepParallelism = 8
)

// Store persists sessions. Execute applies validate then mutate atomically
// for one session.
type Store interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	ListActive(ctx context.Context) ([]*models.Session, error)
	ListByApplication(ctx context.Context, appID id.ApplicationID) ([]*models.Session, error)
	Execute(ctx context.Context, sessionID id.SessionID, validate func(*models.Session) error, mutate func(*models.Session)) (*models.Session, error)
}

// actor owns the rolling evaluation state of one live session. Telemetry for
// a session is processed one batch at a time.
type actor struct {
	mu          sync.Mutex
	state       *boundary.State
	envelopeKey string
}

// Service is the session manager.
type Service struct {
	sessions      Store
	certification ports.CertificationPort
	discovery     ports.DiscoveryPort
	auditor       ports.AuditPort
	logger        *slog.Logger
	metrics       *metrics.Metrics
	tracer        trace.Tracer

	heartbeatTimeout time.Duration
	endAfter         time.Duration
	maxBatch         int
	parallelism      int

	mu     sync.Mutex
	actors map[id.SessionID]*actor
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher ports.AuditPort) Option {
	return func(s *Service) {
		s.auditor = publisher
	}
}

// WithHeartbeatTimeout sets how long an agent may stay silent and still
// count as online.
func WithHeartbeatTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.heartbeatTimeout = d
		}
	}
}

// WithEndAfter sets the silence after which the sweep ends a session.
func WithEndAfter(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.endAfter = d
		}
	}
}

// WithMaxBatch caps the number of records in one telemetry request.
func WithMaxBatch(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBatch = n
		}
	}
}

// New constructs the session manager.
func New(sessions Store, certification ports.CertificationPort, discovery ports.DiscoveryPort, opts ...Option) *Service {
	s := &Service{
		sessions:         sessions,
		certification:    certification,
		discovery:        discovery,
		logger:           slog.Default(),
		tracer:           otel.Tracer("oddcert/session"),
		heartbeatTimeout: DefaultHeartbeatTimeout,
		endAfter:         DefaultEndAfter,
		maxBatch:         DefaultMaxBatch,
		parallelism:      defaultSweepParallelism,
		actors:           make(map[id.SessionID]*actor),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HeartbeatTimeout is the online window used by Get and the sweep.
func (s *Service) HeartbeatTimeout() time.Duration {
	return s.heartbeatTimeout
}

// Register opens a session for an application that accepts agents. The
// first registration after approval starts observation.
func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (*models.RegisterResult, error) {
	if err := authorizeAgent(ctx, req.ApplicationID); err != nil {
		return nil, err
	}

	view, err := s.certification.View(ctx, req.ApplicationID)
	if err != nil {
		return nil, err
	}
	if !view.AcceptsSessions {
		return nil, dErrors.New(dErrors.CodeForbidden, "application does not accept agent sessions in state "+view.State)
	}

	now := requestcontext.Now(ctx)
	session, err := models.NewSession(id.NewSessionID(), req.ApplicationID, req.AgentVersion, req.BoundariesHint, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create session")
	}
	if err := s.certification.SessionRegistered(ctx, session.ApplicationID, session.ID); err != nil {
		return nil, err
	}

	s.actorFor(session.ID)
	s.metrics.IncrementRegistered()
	s.emit(ctx, audit.Event{
		Action:        string(audit.EventSessionRegistered),
		ApplicationID: session.ApplicationID,
		SessionID:     session.ID,
		Subject:       session.AgentVersion,
	})
	s.logger.InfoContext(ctx, "agent session registered",
		"request_id", requestcontext.RequestID(ctx),
		"application_id", session.ApplicationID.String(),
		"session_id", session.ID.String(),
		"agent_version", session.AgentVersion,
		"application_state", view.State,
	)

	action := boundary.DefaultFailPolicy().ConnectionLossAction
	if view.Envelope != nil {
		action = view.Envelope.FailPolicy.ConnectionLossAction
	}
	return &models.RegisterResult{Session: session, ConnectionLossAction: action}, nil
}

// Heartbeat records contact from the agent.
func (s *Service) Heartbeat(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	now := requestcontext.Now(ctx)
	session, err := s.sessions.Execute(ctx, sessionID,
		func(m *models.Session) error {
			if err := authorizeAgent(ctx, m.ApplicationID); err != nil {
				return err
			}
			return m.CanAccept()
		},
		func(m *models.Session) {
			m.ApplyHeartbeat(now)
		},
	)
	if err != nil {
		return nil, translateStoreError(err, "failed to record heartbeat")
	}
	return session, nil
}

// End closes a session at the agent's request.
func (s *Service) End(ctx context.Context, sessionID id.SessionID, finalStats map[string]any) (*models.Session, error) {
	now := requestcontext.Now(ctx)
	session, err := s.sessions.Execute(ctx, sessionID,
		func(m *models.Session) error {
			if err := authorizeAgent(ctx, m.ApplicationID); err != nil {
				return err
			}
			return m.CanAccept()
		},
		func(m *models.Session) {
			m.ApplyEnd(now, models.EndReasonAgent, finalStats)
		},
	)
	if err != nil {
		return nil, translateStoreError(err, "failed to end session")
	}

	s.dropActor(sessionID)
	s.metrics.IncrementEnded(models.EndReasonAgent)
	s.emit(ctx, audit.Event{
		Action:        string(audit.EventSessionEnded),
		ApplicationID: session.ApplicationID,
		SessionID:     session.ID,
		Reason:        models.EndReasonAgent,
	})
	s.logger.InfoContext(ctx, "agent session ended",
		"request_id", requestcontext.RequestID(ctx),
		"session_id", session.ID.String(),
		"pass_count", session.PassCount,
		"block_count", session.BlockCount,
	)
	return session, nil
}

// Get returns a session and whether its agent is currently online.
func (s *Service) Get(ctx context.Context, sessionID id.SessionID) (*models.Session, bool, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, false, translateStoreError(err, "failed to load session")
	}
	if err := authorizeAgent(ctx, session.ApplicationID); err != nil {
		return nil, false, err
	}
	return session, session.Online(requestcontext.Now(ctx), s.heartbeatTimeout), nil
}

// authorizeAgent rejects an agent credential bound to another application.
// Calls without an agent credential (reviewers, background jobs) pass.
func authorizeAgent(ctx context.Context, appID id.ApplicationID) error {
	bound, ok := requestcontext.AgentApplicationID(ctx)
	if ok && bound != appID {
		return dErrors.New(dErrors.CodeForbidden, "agent credential is not valid for this application")
	}
	return nil
}

func translateStoreError(err error, msg string) error {
	if _, ok := dErrors.From(err); ok {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "session not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func (s *Service) actorFor(sessionID id.SessionID) *actor {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actors[sessionID]
	if !ok {
		a = &actor{state: boundary.NewState()}
		s.actors[sessionID] = a
	}
	return a
}

func (s *Service) dropActor(sessionID id.SessionID) {
	s.mu.Lock()
	delete(s.actors, sessionID)
	s.mu.Unlock()
}

// emit publishes an audit event. Session events are operational; the
// publisher never fails them, so errors are only logged.
func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	if appID, ok := requestcontext.AgentApplicationID(ctx); ok {
		event.ActorID = "agent:" + appID.String()
		event.ActorRole = "agent"
	} else {
		actor := requestcontext.Actor(ctx)
		if actor.IsZero() {
			actor = id.System
		}
		event.ActorID = actor.ID
		event.ActorRole = actor.Role.String()
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err,
		)
	}
}
