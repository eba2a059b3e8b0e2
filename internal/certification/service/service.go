// Package service runs the certification lifecycle: review, observation,
// envelope finalization, CAT-72 and certificate issuance.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"oddcert/internal/certification/evidence"
	"oddcert/internal/certification/metrics"
	"oddcert/internal/certification/models"
	"oddcert/internal/certification/ports"
	"oddcert/internal/notify"
	id "oddcert/pkg/domain"
	dErrors "oddcert/pkg/domain-errors"
	"oddcert/pkg/platform/audit"
	"oddcert/pkg/platform/sentinel"
	"oddcert/pkg/requestcontext"
)

type ApplicationStore interface {
	Create(ctx context.Context, app *models.Application) error
	// FindByID locks the row when ctx carries a transaction.
	FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	Update(ctx context.Context, app *models.Application) error
	ListByState(ctx context.Context, states ...models.State) ([]*models.Application, error)
}

type CertificateStore interface {
	// CreateCertificate assigns the next number of the issuance year.
	// It returns sentinel.ErrConflict when the idempotency key exists.
	CreateCertificate(ctx context.Context, cert *models.Certificate) error
	FindCertificateByKey(ctx context.Context, key string) (*models.Certificate, error)
	FindCertificateByNumber(ctx context.Context, number id.CertificateNumber) (*models.Certificate, error)
	// FindCertificateByApplication returns the most recent certificate.
	FindCertificateByApplication(ctx context.Context, appID id.ApplicationID) (*models.Certificate, error)
	UpdateCertificateState(ctx context.Context, number id.CertificateNumber, state models.CertificateState) error
	// ListExpiredCertificates returns conformant certificates whose expiry
	// is at or before now.
	ListExpiredCertificates(ctx context.Context, now time.Time) ([]*models.Certificate, error)
}

type EvidenceStore interface {
	// AppendEvidence assigns sequence numbers in append order.
	AppendEvidence(ctx context.Context, records []evidence.Record) error
	ListEvidence(ctx context.Context, appID id.ApplicationID, attempt int) ([]evidence.Record, error)
}

// StoreTx serializes work on one application. Implementations wrap a
// database transaction or, in memory, a per-application lock.
type StoreTx interface {
	RunInTx(ctx context.Context, appID id.ApplicationID, fn func(ctx context.Context) error) error
}

// errNoChange ends a mutation without writing.
var errNoChange = errors.New("no change")

// Service is the certification lifecycle.
type Service struct {
	apps        ApplicationStore
	certs       CertificateStore
	evidence    EvidenceStore
	tx          StoreTx
	sessions    ports.SessionDirectory
	discovery   ports.Discovery
	credentials ports.CredentialIssuer
	notifier    ports.Notifier
	auditor     ports.AuditPort
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer

	cat72Hours int
	validity   time.Duration
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

func WithNotifier(n ports.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithCredentialIssuer(c ports.CredentialIssuer) Option {
	return func(s *Service) {
		s.credentials = c
	}
}

// WithCAT72Hours shortens or lengthens the conformance test.
func WithCAT72Hours(h int) Option {
	return func(s *Service) {
		if h > 0 {
			s.cat72Hours = h
		}
	}
}

// WithCertificateValidity sets how long issued certificates stay valid.
func WithCertificateValidity(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.validity = d
		}
	}
}

// Stores groups the persistence the service needs.
type Stores struct {
	Applications ApplicationStore
	Certificates CertificateStore
	Evidence     EvidenceStore
	Tx           StoreTx
}

// New constructs the certification service.
func New(stores Stores, sessions ports.SessionDirectory, discovery ports.Discovery, opts ...Option) *Service {
	s := &Service{
		apps:       stores.Applications,
		certs:      stores.Certificates,
		evidence:   stores.Evidence,
		tx:         stores.Tx,
		sessions:   sessions,
		discovery:  discovery,
		logger:     slog.Default(),
		tracer:     otel.Tracer("oddcert/certification"),
		cat72Hours: models.DefaultCAT72Hours,
		validity:   models.DefaultCertificateValidity,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// mutate loads the application under the per-application lock, runs fn and
// saves the result in the same transaction. fn may return errNoChange to
// finish without writing; the loaded application is still returned.
func (s *Service) mutate(ctx context.Context, appID id.ApplicationID, fn func(ctx context.Context, app *models.Application) error) (*models.Application, error) {
	var out *models.Application
	err := s.tx.RunInTx(ctx, appID, func(ctx context.Context) error {
		app, err := s.apps.FindByID(ctx, appID)
		if err != nil {
			return translateNotFound(err, "application not found", "failed to load application")
		}
		out = app
		if err := fn(ctx, app); err != nil {
			return err
		}
		if err := s.apps.Update(ctx, app); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save application")
		}
		return nil
	})
	if errors.Is(err, errNoChange) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	app, err := s.apps.FindByID(ctx, appID)
	if err != nil {
		return nil, translateNotFound(err, "application not found", "failed to load application")
	}
	return app, nil
}

func translateNotFound(err error, notFound, internal string) error {
	if _, ok := dErrors.From(err); ok {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, notFound)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, internal)
}

// -----------------------------------------------------------------------------
// Access
// -----------------------------------------------------------------------------

func requireActor(ctx context.Context) (id.Actor, error) {
	actor := requestcontext.Actor(ctx)
	if actor.IsZero() {
		return id.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "actor identity required")
	}
	return actor, nil
}

func requireReviewer(ctx context.Context) (id.Actor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return actor, err
	}
	if !actor.Role.IsReviewer() {
		return actor, dErrors.New(dErrors.CodeForbidden, "reviewer role required")
	}
	return actor, nil
}

func requireAdmin(ctx context.Context) (id.Actor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return actor, err
	}
	if actor.Role != id.RoleAdmin {
		return actor, dErrors.New(dErrors.CodeForbidden, "admin role required")
	}
	return actor, nil
}

// requireOwnerOrReviewer admits the applicant who submitted app and any
// reviewer.
func requireOwnerOrReviewer(ctx context.Context, app *models.Application) (id.Actor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return actor, err
	}
	if actor.Role.IsReviewer() || actor.ID == app.ApplicantID {
		return actor, nil
	}
	return actor, dErrors.New(dErrors.CodeForbidden, "not permitted for this application")
}

// requireReader additionally admits the application's own agents.
func requireReader(ctx context.Context, app *models.Application) error {
	if bound, ok := requestcontext.AgentApplicationID(ctx); ok {
		if bound == app.ID {
			return nil
		}
		return dErrors.New(dErrors.CodeForbidden, "agent credential is not valid for this application")
	}
	_, err := requireOwnerOrReviewer(ctx, app)
	return err
}

// actorOrSystem names who caused a background or agent-driven change.
func actorOrSystem(ctx context.Context) id.Actor {
	if actor := requestcontext.Actor(ctx); !actor.IsZero() {
		return actor
	}
	return id.System
}

// -----------------------------------------------------------------------------
// Side effects
// -----------------------------------------------------------------------------

// emit publishes an audit event. Compliance and security events fail
// closed: the error aborts the surrounding transaction.
func (s *Service) emit(ctx context.Context, event audit.Event) error {
	if s.auditor == nil {
		return nil
	}
	actor := actorOrSystem(ctx)
	event.RequestID = requestcontext.RequestID(ctx)
	event.ActorID = actor.ID
	event.ActorRole = actor.Role.String()
	if err := s.auditor.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}

// emitTransition records a lifecycle move.
func (s *Service) emitTransition(ctx context.Context, app *models.Application, from models.State, trigger models.Trigger, reason string) error {
	s.metrics.IncrementTransition(from.String(), app.State.String(), string(trigger))
	return s.emit(ctx, audit.Event{
		Action:        string(audit.EventApplicationTransitioned),
		ApplicationID: app.ID,
		FromState:     from.String(),
		ToState:       app.State.String(),
		Decision:      string(trigger),
		Reason:        reason,
	})
}

func (s *Service) notify(ctx context.Context, kind notify.Kind, app *models.Application, reason, certNumber string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(context.WithoutCancel(ctx), notify.Notification{
		Kind:              kind,
		ApplicationID:     app.ID,
		ApplicationName:   app.Name,
		ApplicantID:       app.ApplicantID,
		State:             app.State.String(),
		Reason:            reason,
		CertificateNumber: certNumber,
		OccurredAt:        requestcontext.Now(ctx),
	})
}

// denied counts rejected transitions before returning the error.
func (s *Service) denied(to models.State, err error) error {
	var te *models.TransitionError
	if errors.As(err, &te) {
		s.metrics.IncrementDenied(to.String())
	}
	return err
}
