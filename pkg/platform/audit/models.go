package audit

import (
	"context"
	"time"

	id "oddcert/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with certification significance.
	// These are written fail-closed: the business operation fails when the
	// event cannot be persisted.
	// Examples: state transitions, envelope acknowledgment, certificate issuance.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring.
	// Examples: agent credential issuance, connectivity faults during a test.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for operational visibility.
	// These can be sampled with shorter retention.
	// Examples: session registration, session end, agent going offline.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category      EventCategory
	Timestamp     time.Time
	ApplicationID id.ApplicationID
	// SessionID is set for events raised on the telemetry path.
	SessionID id.SessionID
	Subject   string
	Action    string
	FromState string
	ToState   string
	Decision  string
	Reason    string
	RequestID string
	// ActorID and ActorRole identify who caused the event; "system" for
	// background sweeps.
	ActorID   string
	ActorRole string
}

type AuditEvent string

const (
	// Certification lifecycle events
	EventApplicationSubmitted    AuditEvent = "application_submitted"
	EventApplicationTransitioned AuditEvent = "application_transitioned"
	EventEnvelopeDefined         AuditEvent = "envelope_defined"
	EventEnvelopeProposed        AuditEvent = "envelope_proposed"
	EventEnvelopeAcknowledged    AuditEvent = "envelope_acknowledged"
	EventCAT72Started            AuditEvent = "cat72_started"
	EventCAT72Completed          AuditEvent = "cat72_completed"
	EventViolationsResolved      AuditEvent = "violations_resolved"
	EventOverrideApplied         AuditEvent = "override_applied"
	EventCertificateIssued       AuditEvent = "certificate_issued"

	// Agent events
	EventCredentialIssued  AuditEvent = "credential_issued"
	EventConnectivityFault AuditEvent = "connectivity_fault"

	// Session events
	EventSessionRegistered AuditEvent = "session_registered"
	EventSessionEnded      AuditEvent = "session_ended"
	EventSessionOffline    AuditEvent = "session_offline"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventApplicationSubmitted:    CategoryCompliance,
	EventApplicationTransitioned: CategoryCompliance,
	EventEnvelopeDefined:         CategoryCompliance,
	EventEnvelopeProposed:        CategoryCompliance,
	EventEnvelopeAcknowledged:    CategoryCompliance,
	EventCAT72Started:            CategoryCompliance,
	EventCAT72Completed:          CategoryCompliance,
	EventViolationsResolved:      CategoryCompliance,
	EventOverrideApplied:         CategoryCompliance,
	EventCertificateIssued:       CategoryCompliance,

	EventCredentialIssued:  CategorySecurity,
	EventConnectivityFault: CategorySecurity,

	EventSessionRegistered: CategoryOperations,
	EventSessionEnded:      CategoryOperations,
	EventSessionOffline:    CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// FailClosed reports whether events of this category must be persisted
// before the triggering operation may succeed.
func (c EventCategory) FailClosed() bool {
	return c == CategoryCompliance || c == CategorySecurity
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByApplication(ctx context.Context, appID id.ApplicationID) ([]Event, error)
}

// Emitter is implemented by publishers handed to services.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}
