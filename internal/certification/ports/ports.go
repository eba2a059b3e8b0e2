// Package ports declares what the certification lifecycle needs from the
// rest of the system.
package ports

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"oddcert/internal/boundary"
	"oddcert/internal/notify"
	id "oddcert/pkg/domain"
	"oddcert/pkg/platform/audit"
)

// SessionDirectory answers whether an application's agent is online.
type SessionDirectory interface {
	HasOnlineSession(ctx context.Context, appID id.ApplicationID) (bool, error)
}

// Discovery controls auto-discovery for applications under observation.
type Discovery interface {
	Start(ctx context.Context, appID id.ApplicationID)
	Observing(appID id.ApplicationID) bool
	Propose(ctx context.Context, appID id.ApplicationID) (*boundary.Envelope, error)
	Stop(appID id.ApplicationID)
}

// CredentialIssuer mints the credential an approved application's agents
// present on session endpoints.
type CredentialIssuer interface {
	IssueAgentToken(ctx context.Context, appID id.ApplicationID, now time.Time) (token string, expiresAt time.Time, err error)
}

// Notifier dispatches lifecycle notifications. Delivery is fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification)
}

// AuditPort emits audit events. Compliance events fail closed.
type AuditPort interface {
	Emit(ctx context.Context, event audit.Event) error
}
