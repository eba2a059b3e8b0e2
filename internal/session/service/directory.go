package service

import (
	"context"
	"time"

	"oddcert/internal/session/models"
	id "oddcert/pkg/domain"
	"oddcert/pkg/requestcontext"
)

// SessionLister is the read side of the session store.
type SessionLister interface {
	ListByApplication(ctx context.Context, appID id.ApplicationID) ([]*models.Session, error)
}

// Directory answers liveness questions about an application's agents for the
// certification lifecycle. It reads the store directly so it can be built
// before either service.
type Directory struct {
	sessions SessionLister
	timeout  time.Duration
}

func NewDirectory(sessions SessionLister, heartbeatTimeout time.Duration) *Directory {
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = DefaultHeartbeatTimeout
	}
	return &Directory{sessions: sessions, timeout: heartbeatTimeout}
}

// HasOnlineSession reports whether any active session of the application
// was heard from within the heartbeat timeout.
func (d *Directory) HasOnlineSession(ctx context.Context, appID id.ApplicationID) (bool, error) {
	sessions, err := d.sessions.ListByApplication(ctx, appID)
	if err != nil {
		return false, err
	}
	now := requestcontext.Now(ctx)
	for _, session := range sessions {
		if session.Online(now, d.timeout) {
			return true, nil
		}
	}
	return false, nil
}
