package models

import (
	"oddcert/internal/boundary"
	id "oddcert/pkg/domain"
)

// RegisterRequest is a validated agent registration.
type RegisterRequest struct {
	ApplicationID  id.ApplicationID
	AgentVersion   string
	BoundariesHint []string
}

// RegisterResult tells the agent which session to report under and what its
// interlock must do when it loses contact.
type RegisterResult struct {
	Session              *Session
	ConnectionLossAction boundary.ConnectionLossAction
}
