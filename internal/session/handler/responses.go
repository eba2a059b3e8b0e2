package handler

import (
	"oddcert/internal/boundary"
	"oddcert/internal/session/models"
	id "oddcert/pkg/domain"
)

// RegisterResponse tells the agent its session and what its interlock must
// do when contact is lost.
type RegisterResponse struct {
	SessionID            id.SessionID                  `json:"session_id"`
	ConnectionLossAction boundary.ConnectionLossAction `json:"connection_loss_action"`
}

// SessionResponse is a session with its current liveness.
type SessionResponse struct {
	*models.Session
	Online bool `json:"online"`
}
