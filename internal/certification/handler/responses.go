package handler

import (
	"time"

	"oddcert/internal/certification/models"
)

// StatusResponse is returned by GET /applications/{id}.
type StatusResponse struct {
	*models.Application
	Progress    *models.Progress    `json:"progress,omitempty"`
	Certificate *models.Certificate `json:"certificate,omitempty"`
}

func toStatusResponse(view *models.StatusView) StatusResponse {
	return StatusResponse{
		Application: view.Application,
		Progress:    view.Progress,
		Certificate: view.Certificate,
	}
}

// TransitionResponse acknowledges a lifecycle move. AgentCredential is only
// present on approval and is never shown again.
type TransitionResponse struct {
	OK                  bool                `json:"ok"`
	From                models.State        `json:"from"`
	State               models.State        `json:"state"`
	Application         *models.Application `json:"application"`
	AgentCredential     string              `json:"agent_credential,omitempty"`
	CredentialExpiresAt *time.Time          `json:"credential_expires_at,omitempty"`
	Certificate         *models.Certificate `json:"certificate,omitempty"`
}

func toTransitionResponse(res *models.TransitionResult) TransitionResponse {
	return TransitionResponse{
		OK:                  true,
		From:                res.From,
		State:               res.Application.State,
		Application:         res.Application,
		AgentCredential:     res.AgentCredential,
		CredentialExpiresAt: res.CredentialExpiresAt,
		Certificate:         res.Certificate,
	}
}

// ResolveResponse reports how many violations were cleared.
type ResolveResponse struct {
	Resolved    int                 `json:"resolved"`
	Application *models.Application `json:"application"`
}
