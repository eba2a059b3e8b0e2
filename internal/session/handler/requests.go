package handler

import (
	"strings"

	"oddcert/internal/boundary"
	id "oddcert/pkg/domain"
	dErrors "oddcert/pkg/domain-errors"
)

// RegisterRequest is the HTTP request body for POST /sessions.
type RegisterRequest struct {
	ApplicationID  string   `json:"application_id"`
	AgentVersion   string   `json:"agent_version"`
	BoundariesHint []string `json:"boundaries_hint"`

	parsedApplicationID id.ApplicationID
}

// Validate implements httputil.Validatable.
func (r *RegisterRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	appID, err := id.ParseApplicationID(strings.TrimSpace(r.ApplicationID))
	if err != nil {
		return err
	}
	r.parsedApplicationID = appID
	r.AgentVersion = strings.TrimSpace(r.AgentVersion)
	if r.AgentVersion == "" {
		return dErrors.New(dErrors.CodeValidation, "agent_version is required")
	}
	return nil
}

func (r *RegisterRequest) ParsedApplicationID() id.ApplicationID {
	return r.parsedApplicationID
}

// TelemetryRequest is the HTTP request body for POST /sessions/{id}/telemetry.
type TelemetryRequest struct {
	Records []boundary.Sample `json:"records"`
}

func (r *TelemetryRequest) Validate() error {
	if r == nil || len(r.Records) == 0 {
		return dErrors.New(dErrors.CodeValidation, "records must not be empty")
	}
	for i := range r.Records {
		if r.Records[i].Parameters == nil {
			r.Records[i].Parameters = map[string]any{}
		}
	}
	return nil
}

// EndRequest is the optional HTTP request body for POST /sessions/{id}/end.
type EndRequest struct {
	FinalStats map[string]any `json:"final_stats"`
}
