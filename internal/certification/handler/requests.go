package handler

import (
	"strings"

	"oddcert/internal/certification/models"
	dErrors "oddcert/pkg/domain-errors"
)

const maxReasonLen = 1000

// SubmitRequest is the HTTP request body for POST /applications.
type SubmitRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Validate implements httputil.Validatable.
func (r *SubmitRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return nil
}

// TransitionRequest is the HTTP request body for PATCH /applications/{id}/state.
type TransitionRequest struct {
	State    string `json:"state"`
	Reason   string `json:"reason"`
	Override bool   `json:"override"`

	parsedState models.State
}

// Validate implements httputil.Validatable.
func (r *TransitionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	state, err := models.ParseState(r.State)
	if err != nil {
		return err
	}
	r.parsedState = state
	r.Reason = strings.TrimSpace(r.Reason)
	if len(r.Reason) > maxReasonLen {
		return dErrors.New(dErrors.CodeValidation, "reason must be 1000 characters or less")
	}
	return nil
}

// ParsedState returns the validated target state.
func (r *TransitionRequest) ParsedState() models.State {
	return r.parsedState
}

// ResolveRequest is the HTTP request body for POST violations/resolve.
type ResolveRequest struct {
	Reason string `json:"reason"`
}

func (r *ResolveRequest) Validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	if len(r.Reason) > maxReasonLen {
		return dErrors.New(dErrors.CodeValidation, "reason must be 1000 characters or less")
	}
	return nil
}

// BeginRequest is the optional HTTP request body for POST cat72/begin.
type BeginRequest struct {
	Override bool `json:"override"`
}
