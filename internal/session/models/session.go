package models

import (
	"strings"
	"time"

	"oddcert/internal/boundary"
	id "oddcert/pkg/domain"
	dErrors "oddcert/pkg/domain-errors"
)

// Status is the lifecycle state of an agent session.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// End reasons recorded on a session.
const (
	EndReasonAgent   = "agent_ended"
	EndReasonTimeout = "silence_timeout"
)

const (
	maxAgentVersionLen = 64
	maxBoundaryHints   = 256
)

// Session is one agent connection for an application.
//
// Invariants:
//   - ApplicationID is set and never changes
//   - Status moves active -> ended only; an ended session accepts nothing
//   - PassCount + BlockCount equals the number of evaluated samples
//   - ContactLost is set at most once per offline episode and cleared by
//     any contact from the agent
type Session struct {
	ID              id.SessionID     `json:"session_id"`
	ApplicationID   id.ApplicationID `json:"application_id"`
	AgentVersion    string           `json:"agent_version"`
	BoundariesHint  []string         `json:"boundaries_hint,omitempty"`
	Status          Status           `json:"status"`
	StartedAt       time.Time        `json:"started_at"`
	LastHeartbeatAt time.Time        `json:"last_heartbeat_at"`
	LastSampleAt    *time.Time       `json:"last_sample_at,omitempty"`
	EndedAt         *time.Time       `json:"ended_at,omitempty"`
	EndReason       string           `json:"end_reason,omitempty"`
	PassCount       int64            `json:"pass_count"`
	BlockCount      int64            `json:"block_count"`
	// Observed counts samples folded into auto-discovery.
	Observed    int64          `json:"observed"`
	FinalStats  map[string]any `json:"final_stats,omitempty"`
	ContactLost bool           `json:"contact_lost"`
}

// NewSession validates and creates an active session.
func NewSession(sessionID id.SessionID, appID id.ApplicationID, agentVersion string, hints []string, now time.Time) (*Session, error) {
	if appID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "application_id is required")
	}
	agentVersion = strings.TrimSpace(agentVersion)
	if agentVersion == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "agent_version is required")
	}
	if len(agentVersion) > maxAgentVersionLen {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "agent_version must be 64 characters or less")
	}
	if len(hints) > maxBoundaryHints {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "too many boundaries_hint entries")
	}
	return &Session{
		ID:              sessionID,
		ApplicationID:   appID,
		AgentVersion:    agentVersion,
		BoundariesHint:  append([]string(nil), hints...),
		Status:          StatusActive,
		StartedAt:       now,
		LastHeartbeatAt: now,
	}, nil
}

// IsActive reports whether the session still accepts traffic.
func (s *Session) IsActive() bool {
	return s.Status == StatusActive
}

// LastSeen is the most recent contact from the agent: a heartbeat or a
// telemetry sample.
func (s *Session) LastSeen() time.Time {
	if s.LastSampleAt != nil && s.LastSampleAt.After(s.LastHeartbeatAt) {
		return *s.LastSampleAt
	}
	return s.LastHeartbeatAt
}

// Online reports whether the agent was heard from within timeout.
func (s *Session) Online(now time.Time, timeout time.Duration) bool {
	return s.IsActive() && now.Sub(s.LastSeen()) <= timeout
}

// CanAccept checks that the session is still active.
// Use with the Apply methods in Execute callbacks.
func (s *Session) CanAccept() error {
	if !s.IsActive() {
		return dErrors.New(dErrors.CodeConflict, "session has ended")
	}
	return nil
}

// ApplyHeartbeat records contact and closes any offline episode.
func (s *Session) ApplyHeartbeat(now time.Time) {
	if now.After(s.LastHeartbeatAt) {
		s.LastHeartbeatAt = now
	}
	s.ContactLost = false
}

// ApplyTelemetry folds evaluated sample tallies into the session.
func (s *Session) ApplyTelemetry(passed, blocked, observed int64, lastSample time.Time) {
	s.PassCount += passed
	s.BlockCount += blocked
	s.Observed += observed
	if s.LastSampleAt == nil || lastSample.After(*s.LastSampleAt) {
		at := lastSample
		s.LastSampleAt = &at
	}
	s.ContactLost = false
}

// ApplyContactLost opens an offline episode.
func (s *Session) ApplyContactLost() {
	s.ContactLost = true
}

// ApplyEnd ends the session.
func (s *Session) ApplyEnd(now time.Time, reason string, stats map[string]any) {
	s.Status = StatusEnded
	s.EndedAt = &now
	s.EndReason = reason
	if stats != nil {
		s.FinalStats = stats
	}
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *Session) Clone() *Session {
	c := *s
	c.BoundariesHint = append([]string(nil), s.BoundariesHint...)
	if s.LastSampleAt != nil {
		t := *s.LastSampleAt
		c.LastSampleAt = &t
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	if s.FinalStats != nil {
		c.FinalStats = make(map[string]any, len(s.FinalStats))
		for k, v := range s.FinalStats {
			c.FinalStats[k] = v
		}
	}
	return &c
}

// ConnectivityFault reports that an agent under test lost contact, either
// by missing heartbeats or by breaching a connectivity boundary.
type ConnectivityFault struct {
	ApplicationID id.ApplicationID
	SessionID     id.SessionID
	LastSeen      time.Time
	DetectedAt    time.Time
	Violations    []boundary.Violation
}

// TelemetryResult summarises one telemetry batch.
type TelemetryResult struct {
	Accepted   int                         `json:"accepted"`
	Passed     int                         `json:"passed"`
	Blocked    int                         `json:"blocked"`
	Violations []SampleViolations          `json:"violations"`
	Results    []boundary.EvaluationResult `json:"-"`
}

// SampleViolations are the violations of one blocked sample.
type SampleViolations struct {
	SampleRef  string               `json:"sample_ref"`
	Violations []boundary.Violation `json:"violations"`
}
