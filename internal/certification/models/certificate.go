package models

import (
	"time"

	id "oddcert/pkg/domain"
)

// DefaultCertificateValidity is how long a certificate stays conformant.
const DefaultCertificateValidity = 365 * 24 * time.Hour

// CertificateState mirrors the application state once issued.
type CertificateState string

const (
	CertificateConformant CertificateState = "conformant"
	CertificateSuspended  CertificateState = "suspended"
	CertificateRevoked    CertificateState = "revoked"
	CertificateExpired    CertificateState = "expired"
)

// Certificate attests that an application passed a conformance test.
//
// Invariants:
//   - exactly one certificate exists per IdempotencyKey
//   - EvidenceHash never changes after issuance
type Certificate struct {
	Number          id.CertificateNumber `json:"certificate_number"`
	ApplicationID   id.ApplicationID     `json:"application_id"`
	IdempotencyKey  string               `json:"idempotency_key"`
	IssuedAt        time.Time            `json:"issued_at"`
	ExpiresAt       time.Time            `json:"expires_at"`
	State           CertificateState     `json:"state"`
	EvidenceHash    string               `json:"evidence_hash"`
	EvaluationCount int64                `json:"evaluation_count"`
}

// Valid reports whether the certificate is conformant and unexpired at now.
func (c *Certificate) Valid(now time.Time) bool {
	return c.State == CertificateConformant && now.Before(c.ExpiresAt)
}

// CertificateStateFor maps an application state onto the certificate state
// it implies, if any.
func CertificateStateFor(s State) (CertificateState, bool) {
	switch s {
	case StateConformant:
		return CertificateConformant, true
	case StateSuspended:
		return CertificateSuspended, true
	case StateRevoked:
		return CertificateRevoked, true
	case StateExpired:
		return CertificateExpired, true
	default:
		return "", false
	}
}

// Verification is the public answer about a certificate number.
type Verification struct {
	Number       id.CertificateNumber `json:"certificate_number"`
	Valid        bool                 `json:"valid"`
	State        CertificateState     `json:"state"`
	IssuedAt     time.Time            `json:"issued_at"`
	ExpiresAt    time.Time            `json:"expires_at"`
	EvidenceHash string               `json:"evidence_hash"`
}

// StatusView bundles an application with its current timer reading and
// certificate, for the status endpoints.
type StatusView struct {
	Application *Application
	Progress    *Progress
	Certificate *Certificate
}

// EvidenceAudit compares a certificate's stored evidence hash with one
// recomputed from the evidence log.
type EvidenceAudit struct {
	Number     id.CertificateNumber `json:"certificate_number"`
	Records    int                  `json:"records"`
	Violations int                  `json:"violations"`
	Stored     string               `json:"stored_hash"`
	Recomputed string               `json:"recomputed_hash"`
	Match      bool                 `json:"match"`
}
