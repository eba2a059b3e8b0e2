package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	dErrors "oddcert/pkg/domain-errors"
)

// Typed identifiers prevent passing a session id where an application id is
// expected. All of them are non-nil UUIDs once parsed.
type (
	ApplicationID uuid.UUID
	SessionID     uuid.UUID
)

func (i ApplicationID) String() string { return uuid.UUID(i).String() }
func (i ApplicationID) IsNil() bool    { return uuid.UUID(i) == uuid.Nil }

func (i SessionID) String() string { return uuid.UUID(i).String() }
func (i SessionID) IsNil() bool    { return uuid.UUID(i) == uuid.Nil }

func (i ApplicationID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }
func (i SessionID) MarshalText() ([]byte, error)     { return []byte(i.String()), nil }

func (i *ApplicationID) UnmarshalText(b []byte) error {
	parsed, err := ParseApplicationID(string(b))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

func (i *SessionID) UnmarshalText(b []byte) error {
	parsed, err := ParseSessionID(string(b))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// NewApplicationID returns a fresh random id.
func NewApplicationID() ApplicationID { return ApplicationID(uuid.New()) }

// NewSessionID returns a fresh random id.
func NewSessionID() SessionID { return SessionID(uuid.New()) }

// ParseApplicationID validates s at a trust boundary.
func ParseApplicationID(s string) (ApplicationID, error) {
	u, err := parseUUID(s, "application_id")
	return ApplicationID(u), err
}

// ParseSessionID validates s at a trust boundary.
func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s, "session_id")
	return SessionID(u), err
}

func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	if len(s) > 36 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+field)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be nil")
	}
	return u, nil
}

// CertificateNumber is the public identifier of an issued certificate,
// formatted ODDC-<year>-<5-digit sequence>.
type CertificateNumber string

const certificatePrefix = "ODDC"

// NewCertificateNumber formats a number from its issuance year and the
// per-year sequence.
func NewCertificateNumber(year, seq int) CertificateNumber {
	return CertificateNumber(fmt.Sprintf("%s-%04d-%05d", certificatePrefix, year, seq))
}

func (n CertificateNumber) String() string { return string(n) }

// ParseCertificateNumber validates the public certificate number format.
func ParseCertificateNumber(s string) (CertificateNumber, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	parts := strings.Split(s, "-")
	if len(parts) != 3 || parts[0] != certificatePrefix {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid certificate number")
	}
	if len(parts[1]) != 4 || len(parts[2]) != 5 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid certificate number")
	}
	if _, err := strconv.Atoi(parts[1]); err != nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid certificate number")
	}
	if _, err := strconv.Atoi(parts[2]); err != nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid certificate number")
	}
	return CertificateNumber(s), nil
}
