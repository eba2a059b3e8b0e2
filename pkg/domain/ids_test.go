package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "oddcert/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseApplicationID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseApplicationID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseSessionID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseApplicationID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, ApplicationID(validUUID), id)
	})
}

func TestParseID_TrustBoundary(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE applications;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSessionID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestIDTextRoundTrip(t *testing.T) {
	id := NewApplicationID()
	text, err := id.MarshalText()
	require.NoError(t, err)

	var parsed ApplicationID
	require.NoError(t, parsed.UnmarshalText(text))
	assert.Equal(t, id, parsed)

	var bad SessionID
	require.Error(t, bad.UnmarshalText([]byte("nope")))
}

func TestCertificateNumber(t *testing.T) {
	t.Run("formats year and zero-padded sequence", func(t *testing.T) {
		assert.Equal(t, CertificateNumber("ODDC-2026-00042"), NewCertificateNumber(2026, 42))
	})

	t.Run("parses normalised input", func(t *testing.T) {
		n, err := ParseCertificateNumber(" oddc-2026-00001 ")
		require.NoError(t, err)
		assert.Equal(t, CertificateNumber("ODDC-2026-00001"), n)
	})

	for _, in := range []string{"", "ODDC-26-00001", "ODDC-2026-1", "CERT-2026-00001", "ODDC-20x6-00001", "ODDC-2026-00001-1"} {
		t.Run("rejects "+in, func(t *testing.T) {
			_, err := ParseCertificateNumber(in)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}
