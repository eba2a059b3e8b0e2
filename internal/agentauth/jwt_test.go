package agentauth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "oddcert/pkg/domain"
	dErrors "oddcert/pkg/domain-errors"
)

var agentTokens = NewService("test-signing-key", WithTTL(time.Hour))

func Test_IssueAgentToken(t *testing.T) {
	appID := id.NewApplicationID()
	now := time.Now()

	token, expiresAt, err := agentTokens.IssueAgentToken(context.Background(), appID, now)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.WithinDuration(t, now.Add(time.Hour), expiresAt, time.Second)

	bound, err := agentTokens.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, appID, bound)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := agentTokens.ValidateToken("invalid-token-string")
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, _, err := agentTokens.IssueAgentToken(context.Background(), id.NewApplicationID(), time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	_, err = agentTokens.ValidateToken(token)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "token has expired"))
}

func Test_ValidateToken_OtherKey(t *testing.T) {
	other := NewService("another-key")
	token, _, err := other.IssueAgentToken(context.Background(), id.NewApplicationID(), time.Now())
	require.NoError(t, err)

	_, err = agentTokens.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_WrongAudience(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ApplicationID: id.NewApplicationID().String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			Issuer:    DefaultIssuer,
			Audience:  []string{"someone-else"},
		},
	})
	signed, err := token.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	_, err = agentTokens.ValidateToken(signed)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_MissingApplication(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			Issuer:    DefaultIssuer,
			Audience:  []string{DefaultAudience},
		},
	})
	signed, err := token.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	_, err = agentTokens.ValidateToken(signed)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims"))
}
