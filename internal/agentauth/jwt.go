// Package agentauth mints and validates the bearer credentials agents use on
// the session endpoints.
package agentauth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "oddcert/pkg/domain"
	dErrors "oddcert/pkg/domain-errors"
)

const (
	DefaultIssuer   = "oddcert"
	DefaultAudience = "oddcert-agent"
	DefaultTTL      = 90 * 24 * time.Hour
)

// Claims are the claims carried by an agent credential.
type Claims struct {
	ApplicationID string `json:"application_id"`
	jwt.RegisteredClaims
}

// Service signs agent credentials with HS256.
type Service struct {
	signingKey []byte
	issuer     string
	audience   string
	ttl        time.Duration
}

type Option func(*Service)

// WithTTL sets how long a minted credential stays valid.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithIssuer(issuer string) Option {
	return func(s *Service) {
		if issuer != "" {
			s.issuer = issuer
		}
	}
}

func NewService(signingKey string, opts ...Option) *Service {
	s := &Service{
		signingKey: []byte(signingKey),
		issuer:     DefaultIssuer,
		audience:   DefaultAudience,
		ttl:        DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueAgentToken mints a credential bound to one application.
func (s *Service) IssueAgentToken(_ context.Context, appID id.ApplicationID, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ApplicationID: appID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "agent:" + appID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign agent credential")
	}
	return signed, expiresAt, nil
}

// ValidateToken checks the signature, expiry, issuer and audience, and
// returns the application the credential is bound to.
func (s *Service) ValidateToken(tokenString string) (id.ApplicationID, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return id.ApplicationID{}, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return id.ApplicationID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return id.ApplicationID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	appID, err := id.ParseApplicationID(claims.ApplicationID)
	if err != nil {
		return id.ApplicationID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return appID, nil
}
