// Package jwtauth authenticates requests carrying a bearer access token.
package jwtauth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	dErrors "hearth/pkg/domain-errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const bearerPrefix = "Bearer "

// AccessTokenClaims are the JWT claims for our access tokens. Subject carries
// the user ID; HouseholdID scopes the token to a tenant.
type AccessTokenClaims struct {
	HouseholdID string `json:"household_id,omitempty"`
	jwt.RegisteredClaims
}

// Service issues and validates HS256-signed access tokens and adapts them to
// the gateway's Authenticator contract.
type Service struct {
	signingKey []byte
	issuer     string
	tokenTTL   time.Duration
	now        func() time.Time
}

type Option func(*Service)

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(signingKey, issuer string, tokenTTL time.Duration, opts ...Option) (*Service, error) {
	if signingKey == "" {
		return nil, errors.New("jwt signing key is required")
	}
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}

	svc := &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		tokenTTL:   tokenTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// GenerateAccessToken issues a signed token for the user.
func (s *Service) GenerateAccessToken(userID, householdID string) (string, error) {
	if userID == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "user_id cannot be empty")
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
		HouseholdID: householdID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})

	return token.SignedString(s.signingKey)
}

// ValidateToken parses and verifies a token string.
func (s *Service) ValidateToken(tokenString string) (*AccessTokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &AccessTokenClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*AccessTokenClaims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token issuer")
	}
	if claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	return claims, nil
}

// Authenticate resolves the request's bearer token to a subject identifier.
func (s *Service) Authenticate(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "missing authorization header")
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid authorization header")
	}

	claims, err := s.ValidateToken(header[len(bearerPrefix):])
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
