// Package csrf implements the stateless anti-forgery token protocol.
//
// Tokens are four colon-separated fields, subject:nonce:issued_at:signature,
// where the signature is an HMAC-SHA256 over the first three fields under a
// process-wide secret. Nothing is persisted server-side; tokens expire purely
// by clock comparison.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	dErrors "hearth/pkg/domain-errors"
)

// MaxAge is the validity window for issued tokens.
const MaxAge = 24 * time.Hour

const nonceBytes = 32

// Stable error values. The messages are part of the API contract; clients
// match on them.
var (
	ErrTokenRequired = dErrors.New(dErrors.CodeCSRFTokenRequired, "token required")
	ErrTokenInvalid  = dErrors.New(dErrors.CodeCSRFTokenInvalid, "invalid or expired token")
)

// Token is an issued anti-forgery token with its expiry metadata.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Service issues and validates signed, time-bound, subject-bound tokens.
// It is pure and stateless; no synchronization is required.
type Service struct {
	secret []byte
	now    func() time.Time
}

type Option func(*Service)

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(secret string, opts ...Option) (*Service, error) {
	if secret == "" {
		return nil, fmt.Errorf("csrf signing secret is required")
	}

	svc := &Service{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Generate issues a token bound to the subject.
func (s *Service) Generate(subjectID string) (*Token, error) {
	if subjectID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject_id cannot be empty")
	}
	if strings.Contains(subjectID, ":") {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject_id cannot contain ':'")
	}

	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not generate nonce")
	}
	nonce := hex.EncodeToString(buf)

	issuedAt := s.now()
	payload := payload(subjectID, nonce, issuedAt.UnixMilli())

	return &Token{
		Value:     payload + ":" + s.sign(payload),
		ExpiresAt: issuedAt.Add(MaxAge),
	}, nil
}

// Validate checks a token against the caller's subject. All conditions are
// required; any single failure is a full rejection.
func (s *Service) Validate(token, subjectID string) error {
	if token == "" {
		return ErrTokenRequired
	}

	parts := strings.Split(token, ":")
	if len(parts) != 4 {
		return ErrTokenInvalid
	}
	subject, nonce, issuedRaw, signature := parts[0], parts[1], parts[2], parts[3]

	if subject != subjectID {
		return ErrTokenInvalid
	}

	issuedMillis, err := strconv.ParseInt(issuedRaw, 10, 64)
	if err != nil {
		return ErrTokenInvalid
	}
	if s.now().Sub(time.UnixMilli(issuedMillis)) > MaxAge {
		return ErrTokenInvalid
	}

	expected := s.sign(payload(subject, nonce, issuedMillis))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrTokenInvalid
	}

	return nil
}

func payload(subjectID, nonce string, issuedMillis int64) string {
	return subjectID + ":" + nonce + ":" + strconv.FormatInt(issuedMillis, 10)
}

func (s *Service) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
