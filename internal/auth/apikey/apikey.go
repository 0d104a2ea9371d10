// Package apikey authenticates service-to-service requests carrying an API
// key. Keys are presented as "<key_id>.<secret>"; only bcrypt hashes of the
// secrets are held in memory.
package apikey

import (
	"net/http"
	"strings"
	"sync"

	dErrors "hearth/pkg/domain-errors"
	"hearth/pkg/secrets"
)

// Header carries the API key on inbound requests.
const Header = "X-API-Key"

// Service verifies API keys against registered bcrypt hashes and adapts them
// to the gateway's Authenticator contract. The resolved subject is the
// key's owning subject ID.
type Service struct {
	mu   sync.RWMutex
	keys map[string]registration
}

type registration struct {
	subjectID  string
	secretHash string
}

func New() *Service {
	return &Service{
		keys: make(map[string]registration),
	}
}

// Register stores a key's bcrypt hash under its key ID. The plaintext secret
// is never retained.
func (s *Service) Register(keyID, subjectID, secret string) error {
	if keyID == "" || strings.Contains(keyID, ".") {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid key id")
	}
	if subjectID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "subject_id cannot be empty")
	}

	hash, err := secrets.Hash(secret)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.keys[keyID] = registration{subjectID: subjectID, secretHash: hash}
	s.mu.Unlock()
	return nil
}

// Revoke removes a key. Subsequent requests with it fail authentication.
func (s *Service) Revoke(keyID string) {
	s.mu.Lock()
	delete(s.keys, keyID)
	s.mu.Unlock()
}

// Authenticate resolves the request's API key to a subject identifier.
func (s *Service) Authenticate(r *http.Request) (string, error) {
	raw := r.Header.Get(Header)
	if raw == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "missing api key")
	}

	keyID, secret, ok := strings.Cut(raw, ".")
	if !ok || keyID == "" || secret == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid api key")
	}

	s.mu.RLock()
	reg, found := s.keys[keyID]
	s.mu.RUnlock()
	if !found {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid api key")
	}

	if err := secrets.Verify(secret, reg.secretHash); err != nil {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid api key")
	}
	return reg.subjectID, nil
}
