// Package auth composes the concrete authenticators the gateway dispatches
// to: API keys for service callers, bearer tokens for users.
package auth

import (
	"fmt"
	"net/http"
)

// Authenticator resolves a request to a stable subject identifier.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// Fallback tries each authenticator in order and resolves to the first
// success. A request fails only when every authenticator rejects it; the
// last rejection is returned so the client sees the error of the credential
// it most likely intended to present.
type Fallback struct {
	chain []Authenticator
}

func NewFallback(chain ...Authenticator) (*Fallback, error) {
	if len(chain) == 0 {
		return nil, fmt.Errorf("at least one authenticator is required")
	}
	for i, a := range chain {
		if a == nil {
			return nil, fmt.Errorf("authenticator %d is nil", i)
		}
	}
	return &Fallback{chain: chain}, nil
}

func (f *Fallback) Authenticate(r *http.Request) (string, error) {
	var err error
	for _, a := range f.chain {
		var subjectID string
		subjectID, err = a.Authenticate(r)
		if err == nil {
			return subjectID, nil
		}
	}
	return "", err
}
