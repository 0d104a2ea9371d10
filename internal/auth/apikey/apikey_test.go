package apikey

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestWithKey(key string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "http://example.test/api/bills", nil)
	if key != "" {
		req.Header.Set(Header, key)
	}
	return req
}

func TestAuthenticateResolvesSubject(t *testing.T) {
	service := New()
	require.NoError(t, service.Register("key-1", "service-billing", "s3cret"))

	subject, err := service.Authenticate(requestWithKey("key-1.s3cret"))
	require.NoError(t, err)
	assert.Equal(t, "service-billing", subject)
}

func TestAuthenticateWrongSecret(t *testing.T) {
	service := New()
	require.NoError(t, service.Register("key-1", "service-billing", "s3cret"))

	_, err := service.Authenticate(requestWithKey("key-1.wrong"))
	assert.Error(t, err)
}

func TestAuthenticateUnknownKey(t *testing.T) {
	service := New()

	_, err := service.Authenticate(requestWithKey("key-1.s3cret"))
	assert.Error(t, err)
}

func TestAuthenticateMissingOrMalformed(t *testing.T) {
	service := New()
	require.NoError(t, service.Register("key-1", "service-billing", "s3cret"))

	_, err := service.Authenticate(requestWithKey(""))
	assert.Error(t, err)

	_, err = service.Authenticate(requestWithKey("no-separator"))
	assert.Error(t, err)

	_, err = service.Authenticate(requestWithKey(".just-a-secret"))
	assert.Error(t, err)
}

func TestRevokedKeyStopsWorking(t *testing.T) {
	service := New()
	require.NoError(t, service.Register("key-1", "service-billing", "s3cret"))

	service.Revoke("key-1")

	_, err := service.Authenticate(requestWithKey("key-1.s3cret"))
	assert.Error(t, err)
}

func TestRegisterValidation(t *testing.T) {
	service := New()

	assert.Error(t, service.Register("", "subject", "s3cret"))
	assert.Error(t, service.Register("key.with.dots", "subject", "s3cret"))
	assert.Error(t, service.Register("key-1", "", "s3cret"))
	assert.Error(t, service.Register("key-1", "subject", ""))
}
