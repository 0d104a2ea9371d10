package csrf

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const testSecret = "test-signing-secret"

type CSRFSuite struct {
	suite.Suite
	service *Service
	now     time.Time
}

func (s *CSRFSuite) SetupTest() {
	s.now = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	service, err := New(testSecret, WithClock(func() time.Time { return s.now }))
	require.NoError(s.T(), err)
	s.service = service
}

func (s *CSRFSuite) TestNewRequiresSecret() {
	_, err := New("")
	assert.Error(s.T(), err)
}

func (s *CSRFSuite) TestGenerateShape() {
	token, err := s.service.Generate("user-1")
	require.NoError(s.T(), err)

	parts := strings.Split(token.Value, ":")
	require.Len(s.T(), parts, 4)
	assert.Equal(s.T(), "user-1", parts[0])
	assert.Len(s.T(), parts[1], 64) // 32 random bytes, hex encoded
	assert.Equal(s.T(), "1741615200000", parts[2])
	assert.Len(s.T(), parts[3], 64) // hmac-sha256, hex encoded
	assert.Equal(s.T(), s.now.Add(MaxAge), token.ExpiresAt)
}

func (s *CSRFSuite) TestGenerateRejectsBadSubjects() {
	_, err := s.service.Generate("")
	assert.Error(s.T(), err)

	_, err = s.service.Generate("user:1")
	assert.Error(s.T(), err)
}

func (s *CSRFSuite) TestNoncesAreUnique() {
	first, err := s.service.Generate("user-1")
	require.NoError(s.T(), err)
	second, err := s.service.Generate("user-1")
	require.NoError(s.T(), err)

	assert.NotEqual(s.T(), first.Value, second.Value)
}

func (s *CSRFSuite) TestFreshTokenValidates() {
	token, err := s.service.Generate("user-1")
	require.NoError(s.T(), err)

	assert.NoError(s.T(), s.service.Validate(token.Value, "user-1"))
}

func (s *CSRFSuite) TestSubjectMismatchFails() {
	token, err := s.service.Generate("user-a")
	require.NoError(s.T(), err)

	err = s.service.Validate(token.Value, "user-b")
	assert.ErrorIs(s.T(), err, ErrTokenInvalid)
}

func (s *CSRFSuite) TestMissingTokenFails() {
	err := s.service.Validate("", "user-1")
	assert.ErrorIs(s.T(), err, ErrTokenRequired)
	assert.EqualError(s.T(), err, "token required")
}

func (s *CSRFSuite) TestExpiredTokenFails() {
	token, err := s.service.Generate("user-1")
	require.NoError(s.T(), err)

	s.now = s.now.Add(MaxAge - time.Second)
	assert.NoError(s.T(), s.service.Validate(token.Value, "user-1"))

	s.now = s.now.Add(2 * time.Second)
	err = s.service.Validate(token.Value, "user-1")
	assert.ErrorIs(s.T(), err, ErrTokenInvalid)
	assert.EqualError(s.T(), err, "invalid or expired token")
}

func (s *CSRFSuite) TestTamperedSignatureFails() {
	token, err := s.service.Generate("user-1")
	require.NoError(s.T(), err)

	parts := strings.Split(token.Value, ":")
	require.Len(s.T(), parts, 4)

	// Flip every character of the signature in turn; each corruption must
	// be rejected.
	signature := parts[3]
	for i := 0; i < len(signature); i += 7 {
		flipped := []byte(signature)
		if flipped[i] == 'a' {
			flipped[i] = 'b'
		} else {
			flipped[i] = 'a'
		}
		tampered := strings.Join([]string{parts[0], parts[1], parts[2], string(flipped)}, ":")
		assert.ErrorIs(s.T(), s.service.Validate(tampered, "user-1"), ErrTokenInvalid)
	}
}

func (s *CSRFSuite) TestTamperedPayloadFails() {
	token, err := s.service.Generate("user-1")
	require.NoError(s.T(), err)

	parts := strings.Split(token.Value, ":")
	require.Len(s.T(), parts, 4)

	// Shift issued_at; the signature no longer matches.
	tampered := strings.Join([]string{parts[0], parts[1], "1741615200001", parts[3]}, ":")
	assert.ErrorIs(s.T(), s.service.Validate(tampered, "user-1"), ErrTokenInvalid)
}

func (s *CSRFSuite) TestMalformedTokensFail() {
	tests := []string{
		"not-a-token",
		"a:b:c",
		"a:b:c:d:e",
		"user-1:nonce:not-a-number:signature",
	}
	for _, token := range tests {
		assert.ErrorIs(s.T(), s.service.Validate(token, "user-1"), ErrTokenInvalid)
	}
}

func (s *CSRFSuite) TestDifferentSecretsDoNotCrossValidate() {
	other, err := New("another-secret", WithClock(func() time.Time { return s.now }))
	require.NoError(s.T(), err)

	token, err := s.service.Generate("user-1")
	require.NoError(s.T(), err)

	assert.ErrorIs(s.T(), other.Validate(token.Value, "user-1"), ErrTokenInvalid)
}

func TestCSRFSuite(t *testing.T) {
	suite.Run(t, new(CSRFSuite))
}
