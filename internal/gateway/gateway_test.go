package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"hearth/internal/monitor"
	"hearth/internal/platform/middleware/metadata"
	"hearth/internal/ratelimit/models"
	dErrors "hearth/pkg/domain-errors"
)

// --- fakes ---

type fakeAuthenticator struct {
	subjectID string
	err       error
}

func (f *fakeAuthenticator) Authenticate(*http.Request) (string, error) {
	return f.subjectID, f.err
}

type fakeLimiter struct {
	result   *models.RateLimitResult
	err      error
	subjects []string
}

func (f *fakeLimiter) Check(_ context.Context, subjectID, _ string) (*models.RateLimitResult, error) {
	f.subjects = append(f.subjects, subjectID)
	return f.result, f.err
}

type fakeCSRF struct {
	err    error
	tokens []string
}

func (f *fakeCSRF) Validate(token, _ string) error {
	f.tokens = append(f.tokens, token)
	return f.err
}

type fakeSecurityLog struct {
	events []monitor.Event
}

func (f *fakeSecurityLog) LogEvent(_ context.Context, event monitor.Event) {
	f.events = append(f.events, event)
}

func allowedResult() *models.RateLimitResult {
	return &models.RateLimitResult{
		Allowed:   true,
		Class:     models.ClassBills,
		Limit:     20,
		Remaining: 19,
		ResetAt:   time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC),
	}
}

type GatewaySuite struct {
	suite.Suite
	auth     *fakeAuthenticator
	limiter  *fakeLimiter
	csrf     *fakeCSRF
	events   *fakeSecurityLog
	gateway  *Gateway
	invoked  int
	subjects []string
}

func (s *GatewaySuite) SetupTest() {
	s.auth = &fakeAuthenticator{subjectID: "user-1"}
	s.limiter = &fakeLimiter{result: allowedResult()}
	s.csrf = &fakeCSRF{}
	s.events = &fakeSecurityLog{}
	s.invoked = 0
	s.subjects = nil

	gw, err := New(s.auth, s.limiter, s.csrf, s.events,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(s.T(), err)
	s.gateway = gw
}

func (s *GatewaySuite) handler() Handler {
	return func(w http.ResponseWriter, r *http.Request, subjectID string) {
		s.invoked++
		s.subjects = append(s.subjects, subjectID)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *GatewaySuite) do(method string, route RouteConfig, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "http://example.test"+route.Name, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req = req.WithContext(metadata.WithClientMetadata(req.Context(), "203.0.113.9", "test-agent"))

	rec := httptest.NewRecorder()
	s.gateway.Protect(route, s.handler())(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

// --- stage 1: method ---

func (s *GatewaySuite) TestDisallowedMethodIs405() {
	rec := s.do(http.MethodDelete, ReadOnlyRoute("/api/analytics"), nil)

	assert.Equal(s.T(), http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(s.T(), "method not allowed", errorBody(s.T(), rec))
	assert.Zero(s.T(), s.invoked)
}

// --- stage 2: authentication ---

func (s *GatewaySuite) TestAuthFailureIs401AndLogged() {
	s.auth.err = dErrors.New(dErrors.CodeUnauthorized, "invalid token")

	rec := s.do(http.MethodGet, DefaultRoute("/api/bills"), nil)

	assert.Equal(s.T(), http.StatusUnauthorized, rec.Code)
	assert.Equal(s.T(), "authentication required", errorBody(s.T(), rec))
	assert.Zero(s.T(), s.invoked)

	require.Len(s.T(), s.events.events, 1)
	event := s.events.events[0]
	assert.Equal(s.T(), monitor.EventUnauthorizedAccess, event.Type)
	assert.Equal(s.T(), "203.0.113.9", event.SourceIP)
	assert.Equal(s.T(), "test-agent", event.UserAgent)
	assert.Equal(s.T(), "/api/bills", event.Endpoint)
}

func (s *GatewaySuite) TestPublicRouteSkipsAuthAndUsesClientIP() {
	s.auth.err = errors.New("should not be called")

	rec := s.do(http.MethodGet, PublicRoute("/public/status"), nil)

	assert.Equal(s.T(), http.StatusNoContent, rec.Code)
	assert.Equal(s.T(), 1, s.invoked)
	assert.Equal(s.T(), []string{"203.0.113.9"}, s.subjects)
	assert.Equal(s.T(), []string{"203.0.113.9"}, s.limiter.subjects)
}

// --- stage 3: rate limiting ---

func (s *GatewaySuite) TestRateLimitedIs429WithHeaders() {
	s.limiter.result = &models.RateLimitResult{
		Allowed:    false,
		Class:      models.ClassBills,
		Limit:      20,
		Remaining:  0,
		ResetAt:    time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC),
		RetryAfter: 120,
	}

	rec := s.do(http.MethodGet, DefaultRoute("/api/bills"), nil)

	assert.Equal(s.T(), http.StatusTooManyRequests, rec.Code)
	assert.Equal(s.T(), "rate limit exceeded", errorBody(s.T(), rec))
	assert.Equal(s.T(), "20", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(s.T(), "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(s.T(), "1741618800", rec.Header().Get("X-RateLimit-Reset"))
	assert.Equal(s.T(), "120", rec.Header().Get("Retry-After"))
	assert.Zero(s.T(), s.invoked)

	require.Len(s.T(), s.events.events, 1)
	assert.Equal(s.T(), monitor.EventRateLimitExceeded, s.events.events[0].Type)
	assert.Equal(s.T(), "user-1", s.events.events[0].SubjectID)
}

func (s *GatewaySuite) TestLimiterErrorAllowsRequest() {
	s.limiter.result = nil
	s.limiter.err = errors.New("bad key")

	rec := s.do(http.MethodGet, DefaultRoute("/api/bills"), nil)

	assert.Equal(s.T(), http.StatusNoContent, rec.Code)
	assert.Equal(s.T(), 1, s.invoked)
}

func (s *GatewaySuite) TestAllowedRequestCarriesQuotaHeaders() {
	rec := s.do(http.MethodGet, DefaultRoute("/api/bills"), nil)

	assert.Equal(s.T(), http.StatusNoContent, rec.Code)
	assert.Equal(s.T(), "19", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Empty(s.T(), rec.Header().Get("Retry-After"))
}

// --- stage 4: CSRF ---

func (s *GatewaySuite) TestCSRFFailureIs403AndLogged() {
	s.csrf.err = dErrors.New(dErrors.CodeCSRFTokenInvalid, "invalid or expired token")

	rec := s.do(http.MethodPost, DefaultRoute("/api/bills"), map[string]string{"X-CSRF-Token": "bogus"})

	assert.Equal(s.T(), http.StatusForbidden, rec.Code)
	assert.Equal(s.T(), "invalid or expired token", errorBody(s.T(), rec))
	assert.Zero(s.T(), s.invoked)

	require.Len(s.T(), s.events.events, 1)
	assert.Equal(s.T(), monitor.EventCSRFFailure, s.events.events[0].Type)
}

func (s *GatewaySuite) TestMissingCSRFTokenIs403() {
	s.csrf.err = dErrors.New(dErrors.CodeCSRFTokenRequired, "token required")

	rec := s.do(http.MethodPost, DefaultRoute("/api/bills"), nil)

	assert.Equal(s.T(), http.StatusForbidden, rec.Code)
	assert.Equal(s.T(), "token required", errorBody(s.T(), rec))
}

func (s *GatewaySuite) TestReadMethodsBypassCSRF() {
	s.csrf.err = dErrors.New(dErrors.CodeCSRFTokenRequired, "token required")

	rec := s.do(http.MethodGet, DefaultRoute("/api/bills"), nil)

	assert.Equal(s.T(), http.StatusNoContent, rec.Code)
	assert.Empty(s.T(), s.csrf.tokens)
}

func (s *GatewaySuite) TestCSRFTokenReadFromHeader() {
	rec := s.do(http.MethodPost, DefaultRoute("/api/bills"), map[string]string{"x-csrf-token": "the-token"})

	assert.Equal(s.T(), http.StatusNoContent, rec.Code)
	assert.Equal(s.T(), []string{"the-token"}, s.csrf.tokens)
}

// --- stage 5: dispatch ---

func (s *GatewaySuite) TestHandlerReceivesSubject() {
	rec := s.do(http.MethodGet, DefaultRoute("/api/bills"), nil)

	assert.Equal(s.T(), http.StatusNoContent, rec.Code)
	assert.Equal(s.T(), []string{"user-1"}, s.subjects)
}

func (s *GatewaySuite) TestHandlerPanicIsOpaque500() {
	req := httptest.NewRequest(http.MethodGet, "http://example.test/api/bills", nil)
	rec := httptest.NewRecorder()

	panicking := func(http.ResponseWriter, *http.Request, string) {
		panic("sensitive internal detail")
	}
	s.gateway.Protect(DefaultRoute("/api/bills"), panicking)(rec, req)

	assert.Equal(s.T(), http.StatusInternalServerError, rec.Code)
	assert.Equal(s.T(), "internal server error", errorBody(s.T(), rec))
	assert.NotContains(s.T(), rec.Body.String(), "sensitive")
}

func TestGatewaySuite(t *testing.T) {
	suite.Run(t, new(GatewaySuite))
}

func TestNewRequiresCollaborators(t *testing.T) {
	auth := &fakeAuthenticator{}
	limiter := &fakeLimiter{}
	csrf := &fakeCSRF{}
	events := &fakeSecurityLog{}

	_, err := New(nil, limiter, csrf, events)
	assert.Error(t, err)
	_, err = New(auth, nil, csrf, events)
	assert.Error(t, err)
	_, err = New(auth, limiter, nil, events)
	assert.Error(t, err)
	_, err = New(auth, limiter, csrf, nil)
	assert.Error(t, err)
}
