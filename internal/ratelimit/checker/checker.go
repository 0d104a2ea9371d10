package checker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hearth/internal/ratelimit/config"
	"hearth/internal/ratelimit/models"
	"hearth/internal/ratelimit/store/counter"
	dErrors "hearth/pkg/domain-errors"
)

//go:generate mockgen -source=../store/counter/store.go -destination=mocks/store_mock.go -package=mocks Store

// Metrics is the subset of the prometheus wrapper the checker needs.
type Metrics interface {
	ObserveCheck(class string, allowed bool)
	IncrementFailOpen()
}

// Service performs fixed-window rate limit checks against a shared counter store.
//
// Availability of the protected API takes priority over strict quota
// enforcement: any store error or timeout fails OPEN with a warning log.
type Service struct {
	store   counter.Store
	config  *config.Config
	logger  *slog.Logger
	metrics Metrics
	timeout time.Duration
	now     func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithStoreTimeout bounds each counter store round-trip. Timeouts count as
// store errors and fail open.
func WithStoreTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(store counter.Store, cfg *config.Config, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("counter store is required")
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	svc := &Service{
		store:   store,
		config:  cfg,
		timeout: 500 * time.Millisecond,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Check resolves the endpoint's class and applies the fixed-window algorithm:
// look up the counter for (subject, endpoint, window start); at or over the
// limit the request is rejected, otherwise the counter is atomically
// incremented. Exactly MaxRequests requests succeed per window.
func (s *Service) Check(ctx context.Context, subjectID, endpoint string) (*models.RateLimitResult, error) {
	class, limit := s.config.Resolve(endpoint)

	now := s.now()
	windowStart := models.WindowStart(now, limit.Window)
	key, err := models.NewCounterKey(subjectID, endpoint, windowStart)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid rate limit key")
	}

	resetAt := windowStart.Add(limit.Window)

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	count, err := s.store.Get(cctx, key)
	if err != nil {
		return s.failOpen(ctx, subjectID, class, limit, resetAt, err), nil
	}

	if count >= limit.MaxRequests {
		result := &models.RateLimitResult{
			Allowed:    false,
			Class:      class,
			Limit:      limit.MaxRequests,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retryAfterSeconds(resetAt, now),
		}
		if s.metrics != nil {
			s.metrics.ObserveCheck(class.String(), false)
		}
		return result, nil
	}

	newCount, err := s.store.Increment(cctx, key, limit.Window)
	if err != nil {
		return s.failOpen(ctx, subjectID, class, limit, resetAt, err), nil
	}

	remaining := limit.MaxRequests - newCount
	if remaining < 0 {
		remaining = 0
	}

	if s.metrics != nil {
		s.metrics.ObserveCheck(class.String(), true)
	}
	return &models.RateLimitResult{
		Allowed:   true,
		Class:     class,
		Limit:     limit.MaxRequests,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// failOpen returns an allowed result when the counter store is unreachable.
func (s *Service) failOpen(ctx context.Context, subjectID string, class models.EndpointClass, limit config.Limit, resetAt time.Time, cause error) *models.RateLimitResult {
	if s.logger != nil {
		s.logger.WarnContext(ctx, "rate limit store unavailable, failing open",
			"error", cause,
			"subject_id", subjectID,
			"endpoint_class", class,
		)
	}
	if s.metrics != nil {
		s.metrics.IncrementFailOpen()
	}
	return &models.RateLimitResult{
		Allowed:   true,
		Class:     class,
		Limit:     limit.MaxRequests,
		Remaining: limit.MaxRequests,
		ResetAt:   resetAt,
	}
}

func retryAfterSeconds(resetAt, now time.Time) int {
	seconds := int(resetAt.Sub(now).Seconds())
	if seconds < 1 {
		return 1
	}
	return seconds
}
