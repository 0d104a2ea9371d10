package cleanup

import (
	"context"
	"log/slog"
	"time"

	"hearth/internal/ratelimit/metrics"
)

// PruningStore is implemented by counter stores that support dropping expired
// windows. Counter cleanup is an external concern; the rate limiter itself
// never deletes counters.
type PruningStore interface {
	Prune(ctx context.Context, now time.Time) (int, error)
}

type Option func(*CounterCleanupService)

func WithLogger(logger *slog.Logger) Option {
	return func(s *CounterCleanupService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(s *CounterCleanupService) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *CounterCleanupService) {
		s.metrics = m
	}
}

// CounterCleanupService periodically prunes expired rate limit counters.
type CounterCleanupService struct {
	store    PruningStore
	logger   *slog.Logger
	interval time.Duration
	metrics  *metrics.Metrics
}

func New(store PruningStore, opts ...Option) *CounterCleanupService {
	service := &CounterCleanupService{
		store:    store,
		logger:   slog.Default(),
		interval: 15 * time.Minute,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Start blocks until ctx is done, pruning on every tick.
func (s *CounterCleanupService) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce performs a single pruning pass.
func (s *CounterCleanupService) RunOnce(ctx context.Context) int {
	startTime := time.Now()
	pruned, err := s.store.Prune(ctx, startTime)
	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error("rate_limit_counter_cleanup_failed",
			"error", err,
			"duration_ms", duration.Milliseconds(),
		)
		if s.metrics != nil {
			s.metrics.IncrementCleanupRuns("error")
			s.metrics.ObserveCleanupDuration(duration.Seconds())
		}
		return 0
	}

	s.logger.Info("rate_limit_counter_cleanup",
		"pruned", pruned,
		"duration_ms", duration.Milliseconds(),
	)
	if s.metrics != nil {
		s.metrics.IncrementPruned(pruned)
		s.metrics.IncrementCleanupRuns("success")
		s.metrics.ObserveCleanupDuration(duration.Seconds())
	}
	return pruned
}
