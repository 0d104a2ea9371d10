package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RateLimitChecksTotal   *prometheus.CounterVec
	RateLimitFailOpenTotal prometheus.Counter
	RateLimitPrunedTotal   prometheus.Counter
	CleanupRunsTotal       *prometheus.CounterVec
	CleanupDurationSeconds prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		RateLimitChecksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hearth_ratelimit_checks_total",
			Help: "Total number of rate limit checks by endpoint class and outcome",
		}, []string{"class", "outcome"}),
		RateLimitFailOpenTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hearth_ratelimit_fail_open_total",
			Help: "Total number of checks allowed because the counter store was unavailable",
		}),
		RateLimitPrunedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hearth_ratelimit_counters_pruned_total",
			Help: "Total number of expired counters removed by the cleanup worker",
		}),
		CleanupRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hearth_ratelimit_cleanup_runs_total",
			Help: "Total number of cleanup runs",
		}, []string{"status"}),
		CleanupDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "hearth_ratelimit_cleanup_duration_seconds",
			Help: "Duration of cleanup runs in seconds",
		}),
	}
}

func (m *Metrics) ObserveCheck(class string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}
	m.RateLimitChecksTotal.WithLabelValues(class, outcome).Inc()
}

func (m *Metrics) IncrementFailOpen() {
	m.RateLimitFailOpenTotal.Inc()
}

func (m *Metrics) IncrementPruned(count int) {
	m.RateLimitPrunedTotal.Add(float64(count))
}

func (m *Metrics) IncrementCleanupRuns(status string) {
	m.CleanupRunsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveCleanupDuration(durationSeconds float64) {
	m.CleanupDurationSeconds.Observe(durationSeconds)
}
