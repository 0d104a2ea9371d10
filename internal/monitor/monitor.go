// Package monitor keeps an append-only, capacity-bounded security event log
// with real-time pattern escalation.
package monitor

import (
	"context"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"
)

// DefaultCapacity bounds the event buffer; at capacity the oldest entry is
// evicted first.
const DefaultCapacity = 1000

// Pattern detection thresholds over the trailing detection window.
const (
	detectionWindow       = 5 * time.Minute
	rapidFireThreshold    = 20
	csrfFailureThreshold  = 5
	unauthorizedThreshold = 10
	patternRapidFire      = "rapid_fire_requests"
	patternCSRFFailures   = "multiple_csrf_failures"
	patternUnauthorized   = "multiple_unauthorized_attempts"
)

// Metrics is the subset of the prometheus wrapper the monitor needs.
type Metrics interface {
	ObserveEvent(eventType, severity string)
}

// Monitor serializes concurrent appends with a single mutex so FIFO eviction
// and the capacity invariant hold under parallel LogEvent calls.
type Monitor struct {
	logger   *slog.Logger
	metrics  Metrics
	capacity int
	now      func() time.Time

	mu     sync.Mutex
	events []Event // ring buffer
	start  int
	size   int
}

type Option func(*Monitor)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

func WithMetrics(metrics Metrics) Option {
	return func(m *Monitor) {
		m.metrics = metrics
	}
}

// WithCapacity overrides the buffer capacity (tests only).
func WithCapacity(capacity int) Option {
	return func(m *Monitor) {
		if capacity > 0 {
			m.capacity = capacity
		}
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

func New(opts ...Option) *Monitor {
	m := &Monitor{
		capacity: DefaultCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.events = make([]Event, m.capacity)
	return m
}

// LogEvent ingests an event, then runs pattern detection exactly once.
// Derived events are appended directly without re-triggering detection, so
// escalation is exactly one level deep. Fire-and-forget: it never fails.
func (m *Monitor) LogEvent(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = m.now()
	}
	if event.Severity == "" {
		event.Severity = SeverityLow
	}
	enrichUserAgent(&event)

	m.mu.Lock()
	m.append(event)
	derived := m.detect(event)
	for _, d := range derived {
		m.append(d)
	}
	m.mu.Unlock()

	m.emit(ctx, event)
	for _, d := range derived {
		m.emit(ctx, d)
	}
}

// append adds an event to the ring, evicting the oldest entry at capacity.
// Callers must hold the lock.
func (m *Monitor) append(event Event) {
	if m.size < m.capacity {
		m.events[(m.start+m.size)%m.capacity] = event
		m.size++
		return
	}
	m.events[m.start] = event
	m.start = (m.start + 1) % m.capacity
}

// detect inspects the trailing detection window for escalation patterns
// around the just-ingested primary event. Derived suspicious_activity events
// never re-enter detection. Callers must hold the lock.
func (m *Monitor) detect(primary Event) []Event {
	if primary.Type == EventSuspiciousActivity || primary.SourceIP == "" {
		return nil
	}

	cutoff := primary.Timestamp.Add(-detectionWindow)
	var total, csrfFailures, unauthorized int
	for i := 0; i < m.size; i++ {
		e := m.events[(m.start+i)%m.capacity]
		if e.SourceIP != primary.SourceIP || e.Timestamp.Before(cutoff) {
			continue
		}
		total++
		switch e.Type {
		case EventCSRFFailure:
			csrfFailures++
		case EventUnauthorizedAccess:
			unauthorized++
		}
	}

	var derived []Event
	if total > rapidFireThreshold {
		derived = append(derived, m.escalation(primary, SeverityHigh, patternRapidFire, total))
	}
	if csrfFailures > csrfFailureThreshold {
		derived = append(derived, m.escalation(primary, SeverityHigh, patternCSRFFailures, csrfFailures))
	}
	if unauthorized > unauthorizedThreshold {
		derived = append(derived, m.escalation(primary, SeverityCritical, patternUnauthorized, unauthorized))
	}
	return derived
}

func (m *Monitor) escalation(primary Event, severity Severity, pattern string, count int) Event {
	return Event{
		ID:       uuid.NewString(),
		Type:     EventSuspiciousActivity,
		SourceIP: primary.SourceIP,
		Severity: severity,
		Details: map[string]any{
			"pattern":     pattern,
			"event_count": count,
			"window":      detectionWindow.String(),
		},
		Timestamp: primary.Timestamp,
	}
}

// emit writes the event to the structured log sink at a severity-derived
// level and bumps metrics.
func (m *Monitor) emit(ctx context.Context, event Event) {
	if m.logger != nil {
		m.logger.LogAttrs(ctx, event.Severity.LogLevel(), "security event",
			slog.String("event_id", event.ID),
			slog.String("type", string(event.Type)),
			slog.String("severity", string(event.Severity)),
			slog.String("subject_id", event.SubjectID),
			slog.String("source_ip", event.SourceIP),
			slog.String("endpoint", event.Endpoint),
			slog.Any("details", event.Details),
		)
	}
	if m.metrics != nil {
		m.metrics.ObserveEvent(string(event.Type), string(event.Severity))
	}
}

// RecentEvents returns up to limit events, most recent first.
// A non-positive limit returns the whole buffer.
func (m *Monitor) RecentEvents(limit int) []Event {
	return m.query(limit, func(Event) bool { return true })
}

// EventsByType returns up to limit events of the given type, most recent first.
func (m *Monitor) EventsByType(eventType EventType, limit int) []Event {
	return m.query(limit, func(e Event) bool { return e.Type == eventType })
}

// EventsBySeverity returns up to limit events of the given severity, most recent first.
func (m *Monitor) EventsBySeverity(severity Severity, limit int) []Event {
	return m.query(limit, func(e Event) bool { return e.Severity == severity })
}

func (m *Monitor) query(limit int, match func(Event) bool) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 || limit > m.size {
		limit = m.size
	}

	out := make([]Event, 0, limit)
	for i := m.size - 1; i >= 0 && len(out) < limit; i-- {
		e := m.events[(m.start+i)%m.capacity]
		if match(e) {
			// Detach the Details map so callers can't mutate buffered events.
			e.Details = maps.Clone(e.Details)
			out = append(out, e)
		}
	}
	return out
}

// Metrics returns aggregate counts by type and severity plus a rolling
// one-hour activity count over the buffered events.
func (m *Monitor) Metrics() SecurityMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := SecurityMetrics{
		TotalEvents: m.size,
		ByType:      make(map[EventType]int),
		BySeverity:  make(map[Severity]int),
	}

	hourAgo := m.now().Add(-time.Hour)
	for i := 0; i < m.size; i++ {
		e := m.events[(m.start+i)%m.capacity]
		metrics.ByType[e.Type]++
		metrics.BySeverity[e.Severity]++
		if e.Timestamp.After(hourAgo) {
			metrics.LastHour++
		}
	}
	return metrics
}

// enrichUserAgent parses the raw User-Agent into coarse browser/os/platform
// details for triage. Raw UA strings stay on the event untouched.
func enrichUserAgent(event *Event) {
	if event.UserAgent == "" {
		return
	}

	ua := useragent.New(event.UserAgent)
	browser, _ := ua.Browser()
	browser = strings.ToLower(strings.TrimSpace(browser))
	if browser == "" {
		browser = "unknown"
	}
	os := strings.ToLower(strings.TrimSpace(ua.OS()))
	if os == "" {
		os = "unknown"
	}
	platform := "desktop"
	if ua.Mobile() {
		platform = "mobile"
	} else if ua.Bot() {
		platform = "bot"
	}

	if event.Details == nil {
		event.Details = make(map[string]any)
	}
	event.Details["ua_browser"] = browser
	event.Details["ua_os"] = os
	event.Details["ua_platform"] = platform
}
