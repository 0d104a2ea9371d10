package monitor

import (
	"log/slog"
	"time"
)

type EventType string

const (
	EventRateLimitExceeded     EventType = "rate_limit_exceeded"
	EventCSRFFailure           EventType = "csrf_failure"
	EventUnauthorizedAccess    EventType = "unauthorized_access"
	EventSuspiciousActivity    EventType = "suspicious_activity"
	EventAuthenticationFailure EventType = "authentication_failure"
)

func (t EventType) IsValid() bool {
	switch t {
	case EventRateLimitExceeded, EventCSRFFailure, EventUnauthorizedAccess,
		EventSuspiciousActivity, EventAuthenticationFailure:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// LogLevel maps event severity to the structured log level used for the
// side-channel emit.
func (s Severity) LogLevel() slog.Level {
	switch s {
	case SeverityCritical:
		return slog.LevelError
	case SeverityHigh, SeverityMedium:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// Event is one security occurrence. Events live only in the monitor's bounded
// buffer; persistence and shipping are external concerns.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	SubjectID string         `json:"subject_id,omitempty"`
	SourceIP  string         `json:"source_ip,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Endpoint  string         `json:"endpoint,omitempty"`
	Severity  Severity       `json:"severity"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// SecurityMetrics is an aggregate snapshot of the event buffer.
type SecurityMetrics struct {
	TotalEvents int               `json:"total_events"`
	ByType      map[EventType]int `json:"by_type"`
	BySeverity  map[Severity]int  `json:"by_severity"`
	LastHour    int               `json:"last_hour"`
}
