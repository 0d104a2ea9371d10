package httptransport

import (
	"net/http"
	"strconv"
	"time"

	"hearth/internal/csrf"
	"hearth/internal/monitor"
	"hearth/internal/transport/httputil"
	dErrors "hearth/pkg/domain-errors"
)

// TokenIssuer issues anti-forgery tokens bound to a subject.
type TokenIssuer interface {
	Generate(subjectID string) (*csrf.Token, error)
}

// EventStore exposes the security monitor's read side.
type EventStore interface {
	RecentEvents(limit int) []monitor.Event
	EventsByType(eventType monitor.EventType, limit int) []monitor.Event
	EventsBySeverity(severity monitor.Severity, limit int) []monitor.Event
	Metrics() monitor.SecurityMetrics
}

// SecurityHandler serves token issuance and the admin-facing security read
// endpoints. It delegates to domain services; no business logic lives here.
type SecurityHandler struct {
	tokens TokenIssuer
	events EventStore
}

func NewSecurityHandler(tokens TokenIssuer, events EventStore) *SecurityHandler {
	return &SecurityHandler{
		tokens: tokens,
		events: events,
	}
}

// HandleCSRFToken issues a token bound to the authenticated subject.
// Response: {"csrfToken": "...", "expiresAt": "<ISO-8601>"}.
func (h *SecurityHandler) HandleCSRFToken(w http.ResponseWriter, r *http.Request, subjectID string) {
	token, err := h.tokens.Generate(subjectID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"csrfToken": token.Value,
		"expiresAt": token.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// HandleEvents lists buffered security events, most recent first. Optional
// query parameters: type, severity (mutually exclusive), limit.
func (h *SecurityHandler) HandleEvents(w http.ResponseWriter, r *http.Request, _ string) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	typeFilter := r.URL.Query().Get("type")
	severityFilter := r.URL.Query().Get("severity")
	if typeFilter != "" && severityFilter != "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "type and severity filters are mutually exclusive"))
		return
	}

	var events []monitor.Event
	switch {
	case typeFilter != "":
		eventType := monitor.EventType(typeFilter)
		if !eventType.IsValid() {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "unknown event type"))
			return
		}
		events = h.events.EventsByType(eventType, limit)
	case severityFilter != "":
		severity := monitor.Severity(severityFilter)
		if !severity.IsValid() {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "unknown severity"))
			return
		}
		events = h.events.EventsBySeverity(severity, limit)
	default:
		events = h.events.RecentEvents(limit)
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// HandleMetrics returns aggregate event counts by type and severity.
func (h *SecurityHandler) HandleMetrics(w http.ResponseWriter, r *http.Request, _ string) {
	httputil.WriteJSON(w, http.StatusOK, h.events.Metrics())
}

const defaultEventLimit = 100

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultEventLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "limit must be a positive integer")
	}
	return limit, nil
}
