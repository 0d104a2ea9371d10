// Package gateway implements the request-level security pipeline every
// protected endpoint passes through: method validation, authentication,
// rate limiting, CSRF validation, then handler dispatch. The pipeline is
// terminal at the first failing stage.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"hearth/internal/gateway/tracer"
	"hearth/internal/monitor"
	"hearth/internal/platform/middleware/metadata"
	"hearth/internal/ratelimit/models"
	"hearth/internal/transport/httputil"
	dErrors "hearth/pkg/domain-errors"
)

// CSRFHeader is the request header clients echo issued tokens back through.
// Header lookup is case-insensitive per net/http.
const CSRFHeader = "X-CSRF-Token"

// Authenticator resolves a request to a stable subject identifier.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// RateLimiter applies a fixed-window quota per subject and endpoint.
type RateLimiter interface {
	Check(ctx context.Context, subjectID, endpoint string) (*models.RateLimitResult, error)
}

// CSRFValidator checks an anti-forgery token against the caller's subject.
type CSRFValidator interface {
	Validate(token, subjectID string) error
}

// SecurityLog receives security events. Fire-and-forget.
type SecurityLog interface {
	LogEvent(ctx context.Context, event monitor.Event)
}

// Metrics is the subset of the prometheus wrapper the gateway needs.
type Metrics interface {
	ObserveRequest(route, outcome string, duration time.Duration)
}

// Handler is a protected endpoint handler. subjectID is the authenticated
// identity, or the client IP on routes that do not require authentication.
type Handler func(w http.ResponseWriter, r *http.Request, subjectID string)

// Outcome labels for metrics.
const (
	outcomeOK             = "ok"
	outcomeMethodRejected = "method_rejected"
	outcomeUnauthorized   = "unauthorized"
	outcomeRateLimited    = "rate_limited"
	outcomeCSRFRejected   = "csrf_rejected"
	outcomeHandlerPanic   = "handler_panic"
)

// Gateway sequences the protection stages around wrapped handlers. All
// collaborators are injected; the gateway holds no per-request state.
type Gateway struct {
	auth    Authenticator
	limiter RateLimiter
	csrf    CSRFValidator
	events  SecurityLog
	logger  *slog.Logger
	metrics Metrics
	tracer  tracer.Tracer
}

type Option func(*Gateway)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

func WithMetrics(m Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(g *Gateway) {
		g.tracer = t
	}
}

func New(auth Authenticator, limiter RateLimiter, csrf CSRFValidator, events SecurityLog, opts ...Option) (*Gateway, error) {
	if auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if csrf == nil {
		return nil, fmt.Errorf("csrf validator is required")
	}
	if events == nil {
		return nil, fmt.Errorf("security log is required")
	}

	g := &Gateway{
		auth:    auth,
		limiter: limiter,
		csrf:    csrf,
		events:  events,
		logger:  slog.Default(),
		tracer:  tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Protect wraps handler with the five-stage pipeline configured by route.
func (g *Gateway) Protect(route RouteConfig, handler Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := g.tracer.Start(r.Context(), tracer.SpanProtect,
			tracer.String(tracer.AttrRoute, route.Name),
			tracer.String(tracer.AttrMethod, r.Method),
		)
		r = r.WithContext(ctx)

		outcome := g.protect(w, r, route, handler, span)
		span.End(nil)

		if g.metrics != nil {
			g.metrics.ObserveRequest(route.Name, outcome, time.Since(start))
		}
	}
}

// protect runs the pipeline and returns the outcome label for metrics.
func (g *Gateway) protect(w http.ResponseWriter, r *http.Request, route RouteConfig, handler Handler, span tracer.Span) string {
	ctx := r.Context()

	// Stage 1: method check.
	if !route.methodAllowed(r.Method) {
		span.AddEvent(tracer.EventMethodRejected)
		httputil.WriteError(w, dErrors.New(dErrors.CodeMethodNotAllowed, "method not allowed"))
		return outcomeMethodRejected
	}

	// Stage 2: authentication. Unauthenticated routes fall back to the
	// client IP as the rate limit subject.
	subjectID := metadata.ClientIP(ctx)
	if route.RequireAuth {
		id, err := g.auth.Authenticate(r)
		if err != nil {
			span.AddEvent(tracer.EventAuthRejected)
			g.logSecurityEvent(ctx, r, route, monitor.EventUnauthorizedAccess, monitor.SeverityMedium, "", map[string]any{
				"reason": err.Error(),
			})
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
			return outcomeUnauthorized
		}
		subjectID = id
	}
	span.SetAttributes(tracer.String(tracer.AttrSubject, subjectID))

	// Stage 3: rate limit. Store failures are resolved inside the limiter
	// by failing open; an error here means bad input and is not the
	// client's fault, so the request proceeds.
	if route.RateLimit {
		result, err := g.limiter.Check(ctx, subjectID, route.Name)
		if err != nil {
			g.logger.WarnContext(ctx, "rate limit check failed, allowing request",
				"error", err,
				"route", route.Name,
			)
		} else {
			span.SetAttributes(
				tracer.String(tracer.AttrClass, result.Class.String()),
				tracer.Int64(tracer.AttrRemaining, int64(result.Remaining)),
			)
			writeRateLimitHeaders(w, result)
			if !result.Allowed {
				span.AddEvent(tracer.EventRateLimitRejected)
				g.logSecurityEvent(ctx, r, route, monitor.EventRateLimitExceeded, monitor.SeverityMedium, subjectID, map[string]any{
					"class":       result.Class.String(),
					"limit":       result.Limit,
					"retry_after": result.RetryAfter,
				})
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "rate limit exceeded"))
				return outcomeRateLimited
			}
		}
	}

	// Stage 4: CSRF. Only state-changing methods require a token.
	if route.RequireCSRF && stateChangingMethods[r.Method] {
		if err := g.csrf.Validate(r.Header.Get(CSRFHeader), subjectID); err != nil {
			span.AddEvent(tracer.EventCSRFRejected)
			g.logSecurityEvent(ctx, r, route, monitor.EventCSRFFailure, monitor.SeverityMedium, subjectID, map[string]any{
				"reason": err.Error(),
			})
			httputil.WriteError(w, err)
			return outcomeCSRFRejected
		}
	}

	// Stage 5: dispatch. Handler panics become an opaque 500; internal
	// detail never reaches the client.
	span.AddEvent(tracer.EventDispatched)
	if ok := g.dispatch(w, r, route, handler, subjectID); !ok {
		return outcomeHandlerPanic
	}
	return outcomeOK
}

func (g *Gateway) dispatch(w http.ResponseWriter, r *http.Request, route RouteConfig, handler Handler, subjectID string) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
			g.logger.ErrorContext(r.Context(), "handler panic",
				"panic", rec,
				"route", route.Name,
				"method", r.Method,
				"subject_id", subjectID,
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "internal server error"))
		}
	}()

	handler(w, r, subjectID)
	return true
}

func (g *Gateway) logSecurityEvent(ctx context.Context, r *http.Request, route RouteConfig, eventType monitor.EventType, severity monitor.Severity, subjectID string, details map[string]any) {
	g.events.LogEvent(ctx, monitor.Event{
		Type:      eventType,
		SubjectID: subjectID,
		SourceIP:  metadata.ClientIP(ctx),
		UserAgent: metadata.UserAgent(ctx),
		Endpoint:  route.Name,
		Severity:  severity,
		Details:   details,
	})
}

func writeRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if !result.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	}
}
