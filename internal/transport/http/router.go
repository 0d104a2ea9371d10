// Package httptransport is the thin HTTP layer. Handlers delegate to domain
// services; routing and middleware wiring live here so transport concerns
// stay isolated.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hearth/internal/gateway"
	"hearth/internal/platform/middleware"
	"hearth/internal/platform/middleware/metadata"
	"hearth/internal/transport/httputil"
)

// householdKinds are the resource kinds served under /api. Each maps onto a
// rate limit class of the same name.
var householdKinds = []string{"bills", "chores", "shopping", "meal-planner"}

// RouterConfig carries the collaborators the router wires together.
type RouterConfig struct {
	Gateway        *gateway.Gateway
	Security       *SecurityHandler
	Household      *HouseholdHandler
	Metadata       *metadata.Middleware
	Logger         *slog.Logger
	RequestTimeout time.Duration
}

// NewRouter wires all endpoints with the middleware stack and the security
// gateway.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Timeout(timeout))
	r.Use(cfg.Metadata.Handler)

	// Operational endpoints bypass the gateway.
	r.Get("/healthz", handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	gw := cfg.Gateway

	// Token issuance: authenticated, read-only, no CSRF (the token is what
	// the client is here to fetch).
	r.Get("/security/csrf-token", gw.Protect(gateway.ReadOnlyRoute("/security/csrf-token"), cfg.Security.HandleCSRFToken))

	// Admin read side of the security monitor.
	r.Get("/security/events", gw.Protect(gateway.AdminRoute("/security/events"), cfg.Security.HandleEvents))
	r.Get("/security/metrics", gw.Protect(gateway.AdminRoute("/security/metrics"), cfg.Security.HandleMetrics))

	// Household resources. Route names double as rate limit class keys.
	for _, kind := range householdKinds {
		name := "/api/" + kind
		r.Get(name, gw.Protect(gateway.DefaultRoute(name), cfg.Household.HandleList(kind)))
		r.Post(name, gw.Protect(gateway.DefaultRoute(name), cfg.Household.HandleCreate(kind)))
	}
	r.Get("/api/analytics", gw.Protect(gateway.ReadOnlyRoute("/api/analytics"), cfg.Household.HandleAnalytics(householdKinds)))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
