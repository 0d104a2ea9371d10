package gateway

import "net/http"

// RouteConfig describes how the gateway protects a single route. The same
// pipeline runs for every route; configuration only toggles stages on or off.
type RouteConfig struct {
	// Name identifies the route for rate limit class resolution, logging,
	// and metrics. Typically the route path, e.g. "/api/bills".
	Name string

	// AllowedMethods is the set of HTTP methods the route accepts.
	AllowedMethods []string

	// RequireAuth gates the authentication stage.
	RequireAuth bool

	// RequireCSRF gates token validation on state-changing methods.
	RequireCSRF bool

	// RateLimit gates the rate limiting stage.
	RateLimit bool
}

// DefaultRoute protects a standard API route: authenticated, CSRF-checked on
// writes, rate limited, all common methods allowed.
func DefaultRoute(name string) RouteConfig {
	return RouteConfig{
		Name:           name,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		RequireAuth:    true,
		RequireCSRF:    true,
		RateLimit:      true,
	}
}

// ReadOnlyRoute requires authentication but no CSRF token and accepts only GET.
func ReadOnlyRoute(name string) RouteConfig {
	return RouteConfig{
		Name:           name,
		AllowedMethods: []string{http.MethodGet},
		RequireAuth:    true,
		RequireCSRF:    false,
		RateLimit:      true,
	}
}

// PublicRoute requires neither identity nor a CSRF token. Rate limiting still
// applies, keyed by client IP instead of subject.
func PublicRoute(name string) RouteConfig {
	return RouteConfig{
		Name:           name,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		RequireAuth:    false,
		RequireCSRF:    false,
		RateLimit:      true,
	}
}

// AdminRoute requires authentication and CSRF on writes, with all methods
// allowed.
func AdminRoute(name string) RouteConfig {
	return RouteConfig{
		Name:           name,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		RequireAuth:    true,
		RequireCSRF:    true,
		RateLimit:      true,
	}
}

func (c RouteConfig) methodAllowed(method string) bool {
	for _, m := range c.AllowedMethods {
		if m == method {
			return true
		}
	}
	return false
}

// stateChangingMethods are the methods that require a CSRF token when the
// route enables validation. Read-only methods bypass it entirely.
var stateChangingMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}
