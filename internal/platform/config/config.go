package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string
	CSRFSecret     string
	JWTSigningKey  string
	CounterBackend string // "memory", "postgres" or "redis"
	DatabaseURL    string
	RedisAddr      string
	TrustedProxies []string
	APIKeys        string // raw HEARTH_API_KEYS value, see ParseAPIKeys
	StoreTimeout   time.Duration
	RequestTimeout time.Duration
}

// APIKey is a service credential provisioned through the environment.
type APIKey struct {
	KeyID     string
	SubjectID string
	Secret    string
}

// ParseAPIKeys parses HEARTH_API_KEYS: comma-separated
// "key_id:subject_id:secret" entries. A malformed entry is an error rather
// than a skip so a typo never silently drops a service credential.
func ParseAPIKeys(raw string) ([]APIKey, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var keys []APIKey
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return nil, fmt.Errorf("malformed api key entry %q, want key_id:subject_id:secret", entry)
		}
		keys = append(keys, APIKey{KeyID: parts[0], SubjectID: parts[1], Secret: parts[2]})
	}
	return keys, nil
}

// DefaultStoreTimeout bounds every counter store round-trip; a slow store must
// never hold a request hostage (timeouts are treated as store errors, fail open).
var DefaultStoreTimeout = 500 * time.Millisecond

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("HEARTH_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	backend := os.Getenv("HEARTH_COUNTER_BACKEND")
	if backend == "" {
		backend = "memory"
	}

	storeTimeout := DefaultStoreTimeout
	if raw := os.Getenv("HEARTH_STORE_TIMEOUT"); raw != "" {
		if duration, err := time.ParseDuration(raw); err == nil && duration > 0 {
			storeTimeout = duration
		}
	}

	requestTimeout := 30 * time.Second
	if raw := os.Getenv("HEARTH_REQUEST_TIMEOUT"); raw != "" {
		if duration, err := time.ParseDuration(raw); err == nil && duration > 0 {
			requestTimeout = duration
		}
	}

	var trustedProxies []string
	if raw := os.Getenv("HEARTH_TRUSTED_PROXIES"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				trustedProxies = append(trustedProxies, p)
			}
		}
	}

	jwtSigningKey := os.Getenv("HEARTH_JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:           addr,
		CSRFSecret:     os.Getenv("HEARTH_CSRF_SECRET"),
		JWTSigningKey:  jwtSigningKey,
		CounterBackend: backend,
		DatabaseURL:    os.Getenv("HEARTH_DATABASE_URL"),
		RedisAddr:      os.Getenv("HEARTH_REDIS_ADDR"),
		TrustedProxies: trustedProxies,
		APIKeys:        os.Getenv("HEARTH_API_KEYS"),
		StoreTimeout:   storeTimeout,
		RequestTimeout: requestTimeout,
	}
}
