// Command server wires the security gateway and its collaborators into an
// HTTP service. Business logic lives in internal packages; main only owns
// composition and lifecycle.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"hearth/internal/auth"
	"hearth/internal/auth/apikey"
	"hearth/internal/auth/jwtauth"
	"hearth/internal/csrf"
	"hearth/internal/gateway"
	gatewayMetrics "hearth/internal/gateway/metrics"
	"hearth/internal/gateway/tracer"
	"hearth/internal/monitor"
	monitorMetrics "hearth/internal/monitor/metrics"
	"hearth/internal/platform/config"
	"hearth/internal/platform/database"
	"hearth/internal/platform/httpserver"
	"hearth/internal/platform/logger"
	"hearth/internal/platform/middleware/metadata"
	"hearth/internal/platform/redis"
	"hearth/internal/ratelimit/checker"
	rlConfig "hearth/internal/ratelimit/config"
	rlMetrics "hearth/internal/ratelimit/metrics"
	"hearth/internal/ratelimit/store/counter"
	"hearth/internal/ratelimit/workers/cleanup"
	httptransport "hearth/internal/transport/http"
	"hearth/pkg/secrets"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	log.Info("initializing hearth gateway",
		"addr", cfg.Addr,
		"counter_backend", cfg.CounterBackend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Counter store backend.
	store, pruning, closeStore, err := buildCounterStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("counter store: %w", err)
	}
	defer closeStore()

	// Rate limiter.
	limits := rlConfig.DefaultConfig()
	if err := limits.ApplyEnvOverrides(); err != nil {
		return fmt.Errorf("rate limit config: %w", err)
	}
	limiterMetrics := rlMetrics.New()
	limiter, err := checker.New(store, limits,
		checker.WithLogger(log),
		checker.WithMetrics(limiterMetrics),
		checker.WithStoreTimeout(cfg.StoreTimeout),
	)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	// CSRF token service. An ephemeral secret keeps development working but
	// invalidates outstanding tokens on restart.
	csrfSecret := cfg.CSRFSecret
	if csrfSecret == "" {
		csrfSecret, err = secrets.Generate()
		if err != nil {
			return fmt.Errorf("csrf secret: %w", err)
		}
		log.Warn("HEARTH_CSRF_SECRET not set, generated an ephemeral secret")
	}
	csrfService, err := csrf.New(csrfSecret)
	if err != nil {
		return fmt.Errorf("csrf service: %w", err)
	}

	// Security monitor.
	securityMonitor := monitor.New(
		monitor.WithLogger(log),
		monitor.WithMetrics(monitorMetrics.New()),
	)

	// Authentication.
	authService, err := buildAuthenticator(cfg, log)
	if err != nil {
		return fmt.Errorf("authenticator: %w", err)
	}

	// Gateway.
	gw, err := gateway.New(authService, limiter, csrfService, securityMonitor,
		gateway.WithLogger(log),
		gateway.WithMetrics(gatewayMetrics.New()),
		gateway.WithTracer(tracer.NewOTel()),
	)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Gateway:   gw,
		Security:  httptransport.NewSecurityHandler(csrfService, securityMonitor),
		Household: httptransport.NewHouseholdHandler(),
		Metadata: metadata.NewMiddleware(&metadata.Config{
			TrustedProxies: metadata.ParseTrustedProxies(cfg.TrustedProxies),
		}),
		Logger:         log,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := httpserver.New(cfg.Addr, router)

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if pruning != nil {
		worker := cleanup.New(pruning,
			cleanup.WithLogger(log),
			cleanup.WithMetrics(limiterMetrics),
		)
		group.Go(func() error {
			if err := worker.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("counter cleanup: %w", err)
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}

	log.Info("server stopped")
	return nil
}

// buildAuthenticator wires bearer token authentication, fronted by API key
// authentication when service credentials are provisioned via HEARTH_API_KEYS.
func buildAuthenticator(cfg config.Server, log *slog.Logger) (gateway.Authenticator, error) {
	jwtService, err := jwtauth.New(cfg.JWTSigningKey, "hearth", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("jwt auth: %w", err)
	}
	if cfg.APIKeys == "" {
		return jwtService, nil
	}

	keys, err := config.ParseAPIKeys(cfg.APIKeys)
	if err != nil {
		return nil, fmt.Errorf("api keys: %w", err)
	}
	apiKeys := apikey.New()
	for _, key := range keys {
		if err := apiKeys.Register(key.KeyID, key.SubjectID, key.Secret); err != nil {
			return nil, fmt.Errorf("register api key %q: %w", key.KeyID, err)
		}
	}
	log.Info("api key authentication enabled", "keys", len(keys))

	fallback, err := auth.NewFallback(apiKeys, jwtService)
	if err != nil {
		return nil, err
	}
	return fallback, nil
}

const poolStatsInterval = 15 * time.Second

// buildCounterStore selects the counter store backend. Redis expires counter
// keys itself, so only the memory and postgres backends return a pruning
// store for the cleanup worker. Pool stat collectors run until ctx is
// cancelled.
func buildCounterStore(ctx context.Context, cfg config.Server) (counter.Store, cleanup.PruningStore, func(), error) {
	noop := func() {}

	switch cfg.CounterBackend {
	case "memory":
		store := counter.NewInMemoryStore()
		return store, store, noop, nil

	case "postgres":
		dbCfg := database.DefaultConfig()
		dbCfg.URL = cfg.DatabaseURL
		dbCfg.ApplyEnvOverrides()
		pool, err := database.New(dbCfg)
		if err != nil {
			return nil, nil, noop, err
		}
		if pool == nil {
			return nil, nil, noop, errors.New("postgres backend requires HEARTH_DATABASE_URL")
		}
		go database.CollectPoolStatsEvery(ctx, pool, poolStatsInterval)
		store := counter.NewPostgres(pool.DB())
		return store, store, func() { _ = pool.Close() }, nil

	case "redis":
		client, err := redis.New(cfg.RedisAddr)
		if err != nil {
			return nil, nil, noop, err
		}
		if client == nil {
			return nil, nil, noop, errors.New("redis backend requires HEARTH_REDIS_ADDR")
		}
		go redis.CollectPoolStatsEvery(ctx, client, poolStatsInterval)
		return counter.NewRedis(client), nil, func() { _ = client.Close() }, nil

	default:
		return nil, nil, noop, fmt.Errorf("unknown counter backend %q", cfg.CounterBackend)
	}
}
