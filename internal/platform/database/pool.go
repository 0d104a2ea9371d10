// Package database manages the pgx connection pool backing the postgres
// counter store.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dbPoolOpenConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hearth_db_pool_open_conns",
		Help: "Number of established connections, in use and idle",
	})
	dbPoolInUseConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hearth_db_pool_in_use_conns",
		Help: "Number of connections currently in use",
	})
	dbPoolIdleConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hearth_db_pool_idle_conns",
		Help: "Number of idle connections",
	})
	dbPoolWaitCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hearth_db_pool_wait_count",
		Help: "Total number of connections waited for",
	})
)

// Config sizes the connection pool for the counter store workload. Rate limit
// checks are short point queries, so the pool stays small and recycles
// connections aggressively.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

// ApplyEnvOverrides overlays HEARTH_DB_* environment variables on the config.
// Unset or unparseable values leave the defaults in place.
func (c *Config) ApplyEnvOverrides() {
	if raw := os.Getenv("HEARTH_DB_MAX_OPEN_CONNS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			c.MaxOpenConns = n
		}
	}
	if raw := os.Getenv("HEARTH_DB_MAX_IDLE_CONNS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			c.MaxIdleConns = n
		}
	}
	if raw := os.Getenv("HEARTH_DB_CONN_MAX_LIFETIME"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			c.ConnMaxLifetime = d
		}
	}
	if raw := os.Getenv("HEARTH_DB_CONN_MAX_IDLE_TIME"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			c.ConnMaxIdleTime = d
		}
	}
}

// Pool wraps the counter store's *sql.DB and its lifecycle.
type Pool struct {
	db  *sql.DB
	cfg Config
}

// New opens and pings a pgx stdlib pool sized per cfg.
// Returns nil if the URL is empty so the caller can fall back to other backends.
func New(cfg Config) (*Pool, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = DefaultConfig().PingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{db: db, cfg: cfg}, nil
}

// DB returns the underlying *sql.DB for query operations.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Health checks if the database is reachable.
func (p *Pool) Health(ctx context.Context) error {
	if p == nil || p.db == nil {
		return fmt.Errorf("database not configured")
	}
	return p.db.PingContext(ctx)
}

func (p *Pool) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Stats returns database connection pool statistics.
func (p *Pool) Stats() sql.DBStats {
	if p == nil || p.db == nil {
		return sql.DBStats{}
	}
	return p.db.Stats()
}

// CollectPoolStats copies pool statistics into prometheus gauges.
func CollectPoolStats(p *Pool) {
	if p == nil || p.db == nil {
		return
	}
	stats := p.db.Stats()
	dbPoolOpenConns.Set(float64(stats.OpenConnections))
	dbPoolInUseConns.Set(float64(stats.InUse))
	dbPoolIdleConns.Set(float64(stats.Idle))
	dbPoolWaitCount.Set(float64(stats.WaitCount))
}

// CollectPoolStatsEvery refreshes the pool gauges on the given interval
// until ctx is cancelled.
func CollectPoolStatsEvery(ctx context.Context, p *Pool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			CollectPoolStats(p)
		}
	}
}
