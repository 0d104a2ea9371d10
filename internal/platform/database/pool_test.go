package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReturnsNilWithoutURL(t *testing.T) {
	pool, err := New(Config{})
	require.NoError(t, err)
	assert.Nil(t, pool)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("HEARTH_DB_MAX_OPEN_CONNS", "50")
	t.Setenv("HEARTH_DB_MAX_IDLE_CONNS", "10")
	t.Setenv("HEARTH_DB_CONN_MAX_LIFETIME", "10m")
	t.Setenv("HEARTH_DB_CONN_MAX_IDLE_TIME", "2m")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, 50, cfg.MaxOpenConns)
	assert.Equal(t, 10, cfg.MaxIdleConns)
	assert.Equal(t, 10*time.Minute, cfg.ConnMaxLifetime)
	assert.Equal(t, 2*time.Minute, cfg.ConnMaxIdleTime)
}

func TestApplyEnvOverridesIgnoresGarbage(t *testing.T) {
	t.Setenv("HEARTH_DB_MAX_OPEN_CONNS", "lots")
	t.Setenv("HEARTH_DB_CONN_MAX_LIFETIME", "-5m")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, DefaultConfig().MaxOpenConns, cfg.MaxOpenConns)
	assert.Equal(t, DefaultConfig().ConnMaxLifetime, cfg.ConnMaxLifetime)
}

func TestNilPoolIsSafe(t *testing.T) {
	var pool *Pool

	assert.Error(t, pool.Health(context.Background()))
	assert.NoError(t, pool.Close())
	assert.Zero(t, pool.Stats().OpenConnections)
	CollectPoolStats(pool)
}

func TestCollectPoolStatsEveryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		CollectPoolStatsEvery(ctx, nil, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop after cancel")
	}
}
