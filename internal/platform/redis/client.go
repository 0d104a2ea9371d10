package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	redisPoolHits = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hearth_redis_pool_hits",
		Help: "Number of times a connection was found in the pool",
	})
	redisPoolMisses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hearth_redis_pool_misses",
		Help: "Number of times a connection was not found in the pool",
	})
	redisPoolTimeouts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hearth_redis_pool_timeouts",
		Help: "Number of times a connection was not obtained due to timeout",
	})
	redisPoolTotalConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hearth_redis_pool_total_conns",
		Help: "Number of total connections in the pool",
	})
	redisPoolIdleConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hearth_redis_pool_idle_conns",
		Help: "Number of idle connections in the pool",
	})
)

// New connects a go-redis client and verifies the connection.
// Returns nil if addr is empty so the caller can fall back to other backends.
func New(addr string) (*redis.Client, error) {
	if addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// CollectPoolStats copies go-redis pool statistics into prometheus gauges.
func CollectPoolStats(client *redis.Client) {
	if client == nil {
		return
	}
	stats := client.PoolStats()
	redisPoolHits.Set(float64(stats.Hits))
	redisPoolMisses.Set(float64(stats.Misses))
	redisPoolTimeouts.Set(float64(stats.Timeouts))
	redisPoolTotalConns.Set(float64(stats.TotalConns))
	redisPoolIdleConns.Set(float64(stats.IdleConns))
}

// CollectPoolStatsEvery refreshes the pool gauges on the given interval
// until ctx is cancelled.
func CollectPoolStatsEvery(ctx context.Context, client *redis.Client, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			CollectPoolStats(client)
		}
	}
}
