// Package health runs readiness checks against the service's dependencies.
package health

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisChecker pings the Redis instance that backs the featured job cache.
type RedisChecker struct {
	client redis.Cmdable
}

// NewRedisChecker creates a RedisChecker.
func NewRedisChecker(client redis.Cmdable) *RedisChecker {
	return &RedisChecker{client: client}
}

// HealthCheck sends PING and expects PONG.
func (r *RedisChecker) HealthCheck(ctx context.Context) error {
	reply, err := r.client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	if reply != "PONG" {
		return fmt.Errorf("redis ping: unexpected reply %q", reply)
	}
	return nil
}
