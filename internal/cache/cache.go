// Package cache stores JSON encoded values in Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/jobrec/internal/tracing"
)

// DefaultPrefix namespaces every key written by this service.
const DefaultPrefix = "jobrec:"

// Cache is a JSON value cache backed by Redis. A nil *Cache is valid and
// caches nothing.
type Cache struct {
	client redis.Cmdable
	prefix string
	logger *slog.Logger
}

// New creates a Cache. A nil logger uses slog.Default.
func New(client redis.Cmdable, prefix string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, prefix: prefix, logger: logger}
}

// Key returns the full Redis key for key.
func (c *Cache) Key(key string) string {
	return c.prefix + key
}

// Get decodes the value stored under key into dst. It reports false, with no
// error, when the key does not exist.
func (c *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil {
		return false, nil
	}
	raw, err := c.client.Get(ctx, c.Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores v under key for ttl. A zero ttl keeps the value until deleted.
func (c *Cache) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, c.Key(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Delete removes keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if c == nil || len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.Key(k)
	}
	return c.client.Del(ctx, full...).Err()
}

// GetOrLoad returns the cached value for key, or calls load and caches its
// result for ttl. Cache failures are logged and never fail the call; errors
// from load are returned and not cached.
func GetOrLoad[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var v T
	hit, err := c.Get(ctx, key, &v)
	if err != nil {
		c.logger.WarnContext(ctx, "cache read failed", "key", key, "error", err)
	}
	if hit {
		tracing.AddEvent(ctx, "cache_hit", attribute.String("cache.key", key))
		return v, nil
	}

	v, err = load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := c.Set(ctx, key, v, ttl); err != nil {
		c.logger.WarnContext(ctx, "cache write failed", "key", key, "error", err)
	}
	return v, nil
}
