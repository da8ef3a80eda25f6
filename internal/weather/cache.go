package weather

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultCacheTTL = 10 * time.Minute
	cacheKeyPrefix  = "weather:town:"
)

type Provider interface {
	CurrentWeather(ctx context.Context, town string) (Conditions, error)
}

// RedisClient is the subset of *redis.Client the cache needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Cache is a read-through Redis cache in front of a Provider. A Redis
// failure never fails a lookup; the provider is asked directly instead.
type Cache struct {
	next   Provider
	client RedisClient
	ttl    time.Duration
	logger *slog.Logger
}

type CacheOption func(*Cache)

func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewCache(next Provider, client RedisClient, opts ...CacheOption) *Cache {
	c := &Cache{
		next:   next,
		client: client,
		ttl:    DefaultCacheTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) CurrentWeather(ctx context.Context, town string) (Conditions, error) {
	key := cacheKey(town)

	cached, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var conditions Conditions
		if err := json.Unmarshal(cached, &conditions); err == nil {
			return conditions, nil
		}
		c.logger.WarnContext(ctx, "discarding unreadable cached weather", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "weather cache read failed", "key", key, "error", err)
	}

	conditions, err := c.next.CurrentWeather(ctx, town)
	if err != nil {
		return Conditions{}, err
	}

	payload, err := json.Marshal(conditions)
	if err != nil {
		return conditions, nil
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "weather cache write failed", "key", key, "error", err)
	}

	return conditions, nil
}

func cacheKey(town string) string {
	return cacheKeyPrefix + strings.ToLower(strings.TrimSpace(town))
}
