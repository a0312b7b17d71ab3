// Package cache provides the Redis-backed cache a multi-instance Workflow
// Manager deployment mirrors its active executions into.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chatflow/workflow-core/internal/platform/config"
	"github.com/chatflow/workflow-core/internal/platform/metrics"
)

// ErrCacheMiss is returned when a key is not present.
var ErrCacheMiss = errors.New("cache miss")

// RedisCache wraps a go-redis client with JSON value (de)serialization.
type RedisCache struct {
	client     *redis.Client
	defaultTTL time.Duration
	keyPrefix  string
	metrics    *metrics.Metrics
}

// UseMetrics attaches the process-wide Prometheus registry hit/miss counts
// are recorded against.
func (c *RedisCache) UseMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// NewRedisCache dials Redis per cfg and verifies connectivity.
func NewRedisCache(cfg config.RedisConfig, keyPrefix string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: connecting to redis: %w", err)
	}

	return &RedisCache{client: client, defaultTTL: 5 * time.Minute, keyPrefix: keyPrefix}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := c.client.Get(ctx, c.buildKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			if c.metrics != nil {
				c.metrics.CacheMisses.WithLabelValues(c.keyPrefix).Inc()
			}
			return ErrCacheMiss
		}
		return fmt.Errorf("cache: get: %w", err)
	}
	if c.metrics != nil {
		c.metrics.CacheHits.WithLabelValues(c.keyPrefix).Inc()
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("cache: unmarshaling value: %w", err)
	}
	return nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshaling value: %w", err)
	}
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	if err := c.client.Set(ctx, c.buildKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.buildKey(key)).Err(); err != nil {
		return fmt.Errorf("cache: delete: %w", err)
	}
	return nil
}

func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	result, err := c.client.Exists(ctx, c.buildKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("cache: exists: %w", err)
	}
	return result > 0, nil
}

// SetNX registers a key only if absent, reporting whether it did.
func (c *RedisCache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("cache: marshaling value: %w", err)
	}
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	ok, err := c.client.SetNX(ctx, c.buildKey(key), data, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache: setnx: %w", err)
	}
	return ok, nil
}

// Keys lists every key matching pattern (pattern is prefixed the same way
// as other keys); the returned keys still carry the cache's key prefix.
func (c *RedisCache) Keys(ctx context.Context, pattern string) ([]string, error) {
	iter := c.client.Scan(ctx, 0, c.buildKey(pattern), 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("cache: scanning keys: %w", err)
	}
	return keys, nil
}

func (c *RedisCache) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("cache: closing: %w", err)
	}
	return nil
}

func (c *RedisCache) Health(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache: health check: %w", err)
	}
	return nil
}

func (c *RedisCache) buildKey(key string) string {
	if c.keyPrefix != "" {
		return fmt.Sprintf("%s:%s", c.keyPrefix, key)
	}
	return key
}

// CacheAside loads through cache, falling back to loader on a miss and
// populating the cache asynchronously so the caller isn't blocked on it.
func CacheAside[T any](ctx context.Context, cache *RedisCache, key string, ttl time.Duration, loader func() (T, error)) (T, error) {
	var result T
	if err := cache.Get(ctx, key, &result); err == nil {
		return result, nil
	}

	result, err := loader()
	if err != nil {
		return result, err
	}
	go func() {
		_ = cache.Set(context.Background(), key, result, ttl)
	}()
	return result, nil
}

// Lock is a distributed lock used to serialize claiming a scheduled task or
// an active execution slot across Workflow Manager instances.
type Lock struct {
	cache *RedisCache
	key   string
	value int64
	ttl   time.Duration
}

func (c *RedisCache) NewLock(key string, ttl time.Duration) *Lock {
	return &Lock{cache: c, key: fmt.Sprintf("lock:%s", key), value: time.Now().UnixNano(), ttl: ttl}
}

func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	return l.cache.SetNX(ctx, l.key, l.value, l.ttl)
}

func (l *Lock) Release(ctx context.Context) error {
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.cache.client.Eval(ctx, script, []string{l.cache.buildKey(l.key)}, l.value).Result()
	if err != nil {
		return fmt.Errorf("cache: releasing lock: %w", err)
	}
	return nil
}
