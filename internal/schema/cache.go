package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/daap14/askdb/internal/engine"
)

// Cache stores introspected table descriptions for a bounded time.
// Concurrent writers for the same key are last-writer-wins.
type Cache interface {
	Get(ctx context.Context, key string) ([]engine.Table, bool, error)
	Set(ctx context.Context, key string, tables []engine.Table, ttl time.Duration) error
}

type memoryEntry struct {
	tables    []engine.Table
	expiresAt time.Time
}

// MemoryCache is a process-wide Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

// WithClock overrides the time source. Used by tests.
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

// Get returns the cached tables for key if they have not expired.
func (c *MemoryCache) Get(_ context.Context, key string) ([]engine.Table, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false, nil
	}
	return e.tables, true, nil
}

// Set stores tables under key for ttl.
func (c *MemoryCache) Set(_ context.Context, key string, tables []engine.Table, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{tables: tables, expiresAt: c.now().Add(ttl)}
	return nil
}

// RedisCache shares descriptions between replicas through Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache parses redisURL and verifies the connection.
func NewRedisCache(ctx context.Context, redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return &RedisCache{client: client, prefix: "askdb:schema:"}, nil
}

// Get returns the cached tables for key.
func (c *RedisCache) Get(ctx context.Context, key string) ([]engine.Table, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading schema cache: %w", err)
	}

	var tables []engine.Table
	if err := json.Unmarshal(data, &tables); err != nil {
		return nil, false, fmt.Errorf("decoding schema cache: %w", err)
	}
	return tables, true, nil
}

// Set stores tables under key with a TTL.
func (c *RedisCache) Set(ctx context.Context, key string, tables []engine.Table, ttl time.Duration) error {
	data, err := json.Marshal(tables)
	if err != nil {
		return fmt.Errorf("encoding schema cache: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("writing schema cache: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
