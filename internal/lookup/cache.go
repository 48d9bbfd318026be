// Package lookup caches the backend's reference lookups (municipios, CNES)
// and ranks suggestions for unit names and usernames.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/redis/go-redis/v9"

	"github.com/pitabwire/callcenter/internal/config"
)

// Cache stores encoded lookup results under string keys.
type Cache interface {
	// Get returns the value stored under key. found is false on a miss or
	// when the entry expired.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// NewCache builds the cache selected by cfg.Driver. The returned close
// function releases the cache's connections.
func NewCache(cfg config.CacheConfig) (Cache, func() error, error) {
	switch cfg.Driver {
	case "memory", "":
		return NewMemoryCache(cfg.MaxEntries), func() error { return nil }, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		return NewRedisCache(client, cfg.KeyPrefix), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("lookup: unsupported cache driver %q", cfg.Driver)
	}
}

// --- MemoryCache ---

// MemoryCache is a bounded in-process cache. When full, the least recently
// used entry is evicted. It is safe for concurrent use.
type MemoryCache struct {
	mu      sync.Mutex
	entries *lru.Cache
	now     func() time.Time
}

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache creates a cache holding at most maxEntries entries.
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries < 1 {
		maxEntries = 1000
	}
	return &MemoryCache{entries: lru.New(maxEntries), now: time.Now}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	e := v.(memEntry)
	if !c.now().Before(e.expiresAt) {
		c.entries.Remove(key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Add(key, memEntry{value: value, expiresAt: c.now().Add(ttl)})
	return nil
}

// Len returns the number of entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// --- RedisCache ---

// RedisCache is a Redis-backed Cache shared by every server instance.
type RedisCache struct {
	client redis.Cmdable
	prefix string
}

// NewRedisCache creates a cache that namespaces its keys with prefix.
func NewRedisCache(client redis.Cmdable, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup: redis get: %w", err)
	}
	return raw, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("lookup: redis set: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
