package captcha

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const solutionKeyPrefix = "captchagate:solution:"

// Cache stores answers by image digest so an image seen before is not paid
// for twice.
type Cache interface {
	Get(ctx context.Context, digest string) (string, bool, error)
	Set(ctx context.Context, digest, text string) error
}

// RedisCache keeps answers in Redis with a TTL, shared between instances.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a RedisCache on an existing client.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Get returns the cached answer for digest.
func (c *RedisCache) Get(ctx context.Context, digest string) (string, bool, error) {
	val, err := c.client.Get(ctx, solutionKeyPrefix+digest).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set stores the answer for digest. SET with EX is atomic.
func (c *RedisCache) Set(ctx context.Context, digest, text string) error {
	return c.client.Set(ctx, solutionKeyPrefix+digest, text, c.ttl).Err()
}

// Ping checks the connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// MemoryCache is an in-process Cache with a TTL.
type MemoryCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	entries   map[string]memoryEntry
	lastSweep time.Time
}

type memoryEntry struct {
	text    string
	expires time.Time
}

// NewMemoryCache creates a MemoryCache.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, entries: make(map[string]memoryEntry), lastSweep: time.Now()}
}

// Get returns the cached answer for digest.
func (c *MemoryCache) Get(_ context.Context, digest string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[digest]
	if !ok {
		return "", false, nil
	}
	if c.ttl > 0 && time.Now().After(e.expires) {
		delete(c.entries, digest)
		return "", false, nil
	}
	return e.text, true, nil
}

// Set stores the answer for digest. Expired entries are swept at most once
// per TTL, so images that are never seen again do not pile up.
func (c *MemoryCache) Set(_ context.Context, digest, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if c.ttl > 0 && now.Sub(c.lastSweep) >= c.ttl {
		for k, e := range c.entries {
			if now.After(e.expires) {
				delete(c.entries, k)
			}
		}
		c.lastSweep = now
	}
	c.entries[digest] = memoryEntry{text: text, expires: now.Add(c.ttl)}
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
