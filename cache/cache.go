package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"passport-server/models"
)

// Clock lets tests drive TTL expiry without real timers.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func SystemClock() Clock { return realClock{} }

// PassportCache caches public passport views keyed by normalized passcode.
type PassportCache interface {
	Get(ctx context.Context, key string) (models.Passport, bool)
	Set(ctx context.Context, key string, p models.Passport, ttl time.Duration)
	Invalidate(ctx context.Context, key string)
}

// RedisPassportCache stores passports as JSON under "passport:"+key.
type RedisPassportCache struct {
	client *redis.Client
}

func NewRedisPassportCache(client *redis.Client) *RedisPassportCache {
	return &RedisPassportCache{client: client}
}

func (c *RedisPassportCache) Get(ctx context.Context, key string) (models.Passport, bool) {
	raw, err := c.client.Get(ctx, "passport:"+key).Result()
	if err != nil {
		return models.Passport{}, false
	}
	var p models.Passport
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return models.Passport{}, false
	}
	return p, true
}

func (c *RedisPassportCache) Set(ctx context.Context, key string, p models.Passport, ttl time.Duration) {
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	c.client.Set(ctx, "passport:"+key, raw, ttl)
}

func (c *RedisPassportCache) Invalidate(ctx context.Context, key string) {
	c.client.Del(ctx, "passport:"+key)
}

type memoryEntry struct {
	passport  models.Passport
	expiresAt time.Time
}

// MemoryPassportCache is the in-process fallback, also used by tests with a
// fake clock.
type MemoryPassportCache struct {
	mu      sync.RWMutex
	clock   Clock
	entries map[string]memoryEntry
}

func NewMemoryPassportCache(clock Clock) *MemoryPassportCache {
	if clock == nil {
		clock = SystemClock()
	}
	return &MemoryPassportCache{
		clock:   clock,
		entries: make(map[string]memoryEntry),
	}
}

func (c *MemoryPassportCache) Get(_ context.Context, key string) (models.Passport, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return models.Passport{}, false
	}
	if c.clock.Now().After(entry.expiresAt) {
		c.Invalidate(context.Background(), key)
		return models.Passport{}, false
	}
	return entry.passport, true
}

func (c *MemoryPassportCache) Set(_ context.Context, key string, p models.Passport, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{passport: p, expiresAt: c.clock.Now().Add(ttl)}
}

func (c *MemoryPassportCache) Invalidate(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
