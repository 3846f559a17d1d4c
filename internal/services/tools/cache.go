package tools

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/openrufus/rufus/internal/infrastructure/redis"
)

const cacheKeyPrefix = "rufus:tools:"

// Cache keeps tool results between requests.
type Cache interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
	Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error
}

type RedisCache struct {
	redisService *redis.Service
}

type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value   json.RawMessage
	expires time.Time
}

// NewCache prefers Redis and falls back to memory when Redis is absent or
// not answering.
func NewCache(redisService *redis.Service) Cache {
	if redisService != nil {
		if err := redisService.Ping(context.Background()); err == nil {
			return &RedisCache{redisService: redisService}
		}
	}
	return NewMemoryCache()
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (rc *RedisCache) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	data, err := rc.redisService.Get(ctx, cacheKeyPrefix+key)
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return json.RawMessage(data), true, nil
}

func (rc *RedisCache) Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	return rc.redisService.Set(ctx, cacheKeyPrefix+key, string(value), ttl)
}

func (mc *MemoryCache) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	mc.mu.RLock()
	entry, exists := mc.entries[key]
	mc.mu.RUnlock()

	if !exists {
		return nil, false, nil
	}
	if !entry.expires.IsZero() && !mc.now().Before(entry.expires) {
		mc.mu.Lock()
		delete(mc.entries, key)
		mc.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores value; a ttl of zero keeps it forever.
func (mc *MemoryCache) Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	entry := memoryEntry{value: append(json.RawMessage(nil), value...)}
	if ttl > 0 {
		entry.expires = mc.now().Add(ttl)
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.entries[key] = entry
	return nil
}
