// Package cache provides a read-through cache in front of the persisted
// verification store: Redis when configured, falling back to an in-process
// map so the service runs without an external dependency in development.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Avantemaps-pi/avante-verifier-internal/internal/metrics"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/storage"
	"github.com/redis/go-redis/v9"
)

// TTL is how long a cache entry is considered fresh.
const TTL = time.Hour

// Entry is the cached, read-through view of a VerificationRecord.
type Entry struct {
	Record         storage.VerificationRecord
	CacheExpiresAt time.Time
}

// Thresholds identifies which threshold triple a cache entry was computed
// against, used only when keying by wallet+thresholds is enabled.
type Thresholds struct {
	MinTotal    int
	MinCredited int
	MinUnique   int
}

// Cache looks up recently computed verifications without re-scanning the
// ledger. A miss (absent, or older than TTL) is reported via ok=false. By
// default the cache is keyed by wallet alone (CACHE_KEY_INCLUDE_THRESHOLDS
// unset): a hit returns the previously computed decision even if thresholds
// passed to Get/Set differ, matching the verification-cache contract.
type Cache interface {
	Get(ctx context.Context, wallet string, thresholds Thresholds) (Entry, bool, error)
	Set(ctx context.Context, wallet string, thresholds Thresholds, rec storage.VerificationRecord) error
	Close() error
}

// New builds a Redis-backed cache when addr is non-empty, otherwise an
// in-memory cache. m may be nil. includeThresholds enables
// CACHE_KEY_INCLUDE_THRESHOLDS.
func New(addr string, includeThresholds bool, m *metrics.Metrics) Cache {
	if addr == "" {
		return newMemoryCache(includeThresholds, m)
	}
	return newRedisCache(addr, includeThresholds, m)
}

// memoryCache is the in-process fallback cache.
type memoryCache struct {
	mu                sync.RWMutex
	entries           map[string]Entry
	includeThresholds bool
	metrics           *metrics.Metrics
}

func newMemoryCache(includeThresholds bool, m *metrics.Metrics) *memoryCache {
	return &memoryCache{entries: make(map[string]Entry), includeThresholds: includeThresholds, metrics: m}
}

func (c *memoryCache) Get(_ context.Context, wallet string, t Thresholds) (Entry, bool, error) {
	k := cacheKey(wallet, t, c.includeThresholds)

	c.mu.RLock()
	entry, ok := c.entries[k]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.CacheExpiresAt) {
		c.observe("miss")
		return Entry{}, false, nil
	}
	c.observe("hit")
	return entry, true, nil
}

func (c *memoryCache) Set(_ context.Context, wallet string, t Thresholds, rec storage.VerificationRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(wallet, t, c.includeThresholds)] = Entry{Record: rec, CacheExpiresAt: rec.UpdatedAt.Add(TTL)}
	return nil
}

func (c *memoryCache) observe(outcome string) {
	if c.metrics == nil {
		return
	}
	if outcome == "hit" {
		c.metrics.ObserveCacheHit("memory")
	} else {
		c.metrics.ObserveCacheMiss("memory")
	}
}

// Close is a no-op: the in-process cache owns no external connection.
func (c *memoryCache) Close() error {
	return nil
}

// redisCache stores the cache entry as JSON, letting Redis's own TTL expire
// stale entries without a periodic sweep.
type redisCache struct {
	client            *redis.Client
	includeThresholds bool
	metrics           *metrics.Metrics
}

func newRedisCache(addr string, includeThresholds bool, m *metrics.Metrics) *redisCache {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &redisCache{client: client, includeThresholds: includeThresholds, metrics: m}
}

type redisEntry struct {
	Record         storage.VerificationRecord `json:"record"`
	CacheExpiresAt time.Time                  `json:"cache_expires_at"`
}

func (c *redisCache) Get(ctx context.Context, wallet string, t Thresholds) (Entry, bool, error) {
	raw, err := c.client.Get(ctx, cacheKey(wallet, t, c.includeThresholds)).Bytes()
	if err == redis.Nil {
		c.observe("miss")
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	var stored redisEntry
	if err := json.Unmarshal(raw, &stored); err != nil {
		return Entry{}, false, err
	}
	if time.Now().After(stored.CacheExpiresAt) {
		c.observe("miss")
		return Entry{}, false, nil
	}

	c.observe("hit")
	return Entry{Record: stored.Record, CacheExpiresAt: stored.CacheExpiresAt}, true, nil
}

func (c *redisCache) Set(ctx context.Context, wallet string, t Thresholds, rec storage.VerificationRecord) error {
	stored := redisEntry{Record: rec, CacheExpiresAt: rec.UpdatedAt.Add(TTL)}
	raw, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(wallet, t, c.includeThresholds), raw, TTL).Err()
}

func (c *redisCache) observe(outcome string) {
	if c.metrics == nil {
		return
	}
	if outcome == "hit" {
		c.metrics.ObserveCacheHit("redis")
	} else {
		c.metrics.ObserveCacheMiss("redis")
	}
}

// Close releases the underlying Redis connection pool.
func (c *redisCache) Close() error {
	return c.client.Close()
}

func cacheKey(wallet string, t Thresholds, includeThresholds bool) string {
	if !includeThresholds {
		return "verification:" + wallet
	}
	return fmt.Sprintf("verification:%s:%d:%d:%d", wallet, t.MinTotal, t.MinCredited, t.MinUnique)
}
