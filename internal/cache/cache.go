// Package cache implements an optional redis read-through cache for
// public listings. The database stays the source of truth; every entry
// carries a TTL and the event bus invalidates eagerly on writes.
package cache

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	// Load env file into environments.
	_ "github.com/joho/godotenv/autoload"
)

const (
	// JobListTTL bounds staleness of cached job listings
	JobListTTL = 5 * time.Minute
	// CategoryListTTL bounds staleness of the cached category tree
	CategoryListTTL = time.Hour

	jobKeyPrefix = "jobs:"
	// CategoryListKey stores the whole category tree
	CategoryListKey = "categories:all"
)

// Cache wraps a redis client. A Cache with a nil client is a valid
// no-op: every lookup misses and every write is dropped, so the server
// runs without redis when REDIS_ADDR is unset.
type Cache struct {
	rdb *redis.Client
}

// New builds a Cache from the REDIS_ADDR / REDIS_PASSWORD environment
// variables. Returns a disabled cache when REDIS_ADDR is empty.
func New() *Cache {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return &Cache{}
	}
	return &Cache{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})}
}

// NewWithClient builds a Cache around an existing client, used by tests.
func NewWithClient(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Enabled reports whether a redis backend is configured.
func (c *Cache) Enabled() bool {
	return c != nil && c.rdb != nil
}

// GetJSON loads key into dest, reporting whether it was a hit. Redis
// errors count as a miss so a broken cache degrades to DB reads.
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	if !c.Enabled() {
		return false
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("cache: get %s: %v", key, err)
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		log.Printf("cache: decode %s: %v", key, err)
		return false
	}
	return true
}

// SetJSON stores v under key with the given TTL, best effort.
func (c *Cache) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	if !c.Enabled() {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		log.Printf("cache: encode %s: %v", key, err)
		return
	}
	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
}

// JobListKey builds the cache key for a job listing with the given
// canonical query string.
func JobListKey(query string) string {
	return jobKeyPrefix + "list:" + query
}

// InvalidateJobs drops every cached job listing.
func (c *Cache) InvalidateJobs(ctx context.Context) {
	c.deletePrefix(ctx, jobKeyPrefix)
}

// InvalidateCategories drops the cached category tree.
func (c *Cache) InvalidateCategories(ctx context.Context) {
	if !c.Enabled() {
		return
	}
	if err := c.rdb.Del(ctx, CategoryListKey).Err(); err != nil {
		log.Printf("cache: del %s: %v", CategoryListKey, err)
	}
}

// IncrCounter bumps a best-effort analytics counter.
func (c *Cache) IncrCounter(ctx context.Context, key string) {
	if !c.Enabled() {
		return
	}
	if err := c.rdb.Incr(ctx, key).Err(); err != nil {
		log.Printf("cache: incr %s: %v", key, err)
	}
}

func (c *Cache) deletePrefix(ctx context.Context, prefix string) {
	if !c.Enabled() {
		return
	}
	iter := c.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			log.Printf("cache: del %s: %v", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		log.Printf("cache: scan %s: %v", prefix, err)
	}
}
