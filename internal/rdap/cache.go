package rdap

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is an optional redis-backed store for probe results. Registration
// data changes rarely, so a short TTL saves a network round trip per repeated
// domain without risking stale verdicts. All cache failures are treated as
// misses; the prober never depends on redis being up.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// NewCache creates a probe cache over an existing redis client
func NewCache(client *redis.Client, logger *slog.Logger, ttl time.Duration) *Cache {
	return &Cache{client: client, logger: logger, ttl: ttl}
}

func cacheKey(domain string) string {
	return "rdap:probe:" + domain
}

// Get returns a cached probe result. A nil cache, a miss, and a redis error
// all report ok=false.
func (c *Cache) Get(ctx context.Context, domain string) (ProbeResult, bool) {
	if c == nil {
		return ProbeResult{}, false
	}

	raw, err := c.client.Get(ctx, cacheKey(domain)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("probe cache read failed", "domain", domain, "error", err)
		}
		return ProbeResult{}, false
	}

	var result ProbeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		c.logger.Warn("probe cache entry corrupt", "domain", domain, "error", err)
		return ProbeResult{}, false
	}
	return result, true
}

// Set stores a probe result; failures are logged and ignored
func (c *Cache) Set(ctx context.Context, result ProbeResult) {
	if c == nil {
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(result.Domain), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("probe cache write failed", "domain", result.Domain, "error", err)
	}
}
