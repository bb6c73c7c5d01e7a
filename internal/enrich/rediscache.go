package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// RedisLookupCache backs GeoIPLookup/ThreatIntelLookup with a TTL-cached
// Redis layer in front of a slower upstream resolver, adapted from this
// codebase's go-redis adapter. Concurrent lookups for the same key are
// collapsed with singleflight so a burst of events about one IP doesn't
// fan out into duplicate upstream calls.
type RedisLookupCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	group     singleflight.Group
}

func NewRedisLookupCache(addr, password string, db int, keyPrefix string, ttl time.Duration) (*RedisLookupCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("enrich: redis ping: %w", err)
	}

	return &RedisLookupCache{client: client, keyPrefix: keyPrefix, ttl: ttl}, nil
}

func (c *RedisLookupCache) cacheKey(key string) string {
	return c.keyPrefix + ":" + key
}

// GetOrResolve returns the cached value for key if present; otherwise it
// calls resolve exactly once per key even under concurrent callers, caches
// the result for ttl, and returns it.
func (c *RedisLookupCache) GetOrResolve(ctx context.Context, key string, resolve func(context.Context) (string, error)) (string, error) {
	if v, err := c.client.Get(ctx, c.cacheKey(key)).Result(); err == nil {
		return v, nil
	} else if err != redis.Nil {
		// Redis itself errored: fall through to resolve rather than fail
		// the whole enrichment action over a cache outage.
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		resolved, rerr := resolve(ctx)
		if rerr != nil {
			return "", rerr
		}
		if setErr := c.client.Set(ctx, c.cacheKey(key), resolved, c.ttl).Err(); setErr != nil {
			// Cache write failures are non-fatal: the resolved value is
			// still good for this call, just not persisted for reuse.
			return resolved, nil
		}
		return resolved, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *RedisLookupCache) Close() error {
	return c.client.Close()
}

// GeoIPResolver adapts an upstream resolve function into a GeoIPLookup via
// RedisLookupCache.
type GeoIPResolver struct {
	Cache   *RedisLookupCache
	Resolve func(ctx context.Context, ip string) (string, error)
}

func (g *GeoIPResolver) Lookup(ctx context.Context, ip string) (string, error) {
	return g.Cache.GetOrResolve(ctx, ip, func(ctx context.Context) (string, error) {
		return g.Resolve(ctx, ip)
	})
}

// ThreatIntelResolver adapts an upstream resolve function into a
// ThreatIntelLookup via RedisLookupCache. An empty resolved string means
// "looked up, not found" rather than an error.
type ThreatIntelResolver struct {
	Cache   *RedisLookupCache
	Resolve func(ctx context.Context, indicator string) (string, error)
}

func (t *ThreatIntelResolver) Lookup(ctx context.Context, indicator string) (string, bool, error) {
	v, err := t.Cache.GetOrResolve(ctx, indicator, func(ctx context.Context) (string, error) {
		return t.Resolve(ctx, indicator)
	})
	if err != nil {
		return "", false, err
	}
	return v, v != "", nil
}
