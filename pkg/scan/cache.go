package scan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/Kubojah-Dan/AI-SCAM-DEFENDER/pkg/ml"
)

// VerdictCache memoizes verdicts by content identity so repeated scans of
// the same input skip model inference. Persistence is unaffected: every
// scan still writes its own record.
type VerdictCache interface {
	Get(ctx context.Context, key string) (ml.Verdict, bool)
	Set(ctx context.Context, key string, verdict ml.Verdict)
}

// CacheKey derives the cache identity for a scan: modality plus the SHA-256
// of the raw content.
func CacheKey(modality string, content []byte) string {
	sum := sha256.Sum256(content)
	return modality + ":" + hex.EncodeToString(sum[:])
}

// === Redis-backed cache ===

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to addr and returns a Redis-backed verdict cache.
// Connection failures surface at startup so the caller can fall back to the
// in-process cache.
func NewRedisCache(ctx context.Context, addr string, ttl time.Duration) (VerdictCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	log.Printf("[CACHE] Redis verdict cache connected (%s, ttl %s)", addr, ttl)
	return &redisCache{client: client, ttl: ttl}, nil
}

func (c *redisCache) Get(ctx context.Context, key string) (ml.Verdict, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("[CACHE] Redis get failed: %v", err)
		}
		return ml.Verdict{}, false
	}

	var verdict ml.Verdict
	if err := json.Unmarshal(raw, &verdict); err != nil {
		return ml.Verdict{}, false
	}
	return verdict, true
}

func (c *redisCache) Set(ctx context.Context, key string, verdict ml.Verdict) {
	raw, err := json.Marshal(verdict)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		log.Printf("[CACHE] Redis set failed: %v", err)
	}
}

// === In-process cache ===

type localCache struct {
	cache *gocache.Cache
}

// NewLocalCache returns an in-process verdict cache, used when Redis is not
// configured or unreachable.
func NewLocalCache(ttl time.Duration) VerdictCache {
	return &localCache{cache: gocache.New(ttl, 2*ttl)}
}

func (c *localCache) Get(_ context.Context, key string) (ml.Verdict, bool) {
	if v, ok := c.cache.Get(key); ok {
		if verdict, ok := v.(ml.Verdict); ok {
			return verdict, true
		}
	}
	return ml.Verdict{}, false
}

func (c *localCache) Set(_ context.Context, key string, verdict ml.Verdict) {
	c.cache.SetDefault(key, verdict)
}

// noopCache disables memoization (TTL zero).
type noopCache struct{}

func (noopCache) Get(context.Context, string) (ml.Verdict, bool) { return ml.Verdict{}, false }
func (noopCache) Set(context.Context, string, ml.Verdict)        {}

// NewNoopCache returns a cache that never hits.
func NewNoopCache() VerdictCache { return noopCache{} }
