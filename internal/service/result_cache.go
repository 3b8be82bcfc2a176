package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/blast-search-server/internal/domain"
)

const (
	defaultResultCacheSize = 128
	defaultResultCacheTTL  = 24 * time.Hour
	resultKeyPrefix        = "blast:cache:result:"
)

// ResultCache is a two-tier read-through cache for search results: an
// in-memory LRU in front of an optional Redis. Only real results are
// cached; fallback results always re-run.
type ResultCache struct {
	memory *lru.Cache
	redis  *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

type resultCacheEntry struct {
	result  *domain.SearchResult
	expires time.Time
}

// NewResultCache builds the cache from config. An empty RedisURL degrades
// to memory-only; a bad URL is an error since it means misconfiguration.
func NewResultCache(cfg domain.CacheConfig, logger *logrus.Logger) (*ResultCache, error) {
	if logger == nil {
		logger = logrus.New()
	}

	size := cfg.MemorySize
	if size <= 0 {
		size = defaultResultCacheSize
	}
	memory, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultResultCacheTTL
	}

	cache := &ResultCache{
		memory: memory,
		ttl:    ttl,
		logger: logger,
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		cache.redis = redis.NewClient(opts)
	}

	return cache, nil
}

// Key derives the cache key from the cleaned query and the parameters that
// change what a backend would return.
func (c *ResultCache) Key(query domain.SequenceQuery, req *domain.SearchRequest) string {
	material := fmt.Sprintf("%s|%s|%s|%s|%g|%d|%d|%s|%d|%d|%t",
		query.Sequence, req.BlastType, req.Service, req.Database,
		req.EvalueThreshold, req.MaxTargets, req.WordSize, req.Matrix,
		req.GapOpen, req.GapExtend, req.LowComplexityFilter,
	)
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}

// Get returns a cached result, memory tier first. A hit comes back with
// SearchTime zeroed so callers can tell it cost nothing.
func (c *ResultCache) Get(ctx context.Context, key string) (*domain.SearchResult, bool) {
	if value, ok := c.memory.Get(key); ok {
		entry := value.(*resultCacheEntry)
		if time.Now().Before(entry.expires) {
			c.logger.WithField("cache_tier", "memory").Debug("Result cache hit")
			return cachedCopy(entry.result), true
		}
		c.memory.Remove(key)
	}

	if c.redis == nil {
		return nil, false
	}

	data, err := c.redis.Get(ctx, resultKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Warn("Redis cache read failed")
		}
		return nil, false
	}

	var result domain.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.WithError(err).Warn("Discarding undecodable cached result")
		c.redis.Del(ctx, resultKeyPrefix+key)
		return nil, false
	}

	// Promote to the memory tier for the next lookup.
	c.memory.Add(key, &resultCacheEntry{result: &result, expires: time.Now().Add(c.ttl)})
	c.logger.WithField("cache_tier", "redis").Debug("Result cache hit")
	return cachedCopy(&result), true
}

// Put stores a result in both tiers. Fallback results are never cached so
// a transient failure does not pin simulated hits for a day.
func (c *ResultCache) Put(ctx context.Context, key string, result *domain.SearchResult) {
	if result == nil || !result.IsRealResults {
		return
	}

	c.memory.Add(key, &resultCacheEntry{result: result, expires: time.Now().Add(c.ttl)})

	if c.redis == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.WithError(err).Warn("Could not encode result for redis cache")
		return
	}
	if err := c.redis.Set(ctx, resultKeyPrefix+key, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("Redis cache write failed")
	}
}

// Close releases the redis connection if one was configured.
func (c *ResultCache) Close() error {
	if c.redis != nil {
		return c.redis.Close()
	}
	return nil
}

// cachedCopy returns the result with SearchTime zeroed, leaving the stored
// value untouched.
func cachedCopy(result *domain.SearchResult) *domain.SearchResult {
	out := *result
	out.Statistics.SearchTime = 0
	return &out
}
