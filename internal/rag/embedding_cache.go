package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"chaptr/internal/metrics"
)

// EmbeddingCache memoizes vectors keyed by text hash and model version.
// A local sync.Map serves as L1; an optional Redis client serves as L2 so
// re-embedding an unchanged book after a restart stays cheap. A nil Redis
// client degrades to local-only caching.
type EmbeddingCache struct {
	redis  *redis.Client
	local  sync.Map
	prefix string
	ttl    time.Duration

	mu         sync.Mutex
	localCount int
	maxLocal   int
}

type cachedEmbedding struct {
	Vector    []float32 `json:"vector"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

// NewEmbeddingCache creates a cache. ttl applies to the Redis layer only.
func NewEmbeddingCache(client *redis.Client, prefix string, ttl time.Duration) *EmbeddingCache {
	if prefix == "" {
		prefix = "emb:"
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &EmbeddingCache{
		redis:    client,
		prefix:   prefix,
		ttl:      ttl,
		maxLocal: 10000,
	}
}

// Get returns the cached vector for (text, model) if present.
func (c *EmbeddingCache) Get(ctx context.Context, text, model string) ([]float32, bool) {
	key := c.makeKey(text, model)

	if val, ok := c.local.Load(key); ok {
		metrics.CacheHitsTotal.WithLabelValues("local").Inc()
		return val.(*cachedEmbedding).Vector, true
	}

	if c.redis != nil {
		data, err := c.redis.Get(ctx, key).Bytes()
		if err == nil {
			var cached cachedEmbedding
			if json.Unmarshal(data, &cached) == nil {
				metrics.CacheHitsTotal.WithLabelValues("redis").Inc()
				c.setLocal(key, &cached)
				return cached.Vector, true
			}
		}
	}
	metrics.CacheMissesTotal.Inc()
	return nil, false
}

// Set stores a vector in both layers.
func (c *EmbeddingCache) Set(ctx context.Context, text, model string, vector []float32) error {
	key := c.makeKey(text, model)
	cached := &cachedEmbedding{Vector: vector, Model: model, CreatedAt: time.Now()}
	c.setLocal(key, cached)

	if c.redis != nil {
		data, err := json.Marshal(cached)
		if err != nil {
			return err
		}
		return c.redis.Set(ctx, key, data, c.ttl).Err()
	}
	return nil
}

func (c *EmbeddingCache) makeKey(text, model string) string {
	sum := sha256.Sum256([]byte(text))
	return c.prefix + model + ":" + hex.EncodeToString(sum[:16])
}

func (c *EmbeddingCache) setLocal(key string, cached *cachedEmbedding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.localCount >= c.maxLocal {
		evicted := 0
		c.local.Range(func(k, _ any) bool {
			if evicted >= c.maxLocal/2 {
				return false
			}
			c.local.Delete(k)
			evicted++
			return true
		})
		c.localCount -= evicted
	}
	c.local.Store(key, cached)
	c.localCount++
}

// CachedEmbeddingProvider wraps an EmbeddingProvider with an EmbeddingCache.
type CachedEmbeddingProvider struct {
	provider EmbeddingProvider
	cache    *EmbeddingCache
}

// NewCachedEmbeddingProvider wraps provider with cache.
func NewCachedEmbeddingProvider(provider EmbeddingProvider, cache *EmbeddingCache) *CachedEmbeddingProvider {
	return &CachedEmbeddingProvider{provider: provider, cache: cache}
}

// Embed returns the cached vector or delegates to the wrapped provider.
func (p *CachedEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	model := p.provider.Model()
	if vec, ok := p.cache.Get(ctx, text, model); ok {
		return vec, nil
	}
	vec, err := p.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	_ = p.cache.Set(ctx, text, model, vec)
	return vec, nil
}

// EmbedBatch embeds only the texts missing from the cache, preserving input
// order in the result.
func (p *CachedEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	model := p.provider.Model()

	hits := make(map[string][]float32, len(texts))
	var missing []string
	for _, text := range texts {
		if vec, ok := p.cache.Get(ctx, text, model); ok {
			hits[text] = vec
		} else {
			missing = append(missing, text)
		}
	}

	if len(missing) > 0 {
		vectors, err := p.provider.EmbedBatch(ctx, missing)
		if err != nil {
			return nil, err
		}
		for i, text := range missing {
			hits[text] = vectors[i]
			_ = p.cache.Set(ctx, text, model, vectors[i])
		}
	}

	result := make([][]float32, len(texts))
	for i, text := range texts {
		result[i] = hits[text]
	}
	return result, nil
}

// Model returns the wrapped provider's model version.
func (p *CachedEmbeddingProvider) Model() string { return p.provider.Model() }

// Dimension returns the wrapped provider's vector length.
func (p *CachedEmbeddingProvider) Dimension() int { return p.provider.Dimension() }
