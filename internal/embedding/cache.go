package embedding

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
)

// EmbeddingCache caches embeddings keyed by text. A cache built with a
// non-positive capacity stores nothing.
type EmbeddingCache struct {
	cache *ristretto.Cache[string, []float32]
}

// NewEmbeddingCache creates a new cache holding up to capacity embeddings.
func NewEmbeddingCache(capacity int) (*EmbeddingCache, error) {
	if capacity <= 0 {
		return &EmbeddingCache{}, nil
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, []float32]{
		NumCounters: int64(capacity) * 10,
		MaxCost:     int64(capacity),
		BufferItems: 64,
		// cost is counted in entries, not bytes
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &EmbeddingCache{cache: cache}, nil
}

// Get returns a copy of the cached embedding for key if present.
func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	if c == nil || c.cache == nil {
		return nil, false
	}
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	return cloneVector(v), true
}

// Set stores a copy of the embedding for key. Admission is asynchronous;
// call Wait to make the write visible.
func (c *EmbeddingCache) Set(key string, value []float32) {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.Set(key, cloneVector(value), 1)
}

// Wait blocks until buffered writes are applied.
func (c *EmbeddingCache) Wait() {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.Wait()
}

// Close stops the cache's background goroutines.
func (c *EmbeddingCache) Close() {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.Close()
}

// CachedEmbedder wraps another Embedder with an EmbeddingCache.
type CachedEmbedder struct {
	inner Embedder
	cache *EmbeddingCache
}

// NewCachedEmbedder returns an embedder that consults a cache of the given
// capacity before calling inner.
func NewCachedEmbedder(inner Embedder, capacity int) (*CachedEmbedder, error) {
	cache, err := NewEmbeddingCache(capacity)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

// Embed returns the cached embedding for text or computes and caches it.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		return v, nil
	}
	v, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, v)
	return v, nil
}

// EmbedBatch calls Embed for each text.
func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the wrapped embedder's dimension.
func (e *CachedEmbedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Close releases the cache and the wrapped embedder.
func (e *CachedEmbedder) Close() error {
	e.cache.Close()
	return e.inner.Close()
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
