package embedding

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// MockEmbedder is a deterministic embedder for tests. It returns a fixed-dimension
// vector derived from the text hash so that the same text always gets the same embedding.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns a deterministic embedding based on the text hash.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := HashString(text)
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(h*(i+1)))*0.1 + 0.01)
	}
	NormalizeL2Slice(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}

// StaticEmbedder returns fixed vectors registered per text. Unknown text
// falls back to Fallback when set, otherwise ErrUnavailable.
type StaticEmbedder struct {
	Fallback Embedder

	mu         sync.RWMutex
	vectors    map[string][]float32
	dimensions int
	calls      int
}

// NewStaticEmbedder returns a StaticEmbedder seeded with vectors.
func NewStaticEmbedder(dimensions int, vectors map[string][]float32) *StaticEmbedder {
	e := &StaticEmbedder{vectors: make(map[string][]float32, len(vectors)), dimensions: dimensions}
	for k, v := range vectors {
		e.vectors[k] = cloneVector(v)
	}
	return e
}

// Set registers the vector returned for text.
func (e *StaticEmbedder) Set(text string, v []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[text] = cloneVector(v)
}

// Calls returns how many times Embed was invoked.
func (e *StaticEmbedder) Calls() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.calls
}

// Embed returns the registered vector for text.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	v, ok := e.vectors[text]
	e.mu.Unlock()
	if ok {
		return cloneVector(v), nil
	}
	if e.Fallback != nil {
		return e.Fallback.Embed(ctx, text)
	}
	return nil, fmt.Errorf("%w: no vector for %q", ErrUnavailable, text)
}

// EmbedBatch calls Embed for each text.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the embedding dimension.
func (e *StaticEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *StaticEmbedder) Close() error {
	return nil
}
