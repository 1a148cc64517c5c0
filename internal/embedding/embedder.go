// Package embedding provides text embedding via ONNX and caching.
package embedding

import (
	"context"
	"errors"
	"math"
)

// ErrUnavailable is returned when the embedding backend cannot produce a vector.
var ErrUnavailable = errors.New("embedding unavailable")

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// embedEach embeds texts one at a time with e.
func embedEach(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// NormalizeL2Slice normalizes the slice in place to unit L2 norm.
func NormalizeL2Slice(x []float32) {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(1.0 / math.Sqrt(sum))
	for i := range x {
		x[i] *= norm
	}
}

// ONNXOptions configures NewONNXEmbedder.
type ONNXOptions struct {
	ModelPath string
	// TokenizerPath is a HuggingFace tokenizer.json; empty uses SimpleTokenizer.
	TokenizerPath string
	Dimensions    int
	MaxTokens     int
	CacheSize     int
	// MeanPooling averages the model's per-token "last_hidden_state" under the
	// attention mask. Otherwise the model must emit a pooled "output" vector.
	MeanPooling bool
}

// meanPool averages the rows of tokenStates (len(mask) rows of dims values) whose mask is
// set. It returns a zero vector when no token is attended.
func meanPool(tokenStates []float32, mask []int64, dims int) []float32 {
	out := make([]float32, dims)
	n := 0
	for i, m := range mask {
		if m == 0 || (i+1)*dims > len(tokenStates) {
			continue
		}
		row := tokenStates[i*dims : (i+1)*dims]
		for j, v := range row {
			out[j] += v
		}
		n++
	}
	if n > 0 {
		for j := range out {
			out[j] /= float32(n)
		}
	}
	return out
}
