// Package vector provides vector index and similarity search.
package vector

import "context"

// Index defines vector storage and similarity search over one corpus.
type Index interface {
	// Upsert adds vectors, replacing any existing vector with the same ID.
	Upsert(ctx context.Context, ids []int64, vectors [][]float32) error
	// Search returns up to k nearest vectors by cosine similarity. A non-nil
	// filter restricts candidates to the IDs it contains.
	Search(ctx context.Context, query []float32, k int, filter map[int64]struct{}) ([]*Result, error)
	// Vector returns the stored vector for id, if any.
	Vector(id int64) ([]float32, bool)
	Remove(ctx context.Context, ids []int64) error
	// Dimensions is the vector length the index accepts.
	Dimensions() int
	Size() int
	Close() error
}

// Result is a single vector search hit.
type Result struct {
	ID    int64
	Score float64 // cosine similarity in [-1, 1]
}
