package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryIndex is an in-memory vector index using brute-force cosine search.
// It is rebuilt from the catalog store at startup.
type MemoryIndex struct {
	dimensions int
	pos        map[int64]int
	ids        []int64
	vectors    [][]float32
	mu         sync.RWMutex
}

var _ Index = (*MemoryIndex)(nil)

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		pos:        make(map[int64]int),
	}, nil
}

// Dimensions returns the vector length accepted by the index.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Upsert adds or replaces vectors with the given IDs.
func (m *MemoryIndex) Upsert(ctx context.Context, ids []int64, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	for i := range vectors {
		if len(vectors[i]) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), m.dimensions)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range ids {
		vec := make([]float32, m.dimensions)
		copy(vec, vectors[i])
		if p, ok := m.pos[id]; ok {
			m.vectors[p] = vec
			continue
		}
		m.pos[id] = len(m.ids)
		m.ids = append(m.ids, id)
		m.vectors = append(m.vectors, vec)
	}
	return nil
}

// Search returns the top-k vectors by cosine similarity, ties broken by ascending ID.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int, filter map[int64]struct{}) ([]*Result, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.ids) == 0 {
		return nil, nil
	}
	scores := make([]*Result, 0, len(m.ids))
	for i, vec := range m.vectors {
		id := m.ids[i]
		if filter != nil {
			if _, ok := filter[id]; !ok {
				continue
			}
		}
		scores = append(scores, &Result{ID: id, Score: Cosine(query, vec)})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].ID < scores[j].ID
	})
	if k > len(scores) {
		k = len(scores)
	}
	return scores[:k], nil
}

// Vector returns a copy of the stored vector for id.
func (m *MemoryIndex) Vector(id int64) ([]float32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pos[id]
	if !ok {
		return nil, false
	}
	out := make([]float32, len(m.vectors[p]))
	copy(out, m.vectors[p])
	return out, true
}

// Remove deletes vectors by ID, rebuilding the position map.
func (m *MemoryIndex) Remove(ctx context.Context, ids []int64) error {
	removeSet := make(map[int64]bool, len(ids))
	for _, id := range ids {
		removeSet[id] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	newIDs := make([]int64, 0, len(m.ids))
	newVectors := make([][]float32, 0, len(m.vectors))
	for i, id := range m.ids {
		if !removeSet[id] {
			newIDs = append(newIDs, id)
			newVectors = append(newVectors, m.vectors[i])
		}
	}
	m.ids = newIDs
	m.vectors = newVectors
	m.pos = make(map[int64]int, len(newIDs))
	for i, id := range newIDs {
		m.pos[id] = i
	}
	return nil
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
