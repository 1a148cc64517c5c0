// Package concept builds concept prototypes and scores vectors against them.
package concept

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrDimensionMismatch is returned when embeddings do not share one dimensionality.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Prototype is the centroid of the embeddings evidencing a concept, dampened by authority.
type Prototype struct {
	ConceptID int64     `json:"concept_id"`
	Centroid  []float32 `json:"-"`
	Authority float64   `json:"authority"`
	Support   int       `json:"support"`
}

// Authority returns min(1, ln(n+1)) for a prototype built from n embeddings.
func Authority(n int) float64 {
	if n <= 0 {
		return 0
	}
	return math.Min(1, math.Log(float64(n)+1))
}

// BuildPrototypes computes one prototype per concept with at least one embedding,
// ordered by ascending concept ID. Every embedding must have the same length.
func BuildPrototypes(evidence map[int64][][]float32) ([]Prototype, error) {
	ids := make([]int64, 0, len(evidence))
	for id, vecs := range evidence {
		if len(vecs) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	dim := -1
	out := make([]Prototype, 0, len(ids))
	for _, id := range ids {
		vecs := evidence[id]
		if dim < 0 {
			dim = len(vecs[0])
		}
		sum := make([]float64, dim)
		for i, v := range vecs {
			if len(v) != dim {
				return nil, fmt.Errorf("concept %d embedding %d has %d dimensions, expected %d: %w",
					id, i, len(v), dim, ErrDimensionMismatch)
			}
			for j, x := range v {
				sum[j] += float64(x)
			}
		}
		centroid := make([]float32, dim)
		n := float64(len(vecs))
		for j := range sum {
			centroid[j] = float32(sum[j] / n)
		}
		out = append(out, Prototype{
			ConceptID: id,
			Centroid:  centroid,
			Authority: Authority(len(vecs)),
			Support:   len(vecs),
		})
	}
	return out, nil
}
