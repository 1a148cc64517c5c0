package evidence

import (
	"context"

	"github.com/hyperjump/artatlas/internal/concept"
	"github.com/hyperjump/artatlas/internal/models"
	"github.com/hyperjump/artatlas/internal/vector"
)

// VectorLookup returns the stored embedding of an item.
type VectorLookup interface {
	Vector(id int64) ([]float32, bool)
}

// PrototypeSimilarity scores items against the prototypes of a concept snapshot
// using the embeddings held by the per-corpus vector indexes.
type PrototypeSimilarity struct {
	Snapshot *concept.Snapshot
	Vectors  map[models.Corpus]VectorLookup
}

// Similarities returns the cosine similarity of every item with every requested concept
// that has a prototype. Items without a stored embedding are skipped.
func (p *PrototypeSimilarity) Similarities(ctx context.Context, corpus models.Corpus, itemIDs, conceptIDs []int64) ([]Pair, error) {
	lookup, ok := p.Vectors[corpus]
	if !ok || p.Snapshot == nil {
		return nil, nil
	}
	wanted := make(map[int64]bool, len(conceptIDs))
	for _, id := range conceptIDs {
		wanted[id] = true
	}
	var protos []concept.Prototype
	for _, proto := range p.Snapshot.Prototypes {
		if wanted[proto.ConceptID] {
			protos = append(protos, proto)
		}
	}
	if len(protos) == 0 {
		return nil, nil
	}

	var out []Pair
	for _, id := range itemIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, ok := lookup.Vector(id)
		if !ok {
			continue
		}
		for _, proto := range protos {
			out = append(out, Pair{
				ItemID:     id,
				ConceptID:  proto.ConceptID,
				Similarity: vector.Cosine(v, proto.Centroid),
			})
		}
	}
	return out, nil
}
