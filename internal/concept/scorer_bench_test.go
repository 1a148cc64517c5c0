package concept

import (
	"context"
	"testing"

	"github.com/hyperjump/artatlas/internal/embedding"
)

func BenchmarkScore(b *testing.B) {
	e := embedding.NewMockEmbedder(384)
	ctx := context.Background()
	prototypes := make([]Prototype, 14)
	for i := range prototypes {
		v, _ := e.Embed(ctx, string(rune('a'+i)))
		prototypes[i] = Prototype{ConceptID: int64(i + 1), Centroid: v, Authority: 1, Support: 3}
	}
	query, _ := e.Embed(ctx, "benchmark query text for concept detection")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Score(query, prototypes, ScoreOptions{Threshold: 0.7, MaxMatches: 2})
	}
}
