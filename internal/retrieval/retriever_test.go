package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/artatlas/internal/config"
	"github.com/hyperjump/artatlas/internal/keyword"
	"github.com/hyperjump/artatlas/internal/models"
	"github.com/hyperjump/artatlas/internal/storage"
	"github.com/hyperjump/artatlas/internal/vector"
)

type fixture struct {
	store    *storage.SQLiteStorage
	artworks *keyword.BleveIndex
	vectors  *vector.MemoryIndex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	kw, err := keyword.NewArtworkIndex("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { kw.Close() })

	vec, err := vector.NewMemoryIndex(2)
	require.NoError(t, err)

	artworks := []*models.Artwork{
		{ID: 1, Title: "Vanitas Still Life", Artist: "Pieter Claesz", Embedding: []float32{1, 0}},
		{ID: 2, Title: "Harvest Landscape", Artist: "Pieter Bruegel", Embedding: []float32{0.9, 0.1}},
		{ID: 3, Title: "Vanitas with Skull", Artist: "Unknown", Embedding: []float32{0, 1}},
	}
	for _, a := range artworks {
		require.NoError(t, store.UpsertArtwork(ctx, a))
		require.NoError(t, kw.Index(ctx, a.ID, map[string]string{"title": a.Title, "artist": a.Artist}))
		require.NoError(t, vec.Upsert(ctx, []int64{a.ID}, [][]float32{a.Embedding}))
	}
	return &fixture{store: store, artworks: kw, vectors: vec}
}

func TestBlend(t *testing.T) {
	w := DefaultWeights()
	assert.InDelta(t, 0.4*0.5+0.6*0.8, Blend(0.5, 0.8, w), 1e-9)
	assert.InDelta(t, 0.6*0.8*0.7, Blend(0, 0.8, w), 1e-9)
}

func TestNormalizeKeywordScores(t *testing.T) {
	m := NormalizeKeywordScores([]*keyword.Result{{ID: 1, Score: 2}, {ID: 2, Score: 4}, {ID: 3, Score: 1}})
	assert.Equal(t, 1.0, m[2])
	assert.Equal(t, 0.5, m[1])
	assert.Len(t, m, 3)
	assert.Empty(t, NormalizeKeywordScores(nil))
}

func TestRetrieve_lexicalHitsRestrictVectorSearch(t *testing.T) {
	f := newFixture(t)
	r := NewArtworkRetriever(f.artworks, f.vectors, f.store)

	items, err := r.Retrieve(context.Background(), "vanitas", []float32{1, 0}, nil)
	require.NoError(t, err)
	require.Len(t, items, 2)

	ids := []int64{items[0].ID, items[1].ID}
	assert.ElementsMatch(t, []int64{1, 3}, ids)
	assert.Equal(t, int64(1), items[0].ID, "closest lexical hit ranks first")

	top := items[0]
	assert.Equal(t, models.CorpusArtwork, top.Type)
	assert.Equal(t, "Vanitas Still Life", top.Title)
	assert.Greater(t, top.LexicalScore, 0.0)
	assert.InDelta(t, 1.0, top.SemanticScore, 1e-6)
	assert.InDelta(t, 0.4*top.LexicalScore+0.6*top.SemanticScore, top.FinalScore, 1e-9)
	assert.False(t, top.Trace.Fallback)
	require.NotNil(t, top.Trace.Lexical)
	assert.Equal(t, SourceAggregatedMetadata, top.Trace.Lexical.Source)
	assert.Contains(t, top.Trace.Lexical.MatchedLexemes, "vanitas")
	assert.Contains(t, top.Trace.Lexical.MatchedFields, "title")
	require.NotNil(t, top.Trace.Semantic)
	assert.Equal(t, SourceArtworkEmbedding, top.Trace.Semantic.Source)
}

func TestRetrieve_vectorFallbackWhenNoLexicalHits(t *testing.T) {
	f := newFixture(t)
	r := NewArtworkRetriever(f.artworks, f.vectors, f.store, WithLimits(50, 2))

	items, err := r.Retrieve(context.Background(), "impressionism", []float32{1, 0}, nil)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, int64(1), items[0].ID)
	assert.Equal(t, int64(2), items[1].ID)
	for _, it := range items {
		assert.True(t, it.Trace.Fallback)
		assert.Nil(t, it.Trace.Lexical)
		assert.Zero(t, it.LexicalScore)
		assert.InDelta(t, 0.6*it.SemanticScore*0.7, it.FinalScore, 1e-9)
	}
}

func TestRetrieve_expansionTermsWidenLexicalCandidates(t *testing.T) {
	f := newFixture(t)
	r := NewArtworkRetriever(f.artworks, f.vectors, f.store)

	items, err := r.Retrieve(context.Background(), "bruegel", []float32{1, 0},
		&keyword.SearchOptions{ExpansionTerms: []string{"vanitas"}})
	require.NoError(t, err)
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	assert.ElementsMatch(t, []int64{1, 2, 3}, ids)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	f := newFixture(t)
	r := NewEssayRetriever(f.artworks, f.vectors, f.store, OptionsFromConfig(&cfg.Search, models.CorpusEssay)...)
	assert.Equal(t, models.CorpusEssay, r.Corpus())
	assert.Equal(t, 20, r.lexicalLimit)
	assert.Equal(t, 2, r.vectorLimit)
	assert.Equal(t, DefaultWeights(), r.weights)
}
