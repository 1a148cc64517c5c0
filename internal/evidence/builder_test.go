package evidence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/artatlas/internal/concept"
	"github.com/hyperjump/artatlas/internal/models"
)

type staticSimilarity map[models.Corpus][]Pair

func (s staticSimilarity) Similarities(ctx context.Context, corpus models.Corpus, itemIDs, conceptIDs []int64) ([]Pair, error) {
	items := make(map[int64]bool, len(itemIDs))
	for _, id := range itemIDs {
		items[id] = true
	}
	var out []Pair
	for _, p := range s[corpus] {
		if items[p.ItemID] {
			out = append(out, p)
		}
	}
	return out, nil
}

type failingSimilarity struct{}

func (failingSimilarity) Similarities(ctx context.Context, corpus models.Corpus, itemIDs, conceptIDs []int64) ([]Pair, error) {
	return nil, errors.New("connection refused")
}

func results(items ...*models.RetrievalItem) []*models.RetrievalItem { return items }

func artwork(id int64) *models.RetrievalItem {
	return &models.RetrievalItem{ID: id, Type: models.CorpusArtwork}
}

func essay(id int64) *models.RetrievalItem {
	return &models.RetrievalItem{ID: id, Type: models.CorpusEssay}
}

func TestMean(t *testing.T) {
	members := []ItemEvidence{{MappingConfidence: 0.6}, {MappingConfidence: 0.8}, {MappingConfidence: 0.9}}
	assert.InDelta(t, 0.7666666666666666, Mean(members), 1e-12)
	assert.Equal(t, 0.0, Mean(nil))
}

func TestBuild_BundleConfidenceIsMean(t *testing.T) {
	src := staticSimilarity{models.CorpusArtwork: {
		{ItemID: 1, ConceptID: 7, Similarity: 0.6},
		{ItemID: 2, ConceptID: 7, Similarity: 0.8},
		{ItemID: 3, ConceptID: 7, Similarity: 0.9},
	}}
	detected := []concept.Match{{ConceptID: 7, ConceptName: "Vanitas", ConfidenceScore: 0.9}}
	bundles, err := NewBuilder(src).Build(context.Background(), "vanitas", detected,
		results(artwork(1), artwork(2), artwork(3)))
	require.NoError(t, err)
	require.Len(t, bundles, 1)

	b := bundles[0]
	assert.Equal(t, int64(7), b.PrimaryConcept)
	assert.Equal(t, "Vanitas", b.ConceptName)
	assert.InDelta(t, 0.7666666666666666, b.EvidenceConfidence, 1e-12)
	assert.Equal(t, Mean(b.Members()), b.EvidenceConfidence)
	assert.Equal(t, []int64{3, 2, 1}, []int64{b.Artworks[0].ItemID, b.Artworks[1].ItemID, b.Artworks[2].ItemID})
	require.Len(t, b.Justifications, 3)
	assert.Equal(t, ArtworkSupportsConcept, b.Justifications[0].Type)
	assert.Equal(t, ProvenanceEmbeddingSimilarity, b.Justifications[0].Provenance)
	assert.NotEmpty(t, b.EvidenceID)
}

func TestBuild_ThresholdAndEmptyBundles(t *testing.T) {
	src := staticSimilarity{models.CorpusArtwork: {
		{ItemID: 1, ConceptID: 1, Similarity: 0.59},
		{ItemID: 1, ConceptID: 2, Similarity: 0.6},
	}}
	detected := []concept.Match{{ConceptID: 1}, {ConceptID: 2}}
	bundles, err := NewBuilder(src).Build(context.Background(), "q", detected, results(artwork(1)))
	require.NoError(t, err)
	require.Len(t, bundles, 1)
	assert.Equal(t, int64(2), bundles[0].PrimaryConcept)
}

func TestBuild_NeverEssayOnly(t *testing.T) {
	src := staticSimilarity{
		models.CorpusArtwork: {{ItemID: 1, ConceptID: 1, Similarity: 0.7}},
		models.CorpusEssay: {
			{ItemID: 10, ConceptID: 1, Similarity: 0.9},
			{ItemID: 11, ConceptID: 2, Similarity: 0.95},
		},
	}
	detected := []concept.Match{{ConceptID: 1}, {ConceptID: 2}}
	bundles, err := NewBuilder(src).Build(context.Background(), "q", detected,
		results(artwork(1), essay(10), essay(11)))
	require.NoError(t, err)
	require.Len(t, bundles, 1, "concept 2 has only essay evidence")

	b := bundles[0]
	require.Len(t, b.Essays, 1)
	assert.Equal(t, int64(10), b.Essays[0].ItemID)
	assert.InDelta(t, 0.8, b.EvidenceConfidence, 1e-12)
	assert.Equal(t, EssaySupportsConcept, b.Justifications[1].Type)

	onlyEssays, err := NewBuilder(src).Build(context.Background(), "q", detected, results(essay(10)))
	require.NoError(t, err)
	assert.Empty(t, onlyEssays)
}

func TestBuild_RestrictedToResultSet(t *testing.T) {
	src := staticSimilarity{models.CorpusArtwork: {
		{ItemID: 1, ConceptID: 1, Similarity: 0.9},
		{ItemID: 99, ConceptID: 1, Similarity: 0.99},
	}}
	bundles, err := NewBuilder(src).Build(context.Background(), "q",
		[]concept.Match{{ConceptID: 1}}, results(artwork(1)))
	require.NoError(t, err)
	require.Len(t, bundles, 1)
	require.Len(t, bundles[0].Artworks, 1)
	assert.Equal(t, int64(1), bundles[0].Artworks[0].ItemID)
}

func TestBuild_EvidenceIDDeterministic(t *testing.T) {
	src := staticSimilarity{models.CorpusArtwork: {{ItemID: 1, ConceptID: 1, Similarity: 0.9}}}
	detected := []concept.Match{{ConceptID: 1}}
	a, _ := NewBuilder(src).Build(context.Background(), "baroque", detected, results(artwork(1)))
	b, _ := NewBuilder(src).Build(context.Background(), "baroque", detected, results(artwork(1)))
	c, _ := NewBuilder(src).Build(context.Background(), "rococo", detected, results(artwork(1)))
	assert.Equal(t, a[0].EvidenceID, b[0].EvidenceID)
	assert.NotEqual(t, a[0].EvidenceID, c[0].EvidenceID)
}

func TestBuild_SourceError(t *testing.T) {
	_, err := NewBuilder(failingSimilarity{}).Build(context.Background(), "q",
		[]concept.Match{{ConceptID: 1}}, results(artwork(1)))
	assert.Error(t, err)
}

func TestBuild_WithThreshold(t *testing.T) {
	src := staticSimilarity{models.CorpusArtwork: {{ItemID: 1, ConceptID: 1, Similarity: 0.65}}}
	bundles, err := NewBuilder(src, WithThreshold(0.7)).Build(context.Background(), "q",
		[]concept.Match{{ConceptID: 1}}, results(artwork(1)))
	require.NoError(t, err)
	assert.Empty(t, bundles)
}

func TestBuild_KeepAllThreshold(t *testing.T) {
	src := staticSimilarity{models.CorpusArtwork: {{ItemID: 1, ConceptID: 1, Similarity: 0.2}}}
	bundles, err := NewBuilder(src, WithThreshold(concept.KeepAll)).Build(context.Background(), "q",
		[]concept.Match{{ConceptID: 1}}, results(artwork(1)))
	require.NoError(t, err)
	require.Len(t, bundles, 1)
	assert.InDelta(t, 0.2, bundles[0].EvidenceConfidence, 1e-9)

	bundles, err = NewBuilder(src, WithThreshold(0)).Build(context.Background(), "q",
		[]concept.Match{{ConceptID: 1}}, results(artwork(1)))
	require.NoError(t, err)
	assert.Empty(t, bundles, "zero keeps the default threshold")
}

type mapLookup map[int64][]float32

func (m mapLookup) Vector(id int64) ([]float32, bool) {
	v, ok := m[id]
	return v, ok
}

func TestPrototypeSimilarity(t *testing.T) {
	snap := &concept.Snapshot{Prototypes: []concept.Prototype{
		{ConceptID: 1, Centroid: []float32{1, 0}, Authority: 1},
		{ConceptID: 2, Centroid: []float32{0, 1}, Authority: 1},
	}}
	ps := &PrototypeSimilarity{
		Snapshot: snap,
		Vectors:  map[models.Corpus]VectorLookup{models.CorpusArtwork: mapLookup{5: {1, 0}}},
	}
	pairs, err := ps.Similarities(context.Background(), models.CorpusArtwork, []int64{5, 6}, []int64{1})
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, Pair{ItemID: 5, ConceptID: 1, Similarity: 1}, pairs[0])

	pairs, err = ps.Similarities(context.Background(), models.CorpusEssay, []int64{5}, []int64{1})
	require.NoError(t, err)
	assert.Empty(t, pairs)
}
