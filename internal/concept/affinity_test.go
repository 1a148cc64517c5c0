package concept

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/artatlas/internal/models"
)

type memoryAffinityStore struct {
	mu         sync.Mutex
	embeddings map[int64][]float32
	rows       map[[2]int64]float64
}

func (m *memoryAffinityStore) ArtworkEmbeddings(ctx context.Context) (map[int64][]float32, error) {
	return m.embeddings, nil
}

func (m *memoryAffinityStore) UpsertArtworkConcepts(ctx context.Context, mappings []models.ArtworkConcept, batchSize int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows == nil {
		m.rows = make(map[[2]int64]float64)
	}
	for _, r := range mappings {
		m.rows[[2]int64{r.ArtworkID, r.ConceptID}] = r.Confidence
	}
	return nil
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c := NewCache(&fakeSource{
		concepts: []*models.Concept{{ID: 1, Name: "Landscape"}, {ID: 2, Name: "Still life"}, {ID: 3, Name: "Portrait"}},
		evidence: map[int64][][]float32{
			1: {{1, 0, 0}, {1, 0, 0}},
			2: {{0, 1, 0}, {0, 1, 0}},
			3: {{0.7, 0.7, 0}, {0.7, 0.7, 0}},
		},
	})
	require.NoError(t, c.Refresh(context.Background()))
	return c
}

func TestAffinityGenerator_Generate(t *testing.T) {
	store := &memoryAffinityStore{embeddings: map[int64][]float32{
		30: {0, 1, 0},
		10: {1, 0, 0},
		20: {0, 0, 1},
		40: {1, 1, 0},
	}}
	g, err := NewAffinityGenerator(newTestCache(t), store, WithWorkers(3))
	require.NoError(t, err)
	defer g.Release()

	got, err := g.Generate(context.Background())
	require.NoError(t, err)

	assert.True(t, sort.SliceIsSorted(got, func(i, j int) bool {
		if got[i].ArtworkID != got[j].ArtworkID {
			return got[i].ArtworkID < got[j].ArtworkID
		}
		return got[i].ConceptID < got[j].ConceptID
	}))

	perArtwork := map[int64]int{}
	for _, m := range got {
		perArtwork[m.ArtworkID]++
		assert.GreaterOrEqual(t, m.Confidence, DefaultThreshold)
	}
	assert.NotContains(t, perArtwork, int64(20), "orthogonal artwork gets no concept")
	assert.Equal(t, 2, perArtwork[10])
	assert.Equal(t, 2, perArtwork[40], "at most two concepts per artwork")
}

func TestAffinityGenerator_KeepAllThreshold(t *testing.T) {
	store := &memoryAffinityStore{embeddings: map[int64][]float32{10: {1, 0, 0}}}
	g, err := NewAffinityGenerator(newTestCache(t), store, WithAffinityThreshold(KeepAll), WithMaxPerArtwork(3))
	require.NoError(t, err)
	defer g.Release()

	got, err := g.Generate(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 3, "every scored concept is kept")

	g2, err := NewAffinityGenerator(newTestCache(t), store, WithAffinityThreshold(0), WithMaxPerArtwork(3))
	require.NoError(t, err)
	defer g2.Release()
	got, err = g2.Generate(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2, "zero falls back to the detection threshold")
}

func TestAffinityGenerator_PersistIsIdempotent(t *testing.T) {
	store := &memoryAffinityStore{embeddings: map[int64][]float32{1: {1, 0.1, 0}, 2: {0.1, 1, 0}}}
	g, err := NewAffinityGenerator(newTestCache(t), store)
	require.NoError(t, err)
	defer g.Release()

	ctx := context.Background()
	first, err := g.Generate(ctx)
	require.NoError(t, err)
	require.NoError(t, g.Persist(ctx, first))
	snapshot := make(map[[2]int64]float64, len(store.rows))
	for k, v := range store.rows {
		snapshot[k] = v
	}

	second, err := g.Generate(ctx)
	require.NoError(t, err)
	require.NoError(t, g.Persist(ctx, second))
	assert.Equal(t, first, second)
	assert.Equal(t, snapshot, store.rows)
}

func TestAffinityGenerator_NoPrototypes(t *testing.T) {
	g, err := NewAffinityGenerator(NewCache(&fakeSource{}), &memoryAffinityStore{})
	require.NoError(t, err)
	defer g.Release()
	got, err := g.Generate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWithWorkers_Invalid(t *testing.T) {
	_, err := NewAffinityGenerator(NewCache(&fakeSource{}), &memoryAffinityStore{}, WithWorkers(0))
	assert.Error(t, err)
}
