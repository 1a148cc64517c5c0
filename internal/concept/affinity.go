package concept

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/artatlas/internal/models"
)

// AffinityStore reads artwork embeddings and persists propagated mappings.
type AffinityStore interface {
	ArtworkEmbeddings(ctx context.Context) (map[int64][]float32, error)
	UpsertArtworkConcepts(ctx context.Context, mappings []models.ArtworkConcept, batchSize int) error
}

// AffinityGenerator propagates concepts from curated prototypes to catalog artworks.
type AffinityGenerator struct {
	cache     *Cache
	store     AffinityStore
	pool      *ants.Pool
	threshold float64
	maxPer    int
	batchSize int
	logger    *zap.Logger
}

// AffinityOption configures an AffinityGenerator.
type AffinityOption func(*AffinityGenerator) error

// WithWorkers sets the size of the scoring pool.
func WithWorkers(n int) AffinityOption {
	return func(g *AffinityGenerator) error {
		if n < 1 {
			return fmt.Errorf("workers must be positive")
		}
		pool, err := ants.NewPool(n)
		if err != nil {
			return err
		}
		g.pool.Release()
		g.pool = pool
		return nil
	}
}

// WithAffinityThreshold sets the minimum confidence of a propagated mapping. Zero keeps
// DefaultThreshold; KeepAll propagates every scored concept up to the per-artwork limit.
func WithAffinityThreshold(t float64) AffinityOption {
	return func(g *AffinityGenerator) error {
		g.threshold = t
		return nil
	}
}

// WithMaxPerArtwork limits how many concepts are attached to each artwork.
func WithMaxPerArtwork(n int) AffinityOption {
	return func(g *AffinityGenerator) error {
		g.maxPer = n
		return nil
	}
}

// WithBatchSize sets the number of rows written per statement batch.
func WithBatchSize(n int) AffinityOption {
	return func(g *AffinityGenerator) error {
		if n > 0 {
			g.batchSize = n
		}
		return nil
	}
}

// WithAffinityLogger sets the logger.
func WithAffinityLogger(l *zap.Logger) AffinityOption {
	return func(g *AffinityGenerator) error {
		if l != nil {
			g.logger = l
		}
		return nil
	}
}

// NewAffinityGenerator creates a generator scoring against cache's current snapshot.
// Release must be called to free the worker pool.
func NewAffinityGenerator(cache *Cache, store AffinityStore, opts ...AffinityOption) (*AffinityGenerator, error) {
	size := runtime.NumCPU() / 2
	if size < 1 {
		size = 1
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}
	g := &AffinityGenerator{
		cache:     cache,
		store:     store,
		pool:      pool,
		threshold: DefaultThreshold,
		maxPer:    2,
		batchSize: 500,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			g.Release()
			return nil, err
		}
	}
	return g, nil
}

// Release frees the worker pool.
func (g *AffinityGenerator) Release() {
	if g.pool != nil {
		g.pool.Release()
	}
}

// Generate scores every artwork embedding against the current prototypes and returns the
// mappings ordered by artwork ID, then concept ID.
func (g *AffinityGenerator) Generate(ctx context.Context) ([]models.ArtworkConcept, error) {
	snap := g.cache.Load()
	if len(snap.Prototypes) == 0 {
		g.logger.Warn("no concept prototypes available; skipping affinity generation")
		return nil, nil
	}
	embeddings, err := g.store.ArtworkEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load artwork embeddings: %w", err)
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		out  = make([]models.ArtworkConcept, 0, len(embeddings)*g.maxPer)
		opts = ScoreOptions{Threshold: g.threshold, MaxMatches: g.maxPer}
	)
	for artworkID, emb := range embeddings {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}
		artworkID, emb := artworkID, emb
		wg.Add(1)
		submitErr := g.pool.Submit(func() {
			defer wg.Done()
			matches := Score(emb, snap.Prototypes, opts)
			if len(matches) == 0 {
				return
			}
			mu.Lock()
			for _, m := range matches {
				out = append(out, models.ArtworkConcept{
					ArtworkID:  artworkID,
					ConceptID:  m.ConceptID,
					Confidence: m.ConfidenceScore,
				})
			}
			mu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
			wg.Wait()
			return nil, fmt.Errorf("submit affinity task: %w", submitErr)
		}
	}
	wg.Wait()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ArtworkID != out[j].ArtworkID {
			return out[i].ArtworkID < out[j].ArtworkID
		}
		return out[i].ConceptID < out[j].ConceptID
	})
	g.logger.Info("artwork concept affinities generated",
		zap.Int("artworks", len(embeddings)),
		zap.Int("mappings", len(out)))
	return out, nil
}

// Persist writes mappings with last-write-wins upserts in a single transaction.
func (g *AffinityGenerator) Persist(ctx context.Context, mappings []models.ArtworkConcept) error {
	if len(mappings) == 0 {
		return nil
	}
	if err := g.store.UpsertArtworkConcepts(ctx, mappings, g.batchSize); err != nil {
		return fmt.Errorf("persist artwork concepts: %w", err)
	}
	return nil
}
