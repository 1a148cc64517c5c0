// Package search provides the concept-grounded hybrid search engine.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/artatlas/internal/concept"
	"github.com/hyperjump/artatlas/internal/config"
	"github.com/hyperjump/artatlas/internal/embedding"
	"github.com/hyperjump/artatlas/internal/evidence"
	"github.com/hyperjump/artatlas/internal/explain"
	"github.com/hyperjump/artatlas/internal/keyword"
	"github.com/hyperjump/artatlas/internal/models"
	"github.com/hyperjump/artatlas/internal/ranking"
	"github.com/hyperjump/artatlas/internal/retrieval"
	"github.com/hyperjump/artatlas/internal/storage"
	"github.com/hyperjump/artatlas/internal/vector"
)

// ErrEmbeddingUnavailable is returned when the query cannot be embedded.
var ErrEmbeddingUnavailable = errors.New("embedding unavailable")

// Indexes groups the per-corpus lexical and vector indexes.
type Indexes struct {
	ArtworkKeyword keyword.Index
	EssayKeyword   keyword.Index
	ArtworkVectors vector.Index
	EssayVectors   vector.Index
}

// Engine answers queries: concept detection and artwork retrieval run on one
// branch, essay retrieval on another, then results are merged, rescored and explained.
type Engine struct {
	store    storage.Storage
	embedder embedding.Embedder
	concepts *concept.Cache
	artworks *retrieval.Retriever
	essays   *retrieval.Retriever
	ranker   *ranking.Ranker
	vectors  map[models.Corpus]evidence.VectorLookup
	// similarity overrides prototype similarity as the evidence source.
	similarity evidence.SimilaritySource
	indexes    Indexes
	config     *config.Config
	logger     *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithSimilaritySource makes bundling read item-concept similarities from src
// instead of comparing stored item vectors with the prototypes.
func WithSimilaritySource(src evidence.SimilaritySource) Option {
	return func(e *Engine) {
		e.similarity = src
	}
}

// NewEngine creates a search engine with the given dependencies. A nil cfg uses defaults.
func NewEngine(
	store storage.Storage,
	embedder embedding.Embedder,
	indexes Indexes,
	concepts *concept.Cache,
	cfg *config.Config,
	opts ...Option,
) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	e := &Engine{
		store:    store,
		embedder: embedder,
		concepts: concepts,
		indexes:  indexes,
		config:   cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.artworks = retrieval.NewArtworkRetriever(indexes.ArtworkKeyword, indexes.ArtworkVectors, store,
		append(retrieval.OptionsFromConfig(&cfg.Search, models.CorpusArtwork), retrieval.WithLogger(e.logger))...)
	e.essays = retrieval.NewEssayRetriever(indexes.EssayKeyword, indexes.EssayVectors, store,
		append(retrieval.OptionsFromConfig(&cfg.Search, models.CorpusEssay), retrieval.WithLogger(e.logger))...)
	e.ranker = ranking.NewRanker(ranking.FromSearchConfig(&cfg.Search), store)
	e.vectors = map[models.Corpus]evidence.VectorLookup{
		models.CorpusArtwork: indexes.ArtworkVectors,
		models.CorpusEssay:   indexes.EssayVectors,
	}
	return e
}

// Concepts returns the prototype cache backing detection.
func (e *Engine) Concepts() *concept.Cache {
	return e.concepts
}

// VectorIndexSize returns the number of vectors held per corpus.
func (e *Engine) VectorIndexSize() map[models.Corpus]int {
	return map[models.Corpus]int{
		models.CorpusArtwork: e.indexes.ArtworkVectors.Size(),
		models.CorpusEssay:   e.indexes.EssayVectors.Size(),
	}
}

// Search runs the full pipeline for query. Only an invalid query, an embedding
// failure or an embedding of the wrong length is an error; branch failures yield
// empty branches and an invalid explanation graph is left out of the response.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*Response, error) {
	startTime := time.Now()
	if err := query.Validate(); err != nil {
		return nil, err
	}

	queryEmbedding, err := e.embedder.Embed(ctx, query.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	snapshot := e.concepts.Load()
	if snapshot == nil {
		// prototypes not built yet; nothing can be detected
		snapshot = &concept.Snapshot{}
	}
	if err := e.checkDimensions(len(queryEmbedding), snapshot); err != nil {
		return nil, err
	}

	var (
		detected []concept.Match
		artworks []*models.RetrievalItem
		essays   []*models.RetrievalItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		detected, artworks = e.artworkBranch(gctx, query.Query, queryEmbedding, snapshot)
		return nil
	})
	g.Go(func() error {
		essays = e.essayBranch(gctx, query.Query, queryEmbedding)
		return nil
	})
	_ = g.Wait()

	results := ranking.Merge(artworks, essays)
	rescored := false
	if len(detected) > 0 {
		if err := e.ranker.Rescore(ctx, results, detected); err != nil {
			e.logger.Warn("concept rescoring failed, keeping hybrid scores",
				zap.String("query", query.Query), zap.Error(err))
		} else {
			rescored = true
		}
	}
	if query.Limit > 0 && len(results) > query.Limit {
		results = results[:query.Limit]
	}
	ranking.AssignRanks(results)

	resp := &Response{
		Query:            query.Query,
		Message:          MessageSuccess,
		Results:          results,
		DetectedConcepts: detected,
	}
	if len(results) == 0 {
		resp.Message = MessageNoResults
		resp.Results = []*models.RetrievalItem{}
	}
	if resp.DetectedConcepts == nil {
		resp.DetectedConcepts = []concept.Match{}
	}
	e.explain(ctx, resp, snapshot)

	var artworkCount, essayCount int
	for _, r := range results {
		if r.Type == models.CorpusArtwork {
			artworkCount++
		} else {
			essayCount++
		}
	}
	resp.Metadata = Metadata{
		PathTaken:        pathTaken(results, rescored),
		ArtworkResults:   artworkCount,
		EssayResults:     essayCount,
		DetectedConcepts: len(detected),
		QueryTimeMS:      time.Since(startTime).Milliseconds(),
	}
	return resp, nil
}

// artworkBranch detects concepts, selects expansion terms and retrieves artworks.
// Detection survives a retrieval failure.
func (e *Engine) artworkBranch(ctx context.Context, query string, vec []float32, snapshot *concept.Snapshot) ([]concept.Match, []*models.RetrievalItem) {
	ctx, cancel := context.WithTimeout(ctx, e.branchTimeout())
	defer cancel()

	detected := snapshot.Score(vec, e.config.Concepts.DetectionThreshold, e.config.Concepts.MaxPerQuery)

	var expansions []string
	for i := range detected {
		m := &detected[i]
		if m.ConceptType != concept.Primary || m.ConceptName == "" {
			continue
		}
		ok, err := e.store.ConceptHasArtworkMappings(ctx, m.ConceptID)
		if err != nil {
			e.logger.Warn("expansion lookup failed", zap.Int64("concept_id", m.ConceptID), zap.Error(err))
			continue
		}
		if ok {
			m.UsedForExpansion = true
			expansions = append(expansions, m.ConceptName)
		}
	}

	var opts *keyword.SearchOptions
	if len(expansions) > 0 {
		opts = &keyword.SearchOptions{ExpansionTerms: expansions}
	}
	items, err := e.artworks.Retrieve(ctx, query, vec, opts)
	if err != nil {
		e.logger.Warn("artwork branch failed", zap.String("query", query), zap.Error(err))
		return detected, nil
	}
	return detected, items
}

func (e *Engine) essayBranch(ctx context.Context, query string, vec []float32) []*models.RetrievalItem {
	ctx, cancel := context.WithTimeout(ctx, e.branchTimeout())
	defer cancel()

	items, err := e.essays.Retrieve(ctx, query, vec, nil)
	if err != nil {
		e.logger.Warn("essay branch failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	return items
}

// explain builds evidence bundles and the explanation graph for resp. Any
// failure leaves the graph out and is logged.
func (e *Engine) explain(ctx context.Context, resp *Response, snapshot *concept.Snapshot) {
	var source evidence.SimilaritySource = &evidence.PrototypeSimilarity{Snapshot: snapshot, Vectors: e.vectors}
	if e.similarity != nil {
		source = e.similarity
	}
	builder := evidence.NewBuilder(
		source,
		evidence.WithThreshold(e.config.Concepts.BundlingThreshold),
		evidence.WithLogger(e.logger),
	)
	bundles, err := builder.Build(ctx, resp.Query, resp.DetectedConcepts, resp.Results)
	if err != nil {
		e.logger.Warn("evidence bundling failed", zap.String("query", resp.Query), zap.Error(err))
		return
	}
	resp.Bundles = bundles

	graph, err := explain.Build(resp.Query, resp.DetectedConcepts, bundles)
	if err != nil {
		e.logger.Warn("explanation graph build failed", zap.String("query", resp.Query), zap.Error(err))
		return
	}
	result := explain.Validate(graph, explain.ValidateOptions{
		StrictProvenance:  e.config.Explain.StrictProvenanceOrDefault(),
		ConfidenceEpsilon: e.config.Explain.ConfidenceEpsilon,
		BundleTolerance:   e.config.Explain.BundleTolerance,
	})
	if !result.OK() {
		e.logger.Warn("explanation graph failed validation",
			zap.String("query", resp.Query), zap.Strings("errors", result.Errors))
		return
	}
	resp.Explanation = graph
	resp.ExplanationWarnings = result.Warnings
}

// checkDimensions rejects a query embedding whose length differs from the
// prototypes or either vector index.
func (e *Engine) checkDimensions(n int, snapshot *concept.Snapshot) error {
	for _, c := range []struct {
		name string
		dims int
	}{
		{"concept prototypes", snapshot.Dimensions()},
		{"artwork vectors", e.indexes.ArtworkVectors.Dimensions()},
		{"essay vectors", e.indexes.EssayVectors.Dimensions()},
	} {
		if c.dims > 0 && c.dims != n {
			return fmt.Errorf("query embedding has %d dimensions, %s have %d: %w", n, c.name, c.dims, concept.ErrDimensionMismatch)
		}
	}
	return nil
}

func (e *Engine) branchTimeout() time.Duration {
	if ms := e.config.Search.BranchTimeoutMS; ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return 5 * time.Second
}
