// Package retrieval implements per-corpus hybrid lexical and vector retrieval.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/artatlas/internal/config"
	"github.com/hyperjump/artatlas/internal/keyword"
	"github.com/hyperjump/artatlas/internal/models"
	"github.com/hyperjump/artatlas/internal/storage"
	"github.com/hyperjump/artatlas/internal/vector"
)

// Trace sources recorded on retrieved items.
const (
	SourceAggregatedMetadata = "aggregated_metadata"
	SourceArtworkEmbedding   = "artwork_embedding"
	SourceEssayText          = "essay_text"
	SourceEssayChunk         = "essay_chunk"
)

// Hydrator loads catalog records for vector hits.
type Hydrator interface {
	Hydrate(ctx context.Context, ids []int64) (map[int64]*models.RetrievalItem, error)
}

// Retriever runs lexical search first and then vector search over one corpus.
// Vector search is restricted to the lexical hits when there are any and
// falls back to the whole corpus otherwise.
type Retriever struct {
	corpus         models.Corpus
	keyword        keyword.Index
	vectors        vector.Index
	hydrator       Hydrator
	weights        Weights
	lexicalLimit   int
	vectorLimit    int
	lexicalSource  string
	semanticSource string
	logger         *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithWeights overrides the lexical/semantic blend.
func WithWeights(w Weights) Option {
	return func(r *Retriever) {
		r.weights = w
	}
}

// WithLimits sets the lexical candidate and vector result limits.
func WithLimits(lexical, vector int) Option {
	return func(r *Retriever) {
		if lexical > 0 {
			r.lexicalLimit = lexical
		}
		if vector > 0 {
			r.vectorLimit = vector
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewArtworkRetriever returns a retriever over the artwork corpus (limits 50/3).
func NewArtworkRetriever(kw keyword.Index, vec vector.Index, store storage.Storage, opts ...Option) *Retriever {
	r := &Retriever{
		corpus:         models.CorpusArtwork,
		keyword:        kw,
		vectors:        vec,
		hydrator:       ArtworkHydrator{Store: store},
		weights:        DefaultWeights(),
		lexicalLimit:   50,
		vectorLimit:    3,
		lexicalSource:  SourceAggregatedMetadata,
		semanticSource: SourceArtworkEmbedding,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewEssayRetriever returns a retriever over the essay corpus (limits 20/2).
func NewEssayRetriever(kw keyword.Index, vec vector.Index, store storage.Storage, opts ...Option) *Retriever {
	r := &Retriever{
		corpus:         models.CorpusEssay,
		keyword:        kw,
		vectors:        vec,
		hydrator:       EssayHydrator{Store: store},
		weights:        DefaultWeights(),
		lexicalLimit:   20,
		vectorLimit:    2,
		lexicalSource:  SourceEssayText,
		semanticSource: SourceEssayChunk,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OptionsFromConfig maps the search config onto retriever options for corpus.
func OptionsFromConfig(cfg *config.SearchConfig, corpus models.Corpus) []Option {
	if cfg == nil {
		return nil
	}
	opts := []Option{WithWeights(Weights{
		Lexical:         cfg.LexicalWeight,
		Semantic:        cfg.SemanticWeight,
		FallbackPenalty: cfg.FallbackPenalty,
	})}
	switch corpus {
	case models.CorpusArtwork:
		opts = append(opts, WithLimits(cfg.ArtworkLexicalLimit, cfg.ArtworkVectorLimit))
	case models.CorpusEssay:
		opts = append(opts, WithLimits(cfg.EssayLexicalLimit, cfg.EssayVectorLimit))
	}
	return opts
}

// Corpus returns the corpus this retriever searches.
func (r *Retriever) Corpus() models.Corpus {
	return r.corpus
}

// Retrieve returns up to the vector limit of items for query, ordered by
// final score descending then ID ascending. Only vector hits are returned;
// lexical hits contribute their normalized score and trace.
func (r *Retriever) Retrieve(ctx context.Context, query string, embedding []float32, opts *keyword.SearchOptions) ([]*models.RetrievalItem, error) {
	lexical, err := r.keyword.Search(ctx, query, r.lexicalLimit, opts)
	if err != nil {
		return nil, fmt.Errorf("%s lexical search failed: %w", r.corpus, err)
	}
	lexicalScores := NormalizeKeywordScores(lexical)
	lexicalByID := make(map[int64]*keyword.Result, len(lexical))
	var filter map[int64]struct{}
	if len(lexical) > 0 {
		filter = make(map[int64]struct{}, len(lexical))
		for _, hit := range lexical {
			filter[hit.ID] = struct{}{}
			lexicalByID[hit.ID] = hit
		}
	}

	hits, err := r.vectors.Search(ctx, embedding, r.vectorLimit, filter)
	if err != nil {
		return nil, fmt.Errorf("%s vector search failed: %w", r.corpus, err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	records, err := r.hydrator.Hydrate(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%s hydrate failed: %w", r.corpus, err)
	}

	items := make([]*models.RetrievalItem, 0, len(hits))
	for _, h := range hits {
		item, ok := records[h.ID]
		if !ok {
			r.logger.Warn("vector hit missing from catalog",
				zap.String("corpus", string(r.corpus)), zap.Int64("id", h.ID))
			continue
		}
		lex := lexicalScores[h.ID]
		item.LexicalScore = lex
		item.SemanticScore = h.Score
		item.FinalScore = Blend(lex, h.Score, r.weights)
		item.Trace = models.RetrievalTrace{
			Semantic: &models.SemanticMatch{Similarity: h.Score, Source: r.semanticSource},
			Fallback: filter == nil,
		}
		if hit, ok := lexicalByID[h.ID]; ok && len(hit.MatchedTerms) > 0 {
			item.Trace.Lexical = &models.LexicalMatch{
				Source:         r.lexicalSource,
				MatchedLexemes: hit.MatchedTerms,
				MatchedFields:  hit.MatchedFields,
			}
		}
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].FinalScore != items[j].FinalScore {
			return items[i].FinalScore > items[j].FinalScore
		}
		return items[i].ID < items[j].ID
	})

	r.logger.Debug("retrieved",
		zap.String("corpus", string(r.corpus)),
		zap.Int("lexical_hits", len(lexical)),
		zap.Int("results", len(items)),
		zap.Bool("fallback", filter == nil))
	return items, nil
}
