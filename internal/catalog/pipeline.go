package catalog

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/artatlas/internal/concept"
	"github.com/hyperjump/artatlas/internal/config"
	"github.com/hyperjump/artatlas/internal/embedding"
	"github.com/hyperjump/artatlas/internal/extract"
	"github.com/hyperjump/artatlas/internal/models"
	"github.com/hyperjump/artatlas/internal/search"
	"github.com/hyperjump/artatlas/internal/storage"
	"github.com/hyperjump/artatlas/internal/vector"
)

// embedBatchSize caps the number of texts sent to the embedder at once.
const embedBatchSize = 64

// listPageSize is the page size used when re-indexing from the store.
const listPageSize = 500

// Pipeline ingests catalog records and maintains the concept vocabulary.
type Pipeline struct {
	store     storage.Storage
	embedder  embedding.Embedder
	indexes   search.Indexes
	concepts  *concept.Cache
	extractor *extract.Extractor
	chunker   *Chunker
	config    *config.Config
	logger    *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a logger for ingest events.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPipeline creates a pipeline writing to store and indexes. concepts may be nil, in
// which case Seed does not refresh prototypes and Affinities is unavailable.
func NewPipeline(
	store storage.Storage,
	embedder embedding.Embedder,
	indexes search.Indexes,
	concepts *concept.Cache,
	cfg *config.Config,
	opts ...Option,
) *Pipeline {
	if cfg == nil {
		cfg = config.Default()
	}
	p := &Pipeline{
		store:     store,
		embedder:  embedder,
		indexes:   indexes,
		concepts:  concepts,
		extractor: extract.NewExtractor(),
		chunker:   NewChunker(cfg.Catalog.ChunkSize, cfg.Catalog.ChunkOverlap),
		config:    cfg,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SeedReport summarizes a Seed run.
type SeedReport struct {
	Concepts int   `json:"concepts"`
	Links    int64 `json:"links"`
	// Missing lists concept names referenced by essay links that do not exist.
	Missing []string `json:"missing,omitempty"`
}

// Seed upserts the curated concepts, links essays to them by title, then rebuilds the
// concept prototypes. A nil seed uses DefaultSeed.
func (p *Pipeline) Seed(ctx context.Context, seed *Seed) (*SeedReport, error) {
	if seed == nil {
		seed = DefaultSeed()
	}
	if err := seed.Normalize(); err != nil {
		return nil, err
	}
	report := &SeedReport{}
	ids := make(map[string]int64, len(seed.Concepts))
	for _, sc := range seed.Concepts {
		c := &models.Concept{Name: sc.Name, Type: sc.Type, Primary: sc.Primary}
		if err := p.store.UpsertConcept(ctx, c); err != nil {
			return nil, err
		}
		ids[c.Name] = c.ID
		report.Concepts++
	}
	for _, link := range seed.EssayLinks {
		n, missing, err := p.linkEssay(ctx, link.EssayTitle, link.Concepts, ids)
		if err != nil {
			return nil, err
		}
		report.Links += n
		report.Missing = append(report.Missing, missing...)
	}
	p.logger.Info("catalog seeded",
		zap.Int("concepts", report.Concepts),
		zap.Int64("links", report.Links),
		zap.Strings("missing", report.Missing),
	)
	if p.concepts != nil {
		if err := p.concepts.Refresh(ctx); err != nil {
			return report, fmt.Errorf("refresh concepts: %w", err)
		}
	}
	return report, nil
}

// linkEssay links title to each named concept, resolving names through known first.
func (p *Pipeline) linkEssay(ctx context.Context, title string, names []string, known map[string]int64) (int64, []string, error) {
	var total int64
	var missing []string
	for _, name := range names {
		id, ok := known[name]
		if !ok {
			c, err := p.store.GetConceptByName(ctx, name)
			if errors.Is(err, storage.ErrNotFound) {
				p.logger.Warn("essay link references unknown concept",
					zap.String("essay_title", title), zap.String("concept", name))
				missing = append(missing, name)
				continue
			}
			if err != nil {
				return total, missing, err
			}
			id = c.ID
		}
		n, err := p.store.LinkEssayTitle(ctx, title, id)
		if err != nil {
			return total, missing, err
		}
		total += n
	}
	return total, missing, nil
}

// Affinities propagates concepts to every artwork from the current prototypes and,
// when persist is set, stores the mappings.
func (p *Pipeline) Affinities(ctx context.Context, persist bool) ([]models.ArtworkConcept, error) {
	if p.concepts == nil {
		return nil, errors.New("concept cache not configured")
	}
	cc := p.config.Concepts
	g, err := concept.NewAffinityGenerator(p.concepts, p.store,
		concept.WithWorkers(cc.AffinityWorkers),
		concept.WithAffinityThreshold(cc.DetectionThreshold),
		concept.WithMaxPerArtwork(cc.MaxPerArtwork),
		concept.WithBatchSize(cc.AffinityBatchSize),
		concept.WithAffinityLogger(p.logger),
	)
	if err != nil {
		return nil, err
	}
	defer g.Release()
	mappings, err := g.Generate(ctx)
	if err != nil {
		return nil, err
	}
	if persist {
		if err := g.Persist(ctx, mappings); err != nil {
			return nil, err
		}
	}
	p.logger.Info("artwork affinities generated", zap.Int("mappings", len(mappings)), zap.Bool("persisted", persist))
	return mappings, nil
}

// Sync ingests every configured catalog directory, then applies seed.
func (p *Pipeline) Sync(ctx context.Context, seed *Seed) (*SeedReport, error) {
	var errs []error
	for _, dir := range p.config.Catalog.Directories {
		n, err := p.IngestDirectory(ctx, dir)
		if err != nil {
			errs = append(errs, err)
		}
		p.logger.Info("catalog directory ingested", zap.String("dir", dir), zap.Int("files", n))
	}
	report, err := p.Seed(ctx, seed)
	if err != nil {
		errs = append(errs, err)
	}
	return report, errors.Join(errs...)
}

// RebuildIndexes loads the vector indexes from stored embeddings. A lexical index that
// opened empty is repopulated from the store as well.
func (p *Pipeline) RebuildIndexes(ctx context.Context) error {
	artworkVecs, err := p.store.ArtworkEmbeddings(ctx)
	if err != nil {
		return err
	}
	if err := upsertAll(ctx, p.indexes.ArtworkVectors, artworkVecs); err != nil {
		return fmt.Errorf("rebuild artwork vectors: %w", err)
	}
	essayVecs, err := p.store.EssayEmbeddings(ctx)
	if err != nil {
		return err
	}
	if err := upsertAll(ctx, p.indexes.EssayVectors, essayVecs); err != nil {
		return fmt.Errorf("rebuild essay vectors: %w", err)
	}

	if n, err := p.indexes.ArtworkKeyword.DocCount(); err == nil && n == 0 {
		for offset := 0; ; offset += listPageSize {
			page, err := p.store.ListArtworks(ctx, offset, listPageSize)
			if err != nil {
				return err
			}
			for _, a := range page {
				if err := p.indexes.ArtworkKeyword.Index(ctx, a.ID, artworkFields(a)); err != nil {
					return err
				}
			}
			if len(page) < listPageSize {
				break
			}
		}
	}
	if n, err := p.indexes.EssayKeyword.DocCount(); err == nil && n == 0 {
		for offset := 0; ; offset += listPageSize {
			page, err := p.store.ListEssays(ctx, offset, listPageSize)
			if err != nil {
				return err
			}
			for _, e := range page {
				if err := p.indexes.EssayKeyword.Index(ctx, e.ID, essayFields(e)); err != nil {
					return err
				}
			}
			if len(page) < listPageSize {
				break
			}
		}
	}
	p.logger.Info("indexes rebuilt",
		zap.Int("artwork_vectors", p.indexes.ArtworkVectors.Size()),
		zap.Int("essay_vectors", p.indexes.EssayVectors.Size()),
	)
	return nil
}

func upsertAll(ctx context.Context, idx vector.Index, vecs map[int64][]float32) error {
	if len(vecs) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(vecs))
	vectors := make([][]float32, 0, len(vecs))
	for id, v := range vecs {
		ids = append(ids, id)
		vectors = append(vectors, v)
	}
	return idx.Upsert(ctx, ids, vectors)
}

func artworkFields(a *models.Artwork) map[string]string {
	return map[string]string{
		"title":      a.Title,
		"artist":     a.Artist,
		"medium":     a.Medium,
		"culture":    a.Culture,
		"department": a.Department,
	}
}

func essayFields(e *models.Essay) map[string]string {
	return map[string]string{"title": e.Title, "text": e.Text}
}
