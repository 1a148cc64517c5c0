package evidence

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/artatlas/internal/concept"
	"github.com/hyperjump/artatlas/internal/models"
)

// DefaultThreshold is the minimum mapping confidence for an item to join a bundle.
const DefaultThreshold = 0.6

var bundleNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("artatlas.evidence.bundle"))

// Pair is an item-to-concept similarity.
type Pair struct {
	ItemID     int64
	ConceptID  int64
	Similarity float64
}

// SimilaritySource computes item-to-concept similarities for a set of items.
type SimilaritySource interface {
	Similarities(ctx context.Context, corpus models.Corpus, itemIDs, conceptIDs []int64) ([]Pair, error)
}

// Builder assembles evidence bundles for the detected concepts of one query.
type Builder struct {
	source    SimilaritySource
	threshold float64
	logger    *zap.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithThreshold sets the bundling threshold. Zero keeps DefaultThreshold;
// concept.KeepAll admits every item.
func WithThreshold(t float64) Option {
	return func(b *Builder) {
		if t != 0 {
			b.threshold = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBuilder creates a Builder reading similarities from source.
func NewBuilder(source SimilaritySource, opts ...Option) *Builder {
	b := &Builder{source: source, threshold: DefaultThreshold, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns one bundle per detected concept with at least one artwork at or above the
// bundling threshold, in detection order. Only items in results are considered.
func (b *Builder) Build(ctx context.Context, query string, detected []concept.Match, results []*models.RetrievalItem) ([]Bundle, error) {
	if len(detected) == 0 || len(results) == 0 {
		return nil, nil
	}
	var artworkIDs, essayIDs []int64
	for _, r := range results {
		switch r.Type {
		case models.CorpusArtwork:
			artworkIDs = append(artworkIDs, r.ID)
		case models.CorpusEssay:
			essayIDs = append(essayIDs, r.ID)
		}
	}
	if len(artworkIDs) == 0 {
		return nil, nil
	}
	conceptIDs := make([]int64, len(detected))
	for i, m := range detected {
		conceptIDs[i] = m.ConceptID
	}

	artworkPairs, err := b.source.Similarities(ctx, models.CorpusArtwork, artworkIDs, conceptIDs)
	if err != nil {
		return nil, fmt.Errorf("artwork similarities: %w", err)
	}
	artworkSupport := b.group(artworkPairs, models.CorpusArtwork)

	var essaySupport map[int64][]ItemEvidence
	if len(essayIDs) > 0 {
		essayPairs, err := b.source.Similarities(ctx, models.CorpusEssay, essayIDs, conceptIDs)
		if err != nil {
			return nil, fmt.Errorf("essay similarities: %w", err)
		}
		essaySupport = b.group(essayPairs, models.CorpusEssay)
	}

	bundles := make([]Bundle, 0, len(detected))
	for _, m := range detected {
		artworks := artworkSupport[m.ConceptID]
		if len(artworks) == 0 {
			if len(essaySupport[m.ConceptID]) > 0 {
				b.logger.Debug("dropping essay-only evidence",
					zap.Int64("concept_id", m.ConceptID),
					zap.Int("essays", len(essaySupport[m.ConceptID])))
			}
			continue
		}
		bundle := Bundle{
			PrimaryConcept: m.ConceptID,
			ConceptName:    m.ConceptName,
			Artworks:       artworks,
			Essays:         essaySupport[m.ConceptID],
		}
		members := bundle.Members()
		bundle.EvidenceConfidence = Mean(members)
		bundle.EvidenceID = evidenceID(query, m.ConceptID, members)
		bundle.Justifications = justifications(members)
		bundles = append(bundles, bundle)
	}
	return bundles, nil
}

// group keeps pairs at or above the threshold, grouped by concept and ordered by
// confidence descending, then item ID ascending.
func (b *Builder) group(pairs []Pair, corpus models.Corpus) map[int64][]ItemEvidence {
	out := make(map[int64][]ItemEvidence)
	for _, p := range pairs {
		if p.Similarity < b.threshold {
			continue
		}
		out[p.ConceptID] = append(out[p.ConceptID], ItemEvidence{
			ItemID:            p.ItemID,
			Corpus:            corpus,
			MappingConfidence: p.Similarity,
			Provenance:        ProvenanceEmbeddingSimilarity,
		})
	}
	for _, items := range out {
		sort.Slice(items, func(i, j int) bool {
			if items[i].MappingConfidence != items[j].MappingConfidence {
				return items[i].MappingConfidence > items[j].MappingConfidence
			}
			return items[i].ItemID < items[j].ItemID
		})
	}
	return out
}

func justifications(members []ItemEvidence) []Justification {
	out := make([]Justification, len(members))
	for i, m := range members {
		jt := ArtworkSupportsConcept
		if m.Corpus == models.CorpusEssay {
			jt = EssaySupportsConcept
		}
		out[i] = Justification{
			Type:       jt,
			SourceID:   m.ItemID,
			Confidence: m.MappingConfidence,
			Provenance: m.Provenance,
		}
	}
	return out
}

// evidenceID derives a stable ID from the query, the concept and the bundled items.
func evidenceID(query string, conceptID int64, members []ItemEvidence) string {
	var sb strings.Builder
	sb.WriteString(query)
	sb.WriteByte('|')
	sb.WriteString(strconv.FormatInt(conceptID, 10))
	for _, m := range members {
		sb.WriteByte('|')
		sb.WriteString(string(m.Corpus))
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatInt(m.ItemID, 10))
	}
	return uuid.NewSHA1(bundleNamespace, []byte(sb.String())).String()
}
