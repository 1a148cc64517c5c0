// Package ranking merges per-corpus results and rescores them with detected concepts.
package ranking

import (
	"context"
	"fmt"
	"sort"

	"github.com/hyperjump/artatlas/internal/concept"
	"github.com/hyperjump/artatlas/internal/models"
)

// MappingSource reads the item-concept links used by concept rescoring.
type MappingSource interface {
	ArtworkConcepts(ctx context.Context, artworkIDs, conceptIDs []int64) (map[int64][]models.ArtworkConcept, error)
	EssaysLinkedToConcepts(ctx context.Context, essayIDs, conceptIDs []int64) (map[int64]bool, error)
}

// Ranker orders merged results and applies concept rescoring.
type Ranker struct {
	config   *RankingConfig
	mappings MappingSource
}

// NewRanker creates a new Ranker with the given configuration.
func NewRanker(config *RankingConfig, mappings MappingSource) *Ranker {
	if config == nil {
		config = DefaultRankingConfig()
	}
	config.ApplyDefaults()
	return &Ranker{config: config, mappings: mappings}
}

// Config returns the ranker's configuration.
func (r *Ranker) Config() *RankingConfig {
	return r.config
}

// Merge concatenates both corpora and sorts them with Sort.
func Merge(artworks, essays []*models.RetrievalItem) []*models.RetrievalItem {
	merged := make([]*models.RetrievalItem, 0, len(artworks)+len(essays))
	merged = append(merged, artworks...)
	merged = append(merged, essays...)
	Sort(merged)
	return merged
}

// Sort orders results by final score descending, then item ID ascending, then
// corpus name, so the order does not depend on which branch finished first.
func Sort(results []*models.RetrievalItem) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		return a.Type < b.Type
	})
}

// AssignRanks numbers results from 1 in their current order.
func AssignRanks(results []*models.RetrievalItem) {
	for i, r := range results {
		r.Rank = i + 1
	}
}

// Rescore recomputes every result's final score as
// w1*lexical + w2*semantic + w3*concept_score and re-sorts. It does nothing
// when no concepts were detected.
func (r *Ranker) Rescore(ctx context.Context, results []*models.RetrievalItem, detected []concept.Match) error {
	if len(detected) == 0 || len(results) == 0 {
		return nil
	}
	conceptIDs := make([]int64, len(detected))
	for i, m := range detected {
		conceptIDs[i] = m.ConceptID
	}

	var artworkIDs, essayIDs []int64
	for _, item := range results {
		switch item.Type {
		case models.CorpusArtwork:
			artworkIDs = append(artworkIDs, item.ID)
		case models.CorpusEssay:
			essayIDs = append(essayIDs, item.ID)
		}
	}

	artworkMappings := map[int64][]models.ArtworkConcept{}
	linkedEssays := map[int64]bool{}
	var err error
	if len(artworkIDs) > 0 {
		artworkMappings, err = r.mappings.ArtworkConcepts(ctx, artworkIDs, conceptIDs)
		if err != nil {
			return fmt.Errorf("failed to load artwork concepts: %w", err)
		}
	}
	if len(essayIDs) > 0 {
		linkedEssays, err = r.mappings.EssaysLinkedToConcepts(ctx, essayIDs, conceptIDs)
		if err != nil {
			return fmt.Errorf("failed to load essay concepts: %w", err)
		}
	}

	for _, item := range results {
		var cs float64
		switch item.Type {
		case models.CorpusArtwork:
			cs = ArtworkConceptScore(detected, artworkMappings[item.ID])
		case models.CorpusEssay:
			if linkedEssays[item.ID] {
				cs = r.config.EssayConceptBoost
			}
		}
		item.ConceptScore = cs
		item.FinalScore = r.config.LexicalWeight*item.LexicalScore +
			r.config.SemanticWeight*item.SemanticScore +
			r.config.ConceptWeight*cs
	}
	Sort(results)
	return nil
}

// ArtworkConceptScore pairs detected concepts with an artwork's mappings on
// concept ID. With two or more products the best one wins; a single product
// counts only when exactly one concept was detected.
func ArtworkConceptScore(detected []concept.Match, mappings []models.ArtworkConcept) float64 {
	var products []float64
	for _, d := range detected {
		for _, m := range mappings {
			if d.ConceptID == m.ConceptID {
				products = append(products, d.ConfidenceScore*m.Confidence)
			}
		}
	}
	switch {
	case len(products) >= 2:
		best := products[0]
		for _, p := range products[1:] {
			if p > best {
				best = p
			}
		}
		return best
	case len(products) == 1 && len(detected) == 1:
		return products[0]
	default:
		return 0
	}
}
