package retrieval

import "github.com/hyperjump/artatlas/internal/keyword"

// Weights blends lexical and semantic scores for one corpus.
type Weights struct {
	Lexical  float64
	Semantic float64
	// FallbackPenalty multiplies the blended score of items with no lexical score.
	FallbackPenalty float64
}

// DefaultWeights returns the 0.4/0.6 blend with a 0.7 fallback penalty.
func DefaultWeights() Weights {
	return Weights{Lexical: 0.4, Semantic: 0.6, FallbackPenalty: 0.7}
}

// Blend returns lexical*w.Lexical + semantic*w.Semantic, penalized when lexical is 0.
func Blend(lexical, semantic float64, w Weights) float64 {
	final := w.Lexical*lexical + w.Semantic*semantic
	if lexical == 0 {
		final *= w.FallbackPenalty
	}
	return final
}

// NormalizeKeywordScores normalizes keyword scores to [0,1] by max.
func NormalizeKeywordScores(results []*keyword.Result) map[int64]float64 {
	normalized := make(map[int64]float64, len(results))
	if len(results) == 0 {
		return normalized
	}
	maxScore := results[0].Score
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	for _, r := range results {
		if maxScore > 0 {
			normalized[r.ID] = r.Score / maxScore
		} else {
			normalized[r.ID] = 0
		}
	}
	return normalized
}
