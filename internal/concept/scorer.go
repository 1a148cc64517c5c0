package concept

import (
	"math"
	"sort"

	"github.com/hyperjump/artatlas/internal/vector"
)

// DefaultThreshold is the minimum confidence for a detected concept.
const DefaultThreshold = 0.7

// KeepAll is a threshold that keeps every scored match. A zero threshold means
// DefaultThreshold, so it cannot express "no threshold".
const KeepAll = -math.MaxFloat64

// ConceptType distinguishes curated primary concepts, which may expand queries, from the rest.
type ConceptType string

const (
	Primary   ConceptType = "primary"
	Secondary ConceptType = "secondary"
)

// Match is one concept scored against a vector.
type Match struct {
	ConceptID        int64       `json:"concept_id"`
	ConceptName      string      `json:"concept_name,omitempty"`
	Similarity       float64     `json:"similarity"`
	NormalizedScore  float64     `json:"normalized_score"`
	ConfidenceScore  float64     `json:"confidence_score"`
	ConceptType      ConceptType `json:"concept_type"`
	UsedForExpansion bool        `json:"used_for_expansion"`
}

// ScoreOptions controls Score.
type ScoreOptions struct {
	// Threshold is the minimum confidence kept. Zero uses DefaultThreshold; any other
	// value, KeepAll included, is used as given.
	Threshold float64
	// MaxMatches truncates the result; 0 keeps every match.
	MaxMatches int
	Names      map[int64]string
	Types      map[int64]ConceptType
}

// Score ranks prototypes against v. Similarities are normalized by the best one, so the
// top match always has NormalizedScore 1, and weighted by authority to give the confidence.
// Results are ordered by confidence descending, then concept ID ascending.
func Score(v []float32, prototypes []Prototype, opts ScoreOptions) []Match {
	if len(prototypes) == 0 {
		return nil
	}
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}

	sims := make([]float64, len(prototypes))
	maxSim := 0.0
	for i, p := range prototypes {
		sims[i] = vector.Cosine(v, p.Centroid)
		if i == 0 || sims[i] > maxSim {
			maxSim = sims[i]
		}
	}
	if maxSim <= 0 {
		return nil
	}

	matches := make([]Match, 0, len(prototypes))
	for i, p := range prototypes {
		normalized := sims[i] / maxSim
		confidence := normalized * p.Authority
		if confidence < threshold {
			continue
		}
		ct := Secondary
		if t, ok := opts.Types[p.ConceptID]; ok {
			ct = t
		}
		matches = append(matches, Match{
			ConceptID:       p.ConceptID,
			ConceptName:     opts.Names[p.ConceptID],
			Similarity:      sims[i],
			NormalizedScore: normalized,
			ConfidenceScore: confidence,
			ConceptType:     ct,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].ConfidenceScore != matches[j].ConfidenceScore {
			return matches[i].ConfidenceScore > matches[j].ConfidenceScore
		}
		return matches[i].ConceptID < matches[j].ConceptID
	})
	if opts.MaxMatches > 0 && len(matches) > opts.MaxMatches {
		matches = matches[:opts.MaxMatches]
	}
	return matches
}
