package ranking

import "github.com/hyperjump/artatlas/internal/config"

// RankingConfig holds the concept rescoring weights.
type RankingConfig struct {
	LexicalWeight     float64 `yaml:"lexical_weight"`      // default: 0.20
	SemanticWeight    float64 `yaml:"semantic_weight"`     // default: 0.65
	ConceptWeight     float64 `yaml:"concept_weight"`      // default: 0.15
	EssayConceptBoost float64 `yaml:"essay_concept_boost"` // default: 0.3
}

// DefaultRankingConfig returns the default ranking configuration.
func DefaultRankingConfig() *RankingConfig {
	return &RankingConfig{
		LexicalWeight:     0.20,
		SemanticWeight:    0.65,
		ConceptWeight:     0.15,
		EssayConceptBoost: 0.3,
	}
}

// FromSearchConfig builds a RankingConfig from the search section of the app config.
func FromSearchConfig(cfg *config.SearchConfig) *RankingConfig {
	if cfg == nil {
		return DefaultRankingConfig()
	}
	c := &RankingConfig{
		LexicalWeight:     cfg.ConceptLexicalWeight,
		SemanticWeight:    cfg.ConceptSemanticWeight,
		ConceptWeight:     cfg.ConceptWeight,
		EssayConceptBoost: cfg.EssayConceptBoost,
	}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills in zero values with defaults. The three weights are
// defaulted together so an explicit zero weight survives when another is set.
func (c *RankingConfig) ApplyDefaults() {
	defaults := DefaultRankingConfig()

	if c.LexicalWeight == 0 && c.SemanticWeight == 0 && c.ConceptWeight == 0 {
		c.LexicalWeight = defaults.LexicalWeight
		c.SemanticWeight = defaults.SemanticWeight
		c.ConceptWeight = defaults.ConceptWeight
	}
	if c.EssayConceptBoost == 0 {
		c.EssayConceptBoost = defaults.EssayConceptBoost
	}
}
