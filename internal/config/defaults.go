package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/artatlas/data/db/catalog.db"
	}
	if cfg.Storage.ArtworkIndexPath == "" {
		cfg.Storage.ArtworkIndexPath = "/usr/local/var/artatlas/data/indices/artworks"
	}
	if cfg.Storage.EssayIndexPath == "" {
		cfg.Storage.EssayIndexPath = "/usr/local/var/artatlas/data/indices/essays"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/artatlas/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Pooling == "" {
		cfg.Embedding.Pooling = "none"
	}

	if cfg.Search.LexicalWeight == 0 && cfg.Search.SemanticWeight == 0 {
		cfg.Search.LexicalWeight = 0.4
		cfg.Search.SemanticWeight = 0.6
	}
	if cfg.Search.FallbackPenalty == 0 {
		cfg.Search.FallbackPenalty = 0.7
	}
	if cfg.Search.ArtworkLexicalLimit == 0 {
		cfg.Search.ArtworkLexicalLimit = 50
	}
	if cfg.Search.ArtworkVectorLimit == 0 {
		cfg.Search.ArtworkVectorLimit = 3
	}
	if cfg.Search.EssayLexicalLimit == 0 {
		cfg.Search.EssayLexicalLimit = 20
	}
	if cfg.Search.EssayVectorLimit == 0 {
		cfg.Search.EssayVectorLimit = 2
	}
	if cfg.Search.ConceptLexicalWeight == 0 && cfg.Search.ConceptSemanticWeight == 0 && cfg.Search.ConceptWeight == 0 {
		cfg.Search.ConceptLexicalWeight = 0.20
		cfg.Search.ConceptSemanticWeight = 0.65
		cfg.Search.ConceptWeight = 0.15
	}
	if cfg.Search.EssayConceptBoost == 0 {
		cfg.Search.EssayConceptBoost = 0.3
	}
	if cfg.Search.BranchTimeoutMS == 0 {
		cfg.Search.BranchTimeoutMS = 5000
	}
	if cfg.Search.ArtworkFieldBoosts == nil {
		cfg.Search.ArtworkFieldBoosts = map[string]float64{
			"title":      3.0,
			"artist":     2.5,
			"medium":     1.5,
			"culture":    1.2,
			"department": 1.0,
		}
	}
	if cfg.Search.EssayFieldBoosts == nil {
		cfg.Search.EssayFieldBoosts = map[string]float64{
			"title": 2.0,
			"text":  1.0,
		}
	}

	if cfg.Concepts.DetectionThreshold == 0 {
		cfg.Concepts.DetectionThreshold = 0.7
	}
	if cfg.Concepts.MaxPerQuery == 0 {
		cfg.Concepts.MaxPerQuery = 2
	}
	if cfg.Concepts.MaxPerArtwork == 0 {
		cfg.Concepts.MaxPerArtwork = 2
	}
	if cfg.Concepts.BundlingThreshold == 0 {
		cfg.Concepts.BundlingThreshold = 0.6
	}
	if cfg.Concepts.RefreshIntervalSec == 0 {
		cfg.Concepts.RefreshIntervalSec = 900
	}
	if cfg.Concepts.PrimaryTypes == nil {
		cfg.Concepts.PrimaryTypes = []string{"movement"}
	}
	if cfg.Concepts.AffinityWorkers == 0 {
		cfg.Concepts.AffinityWorkers = 4
	}
	if cfg.Concepts.AffinityBatchSize == 0 {
		cfg.Concepts.AffinityBatchSize = 500
	}

	if cfg.Explain.ConfidenceEpsilon == 0 {
		cfg.Explain.ConfidenceEpsilon = 1e-6
	}
	if cfg.Explain.BundleTolerance == 0 {
		cfg.Explain.BundleTolerance = 1e-4
	}

	if cfg.Catalog.Extensions == nil {
		cfg.Catalog.Extensions = []string{".json", ".xlsx", ".txt", ".md", ".pdf", ".docx", ".odt", ".rtf"}
	}
	if cfg.Catalog.ChunkSize == 0 {
		cfg.Catalog.ChunkSize = 200
	}
	if cfg.Catalog.ChunkOverlap == 0 {
		cfg.Catalog.ChunkOverlap = 30
	}
}
