// Package config provides configuration loading and structs for the ArtAtlas server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Concepts  ConceptConfig   `yaml:"concepts"`
	Explain   ExplainConfig   `yaml:"explain"`
	Catalog   CatalogConfig   `yaml:"catalog"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the catalog database and the lexical indices.
type StorageConfig struct {
	DatabasePath     string `yaml:"database_path"`
	ArtworkIndexPath string `yaml:"artwork_index_path"`
	EssayIndexPath   string `yaml:"essay_index_path"`
}

// EmbeddingConfig holds ONNX embedder settings.
type EmbeddingConfig struct {
	ModelPath     string `yaml:"model_path"`
	TokenizerPath string `yaml:"tokenizer_path"`
	Dimensions    int    `yaml:"dimensions"`
	MaxTokens     int    `yaml:"max_tokens"`
	CacheSize     int    `yaml:"cache_size"`
	// Pooling is "mean" for models that emit per-token states, "none" for models
	// with a pooled output.
	Pooling string `yaml:"pooling"`
}

// SearchConfig holds hybrid retrieval and concept rescoring settings.
type SearchConfig struct {
	LexicalWeight       float64 `yaml:"lexical_weight"`
	SemanticWeight      float64 `yaml:"semantic_weight"`
	FallbackPenalty     float64 `yaml:"fallback_penalty"`
	ArtworkLexicalLimit int     `yaml:"artwork_lexical_limit"`
	ArtworkVectorLimit  int     `yaml:"artwork_vector_limit"`
	EssayLexicalLimit   int     `yaml:"essay_lexical_limit"`
	EssayVectorLimit    int     `yaml:"essay_vector_limit"`
	// ConceptLexicalWeight, ConceptSemanticWeight and ConceptWeight are the
	// w1/w2/w3 weights used when concepts were detected for the query.
	ConceptLexicalWeight  float64 `yaml:"concept_lexical_weight"`
	ConceptSemanticWeight float64 `yaml:"concept_semantic_weight"`
	ConceptWeight         float64 `yaml:"concept_weight"`
	EssayConceptBoost     float64 `yaml:"essay_concept_boost"`
	// BranchTimeoutMS bounds each retrieval branch; a timed out branch returns empty.
	BranchTimeoutMS int `yaml:"branch_timeout_ms"`
	// Field boosts for the artwork lexical index.
	ArtworkFieldBoosts map[string]float64 `yaml:"artwork_field_boosts"`
	// Field boosts for the essay lexical index.
	EssayFieldBoosts map[string]float64 `yaml:"essay_field_boosts"`
}

// ConceptConfig holds prototype, detection and bundling settings.
type ConceptConfig struct {
	DetectionThreshold float64  `yaml:"detection_threshold"`
	MaxPerQuery        int      `yaml:"max_per_query"`
	MaxPerArtwork      int      `yaml:"max_per_artwork"`
	BundlingThreshold  float64  `yaml:"bundling_threshold"`
	RefreshIntervalSec int      `yaml:"refresh_interval_sec"`
	PrimaryTypes       []string `yaml:"primary_types"`
	AffinityWorkers    int      `yaml:"affinity_workers"`
	AffinityBatchSize  int      `yaml:"affinity_batch_size"`
}

// ExplainConfig holds explanation graph validation settings.
type ExplainConfig struct {
	StrictProvenance  *bool   `yaml:"strict_provenance"`
	ConfidenceEpsilon float64 `yaml:"confidence_epsilon"`
	BundleTolerance   float64 `yaml:"bundle_tolerance"`
}

// StrictProvenanceOrDefault returns whether unknown provenance fails graph validation; defaults to true when unset.
func (e *ExplainConfig) StrictProvenanceOrDefault() bool {
	if e.StrictProvenance != nil {
		return *e.StrictProvenance
	}
	return true
}

// CatalogConfig holds catalog ingestion settings.
type CatalogConfig struct {
	SeedPath     string   `yaml:"seed_path"`
	Directories  []string `yaml:"directories"`
	Extensions   []string `yaml:"extensions"`
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	Watch        bool     `yaml:"watch"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.ArtworkIndexPath = expandPath(cfg.Storage.ArtworkIndexPath, configDir)
	cfg.Storage.EssayIndexPath = expandPath(cfg.Storage.EssayIndexPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	if cfg.Embedding.TokenizerPath != "" {
		cfg.Embedding.TokenizerPath = expandPath(cfg.Embedding.TokenizerPath, configDir)
	}
	if cfg.Catalog.SeedPath != "" {
		cfg.Catalog.SeedPath = expandPath(cfg.Catalog.SeedPath, configDir)
	}
	for i := range cfg.Catalog.Directories {
		cfg.Catalog.Directories[i] = expandPath(cfg.Catalog.Directories[i], configDir)
	}

	return &cfg, nil
}

// Default returns a config with every default applied and no file behind it.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
