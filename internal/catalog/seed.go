// Package catalog ingests curated concepts, artworks and essays into storage and the search indexes.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidSeed is returned when a seed file entry is missing a name or type.
var ErrInvalidSeed = errors.New("invalid seed")

// Concept types used by the curated seed.
const (
	TypeMovement  = "movement"
	TypeTechnique = "technique"
	TypeGenre     = "genre"
	TypeTheme     = "theme"
)

// SeedConcept is one curated concept.
type SeedConcept struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Primary bool   `yaml:"primary,omitempty"`
}

// EssayLink links every chunk of the essay with the given title to the named concepts.
type EssayLink struct {
	EssayTitle string   `yaml:"essay_title"`
	Concepts   []string `yaml:"concepts"`
}

// Seed is the curated concept vocabulary and its essay evidence links.
type Seed struct {
	Concepts   []SeedConcept `yaml:"concepts"`
	EssayLinks []EssayLink   `yaml:"essay_links"`
}

// DefaultSeed returns the built-in curated concepts. It carries no essay links; those
// depend on which essays were ingested.
func DefaultSeed() *Seed {
	return &Seed{Concepts: []SeedConcept{
		{Name: "Dutch Golden Age", Type: TypeMovement},
		{Name: "Vanitas", Type: TypeGenre},
		{Name: "Still life", Type: TypeGenre},
		{Name: "Landscape", Type: TypeGenre},
		{Name: "Genre Painting", Type: TypeGenre},
		{Name: "Chiaroscuro", Type: TypeTechnique},
		{Name: "Tenebrism", Type: TypeTechnique},
		{Name: "Realism", Type: TypeTheme},
		{Name: "Spatial Realism", Type: TypeTheme},
		{Name: "Symbolism", Type: TypeTheme},
		{Name: "Baroque", Type: TypeMovement},
		{Name: "Impressionism", Type: TypeMovement},
		{Name: "Cubism", Type: TypeMovement},
		{Name: "Religious Narrative", Type: TypeGenre},
	}}
}

// LoadSeed reads a YAML seed file. An empty path returns DefaultSeed.
func LoadSeed(path string) (*Seed, error) {
	if path == "" {
		return DefaultSeed(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	if err := seed.Normalize(); err != nil {
		return nil, err
	}
	return &seed, nil
}

// Normalize cleans names and titles the way ingested text is cleaned, lowercases types
// and rejects incomplete entries.
func (s *Seed) Normalize() error {
	for i := range s.Concepts {
		c := &s.Concepts[i]
		c.Name = Preprocess(c.Name)
		c.Type = strings.ToLower(strings.TrimSpace(c.Type))
		if c.Name == "" {
			return fmt.Errorf("%w: concept %d has no name", ErrInvalidSeed, i)
		}
		if c.Type == "" {
			return fmt.Errorf("%w: concept %q has no type", ErrInvalidSeed, c.Name)
		}
	}
	for i := range s.EssayLinks {
		l := &s.EssayLinks[i]
		l.EssayTitle = Preprocess(l.EssayTitle)
		if l.EssayTitle == "" {
			return fmt.Errorf("%w: essay link %d has no title", ErrInvalidSeed, i)
		}
		for j := range l.Concepts {
			l.Concepts[j] = Preprocess(l.Concepts[j])
		}
	}
	return nil
}
