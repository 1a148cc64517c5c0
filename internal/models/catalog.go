// Package models defines core data structures for catalog records, queries, and retrieval results.
package models

import "time"

// Corpus identifies one of the two searchable collections.
type Corpus string

const (
	CorpusArtwork Corpus = "artwork"
	CorpusEssay   Corpus = "essay"
)

// Concept is a curated label (movement, technique, genre, theme).
type Concept struct {
	ID      int64  `json:"id" db:"id"`
	Name    string `json:"name" db:"name"`
	Type    string `json:"type" db:"type"`
	Primary bool   `json:"primary" db:"primary_concept"`
}

// Artwork is a catalog object with its aggregated metadata.
type Artwork struct {
	ID         int64     `json:"id" db:"id"`
	Title      string    `json:"title" db:"title"`
	Artist     string    `json:"artist,omitempty" db:"artist"`
	Medium     string    `json:"medium,omitempty" db:"medium"`
	Culture    string    `json:"culture,omitempty" db:"culture"`
	Department string    `json:"department,omitempty" db:"department"`
	ImageURL   string    `json:"image_url,omitempty" db:"image_url"`
	Embedding  []float32 `json:"-" db:"embedding"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// AggregatedMetadata joins the descriptive fields into the text that is embedded and searched.
func (a *Artwork) AggregatedMetadata() string {
	parts := make([]byte, 0, 128)
	for _, f := range []string{a.Title, a.Artist, a.Medium, a.Culture, a.Department} {
		if f == "" {
			continue
		}
		if len(parts) > 0 {
			parts = append(parts, ". "...)
		}
		parts = append(parts, f...)
	}
	return string(parts)
}

// Essay is one chunk of a descriptive essay.
type Essay struct {
	ID         int64     `json:"id" db:"id"`
	ChunkKey   string    `json:"chunk_key" db:"chunk_key"`
	Title      string    `json:"essay_title" db:"essay_title"`
	Text       string    `json:"chunk_text" db:"chunk_text"`
	ChunkIndex int       `json:"chunk_index" db:"chunk_index"`
	Source     string    `json:"source,omitempty" db:"source"`
	Embedding  []float32 `json:"-" db:"embedding"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// ArtworkConcept is a propagated item-to-concept mapping.
type ArtworkConcept struct {
	ArtworkID  int64   `json:"artwork_id" db:"artwork_id"`
	ConceptID  int64   `json:"concept_id" db:"concept_id"`
	Confidence float64 `json:"confidence" db:"confidence"`
}
