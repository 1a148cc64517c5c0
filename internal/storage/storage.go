// Package storage defines the persistence interface for the art catalog and concept mappings.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/artatlas/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines catalog and concept mapping persistence operations.
type Storage interface {
	// Concept operations
	UpsertConcept(ctx context.Context, c *models.Concept) error
	ListConcepts(ctx context.Context) ([]*models.Concept, error)
	GetConceptByName(ctx context.Context, name string) (*models.Concept, error)

	// Artwork operations
	UpsertArtwork(ctx context.Context, a *models.Artwork) error
	GetArtwork(ctx context.Context, id int64) (*models.Artwork, error)
	GetArtworks(ctx context.Context, ids []int64) (map[int64]*models.Artwork, error)
	ListArtworks(ctx context.Context, offset, limit int) ([]*models.Artwork, error)
	ArtworkEmbeddings(ctx context.Context) (map[int64][]float32, error)

	// Essay operations
	UpsertEssay(ctx context.Context, e *models.Essay) error
	GetEssay(ctx context.Context, id int64) (*models.Essay, error)
	GetEssays(ctx context.Context, ids []int64) (map[int64]*models.Essay, error)
	ListEssays(ctx context.Context, offset, limit int) ([]*models.Essay, error)
	EssayEmbeddings(ctx context.Context) (map[int64][]float32, error)
	LinkEssayTitle(ctx context.Context, title string, conceptID int64) (int64, error)
	PruneEssayChunks(ctx context.Context, title, source string, keep int) ([]int64, error)

	// Concept evidence and mappings
	ConceptEvidence(ctx context.Context) (map[int64][][]float32, error)
	UpsertArtworkConcepts(ctx context.Context, mappings []models.ArtworkConcept, batchSize int) error
	ArtworkConcepts(ctx context.Context, artworkIDs, conceptIDs []int64) (map[int64][]models.ArtworkConcept, error)
	EssaysLinkedToConcepts(ctx context.Context, essayIDs, conceptIDs []int64) (map[int64]bool, error)
	ConceptHasArtworkMappings(ctx context.Context, conceptID int64) (bool, error)
	ConfidenceFor(ctx context.Context, artworkID, conceptID int64) (float64, error)

	// Stats
	Counts(ctx context.Context) (*Counts, error)

	Close() error
}

// Counts summarizes the catalog.
type Counts struct {
	Concepts        int64 `json:"concepts"`
	Artworks        int64 `json:"artworks"`
	Essays          int64 `json:"essays"`
	ArtworkConcepts int64 `json:"artwork_concepts"`
	EssayConcepts   int64 `json:"essay_concepts"`
}
