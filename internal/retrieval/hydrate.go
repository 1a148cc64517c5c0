package retrieval

import (
	"context"

	"github.com/hyperjump/artatlas/internal/models"
	"github.com/hyperjump/artatlas/internal/storage"
)

// ArtworkHydrator loads artworks from the catalog store.
type ArtworkHydrator struct {
	Store storage.Storage
}

// Hydrate implements Hydrator.
func (h ArtworkHydrator) Hydrate(ctx context.Context, ids []int64) (map[int64]*models.RetrievalItem, error) {
	records, err := h.Store.GetArtworks(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]*models.RetrievalItem, len(records))
	for id, a := range records {
		out[id] = models.FromArtwork(a)
	}
	return out, nil
}

// EssayHydrator loads essay chunks from the catalog store.
type EssayHydrator struct {
	Store storage.Storage
}

// Hydrate implements Hydrator.
func (h EssayHydrator) Hydrate(ctx context.Context, ids []int64) (map[int64]*models.RetrievalItem, error) {
	records, err := h.Store.GetEssays(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]*models.RetrievalItem, len(records))
	for id, e := range records {
		out[id] = models.FromEssay(e)
	}
	return out, nil
}
