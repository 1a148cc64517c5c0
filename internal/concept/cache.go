package concept

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/artatlas/internal/models"
)

// Source supplies the curated concepts and the embeddings that evidence them.
type Source interface {
	ListConcepts(ctx context.Context) ([]*models.Concept, error)
	ConceptEvidence(ctx context.Context) (map[int64][][]float32, error)
}

// Snapshot is an immutable prototype set with the concept metadata scoring needs.
type Snapshot struct {
	Prototypes []Prototype
	Names      map[int64]string
	Types      map[int64]ConceptType
	Concepts   map[int64]*models.Concept
	BuiltAt    time.Time
}

// Dimensions returns the centroid length shared by the prototypes, 0 when there are none.
func (s *Snapshot) Dimensions() int {
	if len(s.Prototypes) == 0 {
		return 0
	}
	return len(s.Prototypes[0].Centroid)
}

// Score scores v against the snapshot's prototypes with names and types filled in.
func (s *Snapshot) Score(v []float32, threshold float64, maxMatches int) []Match {
	return Score(v, s.Prototypes, ScoreOptions{
		Threshold:  threshold,
		MaxMatches: maxMatches,
		Names:      s.Names,
		Types:      s.Types,
	})
}

// Cache holds the current snapshot. Readers never block on a refresh and always see
// either the previous or the new snapshot in full.
type Cache struct {
	source       Source
	primaryTypes map[string]bool
	current      atomic.Pointer[Snapshot]
	logger       *zap.Logger
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCacheLogger sets the logger used for refresh reporting.
func WithCacheLogger(l *zap.Logger) CacheOption {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithPrimaryTypes sets the concept types treated as primary in addition to concepts
// explicitly flagged as primary.
func WithPrimaryTypes(types ...string) CacheOption {
	return func(c *Cache) {
		c.primaryTypes = make(map[string]bool, len(types))
		for _, t := range types {
			c.primaryTypes[t] = true
		}
	}
}

// NewCache creates a cache holding an empty snapshot until the first Refresh.
func NewCache(source Source, opts ...CacheOption) *Cache {
	c := &Cache{
		source:       source,
		primaryTypes: map[string]bool{"movement": true},
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.current.Store(&Snapshot{
		Names:    map[int64]string{},
		Types:    map[int64]ConceptType{},
		Concepts: map[int64]*models.Concept{},
	})
	return c
}

// Load returns the current snapshot. It is never nil.
func (c *Cache) Load() *Snapshot {
	return c.current.Load()
}

// Refresh rebuilds the prototypes from the source and swaps them in. On error the
// previous snapshot stays in place.
func (c *Cache) Refresh(ctx context.Context) error {
	concepts, err := c.source.ListConcepts(ctx)
	if err != nil {
		return fmt.Errorf("list concepts: %w", err)
	}
	evidence, err := c.source.ConceptEvidence(ctx)
	if err != nil {
		return fmt.Errorf("load concept evidence: %w", err)
	}
	prototypes, err := BuildPrototypes(evidence)
	if err != nil {
		return fmt.Errorf("build prototypes: %w", err)
	}

	snap := &Snapshot{
		Prototypes: prototypes,
		Names:      make(map[int64]string, len(concepts)),
		Types:      make(map[int64]ConceptType, len(concepts)),
		Concepts:   make(map[int64]*models.Concept, len(concepts)),
		BuiltAt:    time.Now(),
	}
	for _, con := range concepts {
		snap.Names[con.ID] = con.Name
		snap.Concepts[con.ID] = con
		if con.Primary || c.primaryTypes[con.Type] {
			snap.Types[con.ID] = Primary
		} else {
			snap.Types[con.ID] = Secondary
		}
	}
	c.current.Store(snap)
	c.logger.Info("concept prototypes refreshed",
		zap.Int("concepts", len(concepts)),
		zap.Int("prototypes", len(prototypes)))
	return nil
}

// Run refreshes the cache every interval until ctx is cancelled. Failed refreshes are
// logged and the old snapshot is kept.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.Warn("concept prototype refresh failed", zap.Error(err))
			}
		}
	}
}
