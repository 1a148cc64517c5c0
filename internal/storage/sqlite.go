package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/artatlas/internal/models"
	"github.com/hyperjump/artatlas/internal/vector"
)

// DefaultBatchSize is the number of mapping rows written per statement.
const DefaultBatchSize = 500

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS concepts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL DEFAULT '',
		primary_concept INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS artworks (
		id INTEGER PRIMARY KEY,
		title TEXT NOT NULL,
		artist TEXT,
		medium TEXT,
		culture TEXT,
		department TEXT,
		image_url TEXT,
		embedding BLOB,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS essays (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chunk_key TEXT NOT NULL UNIQUE,
		essay_title TEXT NOT NULL,
		chunk_text TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		source TEXT,
		embedding BLOB,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_essays_title ON essays(essay_title);

	CREATE TABLE IF NOT EXISTS essay_concepts (
		essay_id INTEGER NOT NULL,
		concept_id INTEGER NOT NULL,
		PRIMARY KEY (essay_id, concept_id),
		FOREIGN KEY (essay_id) REFERENCES essays(id) ON DELETE CASCADE,
		FOREIGN KEY (concept_id) REFERENCES concepts(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS artwork_concepts (
		artwork_id INTEGER NOT NULL,
		concept_id INTEGER NOT NULL,
		confidence REAL NOT NULL,
		PRIMARY KEY (artwork_id, concept_id),
		FOREIGN KEY (artwork_id) REFERENCES artworks(id) ON DELETE CASCADE,
		FOREIGN KEY (concept_id) REFERENCES concepts(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_artwork_concepts_concept ON artwork_concepts(concept_id);
	`
	_, err := db.Exec(schema)
	return err
}

// placeholders returns "?, ?, ..." with n entries.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func encodeEmbedding(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return vector.Encode(v)
}

// UpsertConcept inserts a concept or updates its type and primary flag by name.
// c.ID is set to the stored ID.
func (s *SQLiteStorage) UpsertConcept(ctx context.Context, c *models.Concept) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("concept name cannot be empty")
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO concepts (name, type, primary_concept) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET type = excluded.type, primary_concept = excluded.primary_concept
		 RETURNING id`,
		c.Name, c.Type, c.Primary,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("upsert concept %q: %w", c.Name, err)
	}
	return nil
}

// ListConcepts returns every concept ordered by ID.
func (s *SQLiteStorage) ListConcepts(ctx context.Context) ([]*models.Concept, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, type, primary_concept FROM concepts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Concept
	for rows.Next() {
		var c models.Concept
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.Primary); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// GetConceptByName returns a concept by its unique name.
func (s *SQLiteStorage) GetConceptByName(ctx context.Context, name string) (*models.Concept, error) {
	var c models.Concept
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, primary_concept FROM concepts WHERE name = ?`, name,
	).Scan(&c.ID, &c.Name, &c.Type, &c.Primary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("concept %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpsertArtwork inserts or replaces an artwork by ID.
func (s *SQLiteStorage) UpsertArtwork(ctx context.Context, a *models.Artwork) error {
	a.UpdatedAt = time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artworks (id, title, artist, medium, culture, department, image_url, embedding, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title = excluded.title, artist = excluded.artist, medium = excluded.medium,
			culture = excluded.culture, department = excluded.department, image_url = excluded.image_url,
			embedding = COALESCE(excluded.embedding, artworks.embedding), updated_at = excluded.updated_at`,
		a.ID, a.Title, a.Artist, a.Medium, a.Culture, a.Department, a.ImageURL, encodeEmbedding(a.Embedding), a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert artwork %d: %w", a.ID, err)
	}
	return nil
}

const artworkColumns = `id, title, COALESCE(artist, ''), COALESCE(medium, ''), COALESCE(culture, ''),
	COALESCE(department, ''), COALESCE(image_url, ''), embedding, updated_at`

func scanArtwork(row interface{ Scan(...any) error }) (*models.Artwork, error) {
	var a models.Artwork
	var emb []byte
	if err := row.Scan(&a.ID, &a.Title, &a.Artist, &a.Medium, &a.Culture, &a.Department, &a.ImageURL, &emb, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if len(emb) > 0 {
		a.Embedding = vector.Decode(emb)
	}
	return &a, nil
}

// GetArtwork returns an artwork by ID.
func (s *SQLiteStorage) GetArtwork(ctx context.Context, id int64) (*models.Artwork, error) {
	a, err := scanArtwork(s.db.QueryRowContext(ctx, `SELECT `+artworkColumns+` FROM artworks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("artwork %d: %w", id, ErrNotFound)
	}
	return a, err
}

// GetArtworks returns the artworks with the given IDs; missing IDs are absent from the map.
func (s *SQLiteStorage) GetArtworks(ctx context.Context, ids []int64) (map[int64]*models.Artwork, error) {
	out := make(map[int64]*models.Artwork, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+artworkColumns+` FROM artworks WHERE id IN (`+placeholders(len(ids))+`)`, int64Args(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanArtwork(rows)
		if err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

// ListArtworks returns artworks ordered by ID with offset and limit.
func (s *SQLiteStorage) ListArtworks(ctx context.Context, offset, limit int) ([]*models.Artwork, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+artworkColumns+` FROM artworks ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Artwork
	for rows.Next() {
		a, err := scanArtwork(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) embeddings(ctx context.Context, query string, args ...any) (map[int64][]float32, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64][]float32)
	for rows.Next() {
		var id int64
		var emb []byte
		if err := rows.Scan(&id, &emb); err != nil {
			return nil, err
		}
		out[id] = vector.Decode(emb)
	}
	return out, rows.Err()
}

// ArtworkEmbeddings returns every stored artwork embedding keyed by artwork ID.
func (s *SQLiteStorage) ArtworkEmbeddings(ctx context.Context) (map[int64][]float32, error) {
	return s.embeddings(ctx, `SELECT id, embedding FROM artworks WHERE embedding IS NOT NULL`)
}

// UpsertEssay inserts or updates an essay chunk by its chunk key. e.ID is set to the stored ID.
func (s *SQLiteStorage) UpsertEssay(ctx context.Context, e *models.Essay) error {
	if e.ChunkKey == "" {
		return fmt.Errorf("essay chunk key cannot be empty")
	}
	e.UpdatedAt = time.Now()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO essays (chunk_key, essay_title, chunk_text, chunk_index, source, embedding, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(chunk_key) DO UPDATE SET
			essay_title = excluded.essay_title, chunk_text = excluded.chunk_text,
			chunk_index = excluded.chunk_index, source = excluded.source,
			embedding = COALESCE(excluded.embedding, essays.embedding), updated_at = excluded.updated_at
		 RETURNING id`,
		e.ChunkKey, e.Title, e.Text, e.ChunkIndex, e.Source, encodeEmbedding(e.Embedding), e.UpdatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("upsert essay %q: %w", e.ChunkKey, err)
	}
	return nil
}

// PruneEssayChunks deletes the chunks of an essay whose index is keep or higher,
// left behind when a re-ingested essay became shorter. Returns the deleted IDs.
func (s *SQLiteStorage) PruneEssayChunks(ctx context.Context, title, source string, keep int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`DELETE FROM essays WHERE essay_title = ? AND COALESCE(source, '') = ? AND chunk_index >= ?
		 RETURNING id`,
		title, source, keep)
	if err != nil {
		return nil, fmt.Errorf("prune essay %q: %w", title, err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const essayColumns = `id, chunk_key, essay_title, chunk_text, chunk_index, COALESCE(source, ''), embedding, updated_at`

func scanEssay(row interface{ Scan(...any) error }) (*models.Essay, error) {
	var e models.Essay
	var emb []byte
	if err := row.Scan(&e.ID, &e.ChunkKey, &e.Title, &e.Text, &e.ChunkIndex, &e.Source, &emb, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if len(emb) > 0 {
		e.Embedding = vector.Decode(emb)
	}
	return &e, nil
}

// GetEssay returns an essay chunk by ID.
func (s *SQLiteStorage) GetEssay(ctx context.Context, id int64) (*models.Essay, error) {
	e, err := scanEssay(s.db.QueryRowContext(ctx, `SELECT `+essayColumns+` FROM essays WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("essay %d: %w", id, ErrNotFound)
	}
	return e, err
}

// GetEssays returns the essay chunks with the given IDs; missing IDs are absent from the map.
func (s *SQLiteStorage) GetEssays(ctx context.Context, ids []int64) (map[int64]*models.Essay, error) {
	out := make(map[int64]*models.Essay, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+essayColumns+` FROM essays WHERE id IN (`+placeholders(len(ids))+`)`, int64Args(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		e, err := scanEssay(rows)
		if err != nil {
			return nil, err
		}
		out[e.ID] = e
	}
	return out, rows.Err()
}

// ListEssays returns essay chunks ordered by title and chunk index with offset and limit.
func (s *SQLiteStorage) ListEssays(ctx context.Context, offset, limit int) ([]*models.Essay, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+essayColumns+` FROM essays ORDER BY essay_title, chunk_index LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Essay
	for rows.Next() {
		e, err := scanEssay(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EssayEmbeddings returns every stored essay chunk embedding keyed by essay ID.
func (s *SQLiteStorage) EssayEmbeddings(ctx context.Context) (map[int64][]float32, error) {
	return s.embeddings(ctx, `SELECT id, embedding FROM essays WHERE embedding IS NOT NULL`)
}

// LinkEssayTitle links every chunk of the essay with the given title to a concept.
// Returns the number of new links.
func (s *SQLiteStorage) LinkEssayTitle(ctx context.Context, title string, conceptID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO essay_concepts (essay_id, concept_id)
		 SELECT id, ? FROM essays WHERE essay_title = ?`,
		conceptID, title,
	)
	if err != nil {
		return 0, fmt.Errorf("link essay %q to concept %d: %w", title, conceptID, err)
	}
	return res.RowsAffected()
}

// ConceptEvidence returns, per concept, the embeddings of the essay chunks linked to it.
func (s *SQLiteStorage) ConceptEvidence(ctx context.Context) (map[int64][][]float32, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ec.concept_id, e.embedding
		 FROM essay_concepts ec JOIN essays e ON e.id = ec.essay_id
		 WHERE e.embedding IS NOT NULL
		 ORDER BY ec.concept_id, e.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64][][]float32)
	for rows.Next() {
		var conceptID int64
		var emb []byte
		if err := rows.Scan(&conceptID, &emb); err != nil {
			return nil, err
		}
		out[conceptID] = append(out[conceptID], vector.Decode(emb))
	}
	return out, rows.Err()
}

// UpsertArtworkConcepts writes mappings in batches inside a single transaction. On
// conflict the stored confidence is replaced. Any failure rolls back every batch.
func (s *SQLiteStorage) UpsertArtworkConcepts(ctx context.Context, mappings []models.ArtworkConcept, batchSize int) error {
	if len(mappings) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for start := 0; start < len(mappings); start += batchSize {
		end := start + batchSize
		if end > len(mappings) {
			end = len(mappings)
		}
		batch := mappings[start:end]
		values := strings.TrimSuffix(strings.Repeat("(?, ?, ?), ", len(batch)), ", ")
		args := make([]any, 0, len(batch)*3)
		for _, m := range batch {
			args = append(args, m.ArtworkID, m.ConceptID, m.Confidence)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO artwork_concepts (artwork_id, concept_id, confidence) VALUES `+values+`
			 ON CONFLICT(artwork_id, concept_id) DO UPDATE SET confidence = excluded.confidence`,
			args...,
		); err != nil {
			return fmt.Errorf("upsert artwork concepts batch at %d: %w", start, err)
		}
	}
	return tx.Commit()
}

// ArtworkConcepts returns the stored mappings of the given artworks restricted to conceptIDs.
func (s *SQLiteStorage) ArtworkConcepts(ctx context.Context, artworkIDs, conceptIDs []int64) (map[int64][]models.ArtworkConcept, error) {
	out := make(map[int64][]models.ArtworkConcept)
	if len(artworkIDs) == 0 || len(conceptIDs) == 0 {
		return out, nil
	}
	args := append(int64Args(artworkIDs), int64Args(conceptIDs)...)
	rows, err := s.db.QueryContext(ctx,
		`SELECT artwork_id, concept_id, confidence FROM artwork_concepts
		 WHERE artwork_id IN (`+placeholders(len(artworkIDs))+`)
		   AND concept_id IN (`+placeholders(len(conceptIDs))+`)
		 ORDER BY artwork_id, concept_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m models.ArtworkConcept
		if err := rows.Scan(&m.ArtworkID, &m.ConceptID, &m.Confidence); err != nil {
			return nil, err
		}
		out[m.ArtworkID] = append(out[m.ArtworkID], m)
	}
	return out, rows.Err()
}

// EssaysLinkedToConcepts reports which of essayIDs are linked to any of conceptIDs.
func (s *SQLiteStorage) EssaysLinkedToConcepts(ctx context.Context, essayIDs, conceptIDs []int64) (map[int64]bool, error) {
	out := make(map[int64]bool)
	if len(essayIDs) == 0 || len(conceptIDs) == 0 {
		return out, nil
	}
	args := append(int64Args(essayIDs), int64Args(conceptIDs)...)
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT essay_id FROM essay_concepts
		 WHERE essay_id IN (`+placeholders(len(essayIDs))+`)
		   AND concept_id IN (`+placeholders(len(conceptIDs))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// ConceptHasArtworkMappings reports whether any artwork is mapped to the concept.
func (s *SQLiteStorage) ConceptHasArtworkMappings(ctx context.Context, conceptID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM artwork_concepts WHERE concept_id = ?)`, conceptID,
	).Scan(&exists)
	return exists, err
}

// ConfidenceFor returns the stored mapping confidence of an artwork for a concept.
func (s *SQLiteStorage) ConfidenceFor(ctx context.Context, artworkID, conceptID int64) (float64, error) {
	var c float64
	err := s.db.QueryRowContext(ctx,
		`SELECT confidence FROM artwork_concepts WHERE artwork_id = ? AND concept_id = ?`,
		artworkID, conceptID,
	).Scan(&c)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("mapping %d/%d: %w", artworkID, conceptID, ErrNotFound)
	}
	return c, err
}

// Counts returns row counts for every catalog table.
func (s *SQLiteStorage) Counts(ctx context.Context) (*Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM concepts),
		(SELECT COUNT(*) FROM artworks),
		(SELECT COUNT(*) FROM essays),
		(SELECT COUNT(*) FROM artwork_concepts),
		(SELECT COUNT(*) FROM essay_concepts)`,
	).Scan(&c.Concepts, &c.Artworks, &c.Essays, &c.ArtworkConcepts, &c.EssayConcepts)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
