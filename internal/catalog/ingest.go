package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/artatlas/internal/models"
)

// FileReport summarizes what one catalog file contributed.
type FileReport struct {
	Path     string `json:"path"`
	Artworks int    `json:"artworks"`
	Essays   int    `json:"essays"`
	Chunks   int    `json:"chunks"`
}

// IngestArtworks embeds each artwork's aggregated metadata, stores it, and indexes it
// lexically and by vector. Returns the number of artworks ingested.
func (p *Pipeline) IngestArtworks(ctx context.Context, artworks []*models.Artwork) (int, error) {
	n := 0
	for start := 0; start < len(artworks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(artworks))
		batch := artworks[start:end]
		texts := make([]string, len(batch))
		for i, a := range batch {
			texts[i] = a.AggregatedMetadata()
		}
		vecs, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return n, fmt.Errorf("failed to embed artworks: %w", err)
		}
		ids := make([]int64, len(batch))
		for i, a := range batch {
			a.Embedding = vecs[i]
			if err := p.store.UpsertArtwork(ctx, a); err != nil {
				return n, err
			}
			if err := p.indexes.ArtworkKeyword.Index(ctx, a.ID, artworkFields(a)); err != nil {
				return n, fmt.Errorf("failed to index artwork %d: %w", a.ID, err)
			}
			ids[i] = a.ID
		}
		if err := p.indexes.ArtworkVectors.Upsert(ctx, ids, vecs); err != nil {
			return n, fmt.Errorf("failed to index artwork vectors: %w", err)
		}
		n += len(batch)
	}
	return n, nil
}

// IngestEssay chunks, embeds, stores and indexes one essay, then links it to the
// concepts the manifest names. Returns the number of chunks stored.
func (p *Pipeline) IngestEssay(ctx context.Context, m EssayManifest) (int, error) {
	title := Preprocess(m.Title)
	if title == "" {
		return 0, fmt.Errorf("%w: essay without title", ErrInvalidRecord)
	}
	source := m.Source
	if source == "" {
		source = m.SourceURL
	}
	var chunks []string
	for _, c := range m.Chunks {
		if c = Preprocess(c); c != "" {
			chunks = append(chunks, c)
		}
	}
	if len(chunks) == 0 {
		chunks = p.chunker.Chunk(Preprocess(m.Text))
	}
	if len(chunks) == 0 {
		p.logger.Warn("essay has no text", zap.String("essay_title", title))
		return 0, nil
	}

	stored := 0
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		vecs, err := p.embedder.EmbedBatch(ctx, chunks[start:end])
		if err != nil {
			return stored, fmt.Errorf("failed to embed essay %q: %w", title, err)
		}
		ids := make([]int64, 0, end-start)
		for i, text := range chunks[start:end] {
			idx := start + i
			e := &models.Essay{
				ChunkKey:   ChunkKey(title, source, idx),
				Title:      title,
				Text:       text,
				ChunkIndex: idx,
				Source:     source,
				Embedding:  vecs[i],
			}
			if err := p.store.UpsertEssay(ctx, e); err != nil {
				return stored, err
			}
			if err := p.indexes.EssayKeyword.Index(ctx, e.ID, essayFields(e)); err != nil {
				return stored, fmt.Errorf("failed to index essay chunk %d: %w", e.ID, err)
			}
			ids = append(ids, e.ID)
		}
		if err := p.indexes.EssayVectors.Upsert(ctx, ids, vecs); err != nil {
			return stored, fmt.Errorf("failed to index essay vectors: %w", err)
		}
		stored += len(ids)
	}

	if err := p.pruneEssay(ctx, title, source, len(chunks)); err != nil {
		return stored, err
	}
	if len(m.Concepts) > 0 {
		if _, _, err := p.linkEssay(ctx, title, m.Concepts, nil); err != nil {
			return stored, err
		}
	}
	p.logger.Debug("essay ingested", zap.String("essay_title", title), zap.Int("chunks", stored))
	return stored, nil
}

// pruneEssay drops chunks past the new end of a re-ingested essay from the store
// and both essay indexes.
func (p *Pipeline) pruneEssay(ctx context.Context, title, source string, keep int) error {
	stale, err := p.store.PruneEssayChunks(ctx, title, source, keep)
	if err != nil || len(stale) == 0 {
		return err
	}
	for _, id := range stale {
		if err := p.indexes.EssayKeyword.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to unindex essay chunk %d: %w", id, err)
		}
	}
	if err := p.indexes.EssayVectors.Remove(ctx, stale); err != nil {
		return fmt.Errorf("failed to remove essay vectors: %w", err)
	}
	p.logger.Debug("stale essay chunks pruned", zap.String("essay_title", title), zap.Int("chunks", len(stale)))
	return nil
}

// IngestFile ingests one catalog file. JSON and xlsx files carry artwork records or
// essay manifests; any other allowed extension is extracted and ingested as an essay
// titled by the document itself or, failing that, after the file name.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (*FileReport, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	ext := extOf(absPath)
	if !p.IsCatalogFile(absPath) {
		return nil, fmt.Errorf("extension %q not in allowed list", ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	p.logger.Debug("catalog ingesting file", zap.String("path", absPath))

	batch, err := p.readBatch(absPath, ext)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(absPath), err)
	}
	report := &FileReport{Path: absPath}
	if report.Artworks, err = p.IngestArtworks(ctx, batch.Artworks); err != nil {
		return report, err
	}
	for _, m := range batch.Essays {
		n, err := p.IngestEssay(ctx, m)
		if err != nil {
			return report, err
		}
		report.Essays++
		report.Chunks += n
	}
	p.logger.Info("catalog file ingested",
		zap.String("path", absPath),
		zap.Int("artworks", report.Artworks),
		zap.Int("essays", report.Essays),
		zap.Int("chunks", report.Chunks),
	)
	return report, nil
}

func (p *Pipeline) readBatch(path, ext string) (*Batch, error) {
	switch ext {
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return ParseJSON(data)
	case ".xlsx":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return ParseSpreadsheet(data)
	default:
		doc, err := p.extractor.Extract(path)
		if err != nil {
			return nil, err
		}
		base := filepath.Base(path)
		title := doc.Title
		if title == "" {
			title = titleFromFilename(base)
		}
		return &Batch{Essays: []EssayManifest{{
			Title:  title,
			Source: base,
			Text:   doc.Text,
		}}}, nil
	}
}

// IngestDirectory walks dir recursively and ingests every regular file with an allowed
// extension. A failing file is logged and skipped; the failures are returned joined
// together with the number of files ingested.
func (p *Pipeline) IngestDirectory(ctx context.Context, dir string) (int, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	n := 0
	var errs []error
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !p.IsCatalogFile(path) {
			return nil
		}
		// Resolve symlinks so only regular files are ingested
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		if _, ingestErr := p.IngestFile(ctx, path); ingestErr != nil {
			p.logger.Warn("catalog file failed", zap.String("path", path), zap.Error(ingestErr))
			errs = append(errs, fmt.Errorf("%s: %w", path, ingestErr))
			return nil
		}
		n++
		return nil
	})
	if err != nil {
		errs = append(errs, err)
	}
	return n, errors.Join(errs...)
}

// IsCatalogFile reports whether path has one of the configured catalog extensions.
func (p *Pipeline) IsCatalogFile(path string) bool {
	return extensionAllowed(extOf(path), p.config.Catalog.Extensions)
}

func extensionAllowed(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
