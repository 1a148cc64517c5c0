package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hyperjump/artatlas/internal/extract"
	"github.com/hyperjump/artatlas/internal/models"
)

// ErrInvalidRecord is returned for an artwork or essay record missing required fields.
var ErrInvalidRecord = errors.New("invalid catalog record")

// EssayManifest is a pre-chunked or raw essay. When Chunks is empty, Text is split by the
// pipeline's chunker.
type EssayManifest struct {
	Title     string   `json:"essay_title"`
	Type      string   `json:"essay_type,omitempty"`
	Source    string   `json:"source,omitempty"`
	SourceURL string   `json:"source_url,omitempty"`
	Chunks    []string `json:"chunks,omitempty"`
	Text      string   `json:"text,omitempty"`
	// Concepts links the essay to curated concepts by name once it is stored.
	Concepts []string `json:"concepts,omitempty"`
}

// Batch is the content of one catalog file.
type Batch struct {
	Artworks []*models.Artwork
	Essays   []EssayManifest
}

// Field aliases, compared after normalizeKey. The first spelling of each list is the
// Met collection API key.
var (
	idKeys         = []string{"objectid", "id"}
	titleKeys      = []string{"title"}
	artistKeys     = []string{"artistdisplayname", "artist"}
	mediumKeys     = []string{"medium"}
	cultureKeys    = []string{"culture"}
	departmentKeys = []string{"department"}
	imageKeys      = []string{"primaryimagesmall", "primaryimage", "imageurl", "image"}
)

func normalizeKey(k string) string {
	return strings.NewReplacer("_", "", " ", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(k)))
}

func lookup(fields map[string]string, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(fields[k]); v != "" {
			return v
		}
	}
	return ""
}

// ArtworkFromFields builds an artwork from a flat record. Keys are matched
// case-insensitively ignoring spaces, dashes and underscores, so both Met API
// records (objectID, artistDisplayName) and spreadsheet headers (object_id, artist)
// are accepted.
func ArtworkFromFields(raw map[string]string) (*models.Artwork, error) {
	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		fields[normalizeKey(k)] = v
	}
	idStr := lookup(fields, idKeys)
	if idStr == "" {
		return nil, fmt.Errorf("%w: artwork without id", ErrInvalidRecord)
	}
	id, err := strconv.ParseInt(strings.TrimSuffix(idStr, ".0"), 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%w: artwork id %q", ErrInvalidRecord, idStr)
	}
	a := &models.Artwork{
		ID:         id,
		Title:      lookup(fields, titleKeys),
		Artist:     lookup(fields, artistKeys),
		Medium:     lookup(fields, mediumKeys),
		Culture:    lookup(fields, cultureKeys),
		Department: lookup(fields, departmentKeys),
		ImageURL:   lookup(fields, imageKeys),
	}
	if a.Title == "" {
		return nil, fmt.Errorf("%w: artwork %d has no title", ErrInvalidRecord, id)
	}
	return a, nil
}

// ParseJSON decodes a catalog JSON file. Accepted shapes: an array of artwork records,
// a single artwork record, a single essay manifest (has "essay_title"), or an object
// with "artworks" and/or "essays" arrays.
func ParseJSON(data []byte) (*Batch, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return &Batch{}, nil
	}
	if data[0] == '[' {
		var items []map[string]any
		if err := decodeJSON(data, &items); err != nil {
			return nil, err
		}
		artworks, err := artworksFromObjects(items)
		if err != nil {
			return nil, err
		}
		return &Batch{Artworks: artworks}, nil
	}

	var obj map[string]json.RawMessage
	if err := decodeJSON(data, &obj); err != nil {
		return nil, err
	}
	batch := &Batch{}
	_, hasArtworks := obj["artworks"]
	_, hasEssays := obj["essays"]
	switch {
	case hasArtworks || hasEssays:
		if hasArtworks {
			var items []map[string]any
			if err := decodeJSON(obj["artworks"], &items); err != nil {
				return nil, err
			}
			artworks, err := artworksFromObjects(items)
			if err != nil {
				return nil, err
			}
			batch.Artworks = artworks
		}
		if hasEssays {
			if err := decodeJSON(obj["essays"], &batch.Essays); err != nil {
				return nil, err
			}
		}
	case obj["essay_title"] != nil:
		var m EssayManifest
		if err := decodeJSON(data, &m); err != nil {
			return nil, err
		}
		batch.Essays = []EssayManifest{m}
	default:
		var item map[string]any
		if err := decodeJSON(data, &item); err != nil {
			return nil, err
		}
		artworks, err := artworksFromObjects([]map[string]any{item})
		if err != nil {
			return nil, err
		}
		batch.Artworks = artworks
	}
	for _, m := range batch.Essays {
		if strings.TrimSpace(m.Title) == "" {
			return nil, fmt.Errorf("%w: essay without title", ErrInvalidRecord)
		}
	}
	return batch, nil
}

// ParseSpreadsheet reads artwork records from the first sheet of an xlsx file.
func ParseSpreadsheet(content []byte) (*Batch, error) {
	records, err := extract.Records(content)
	if err != nil {
		return nil, err
	}
	batch := &Batch{Artworks: make([]*models.Artwork, 0, len(records))}
	for i, rec := range records {
		a, err := ArtworkFromFields(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		batch.Artworks = append(batch.Artworks, a)
	}
	return batch, nil
}

func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode catalog json: %w", err)
	}
	return nil
}

func artworksFromObjects(items []map[string]any) ([]*models.Artwork, error) {
	out := make([]*models.Artwork, 0, len(items))
	for i, item := range items {
		// nested values such as tags are not part of the aggregated metadata
		fields := make(map[string]string, len(item))
		for k, v := range item {
			switch val := v.(type) {
			case string:
				fields[k] = val
			case json.Number:
				fields[k] = val.String()
			}
		}
		a, err := ArtworkFromFields(fields)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func extOf(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
