package keyword

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

// ArtworkFields are the artwork metadata fields indexed for lexical search.
var ArtworkFields = []string{"title", "artist", "medium", "culture", "department"}

// EssayFields are the essay chunk fields indexed for lexical search.
var EssayFields = []string{"title", "text"}

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index  bleve.Index
	boosts map[string]float64
	fields []string
}

var _ Index = (*BleveIndex)(nil)

// NewBleveIndex creates or opens a Bleve index at path holding the given fields. Each
// field's boost weights its contribution to the score; fields without a boost get 1.
// An empty path creates an in-memory index.
// If you change the index mapping in code, remove the index directory to force a full re-index.
func NewBleveIndex(path string, fields []string, boosts map[string]float64) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize + English stop words, no stemming) so
	// artist and place names match exactly.
	textFieldMapping.Analyzer = standard.Name
	for _, f := range fields {
		docMapping.AddFieldMappingsAt(f, textFieldMapping)
	}
	docMapping.AddFieldMappingsAt(AllField, textFieldMapping)
	im.DefaultMapping = docMapping
	im.DefaultAnalyzer = standard.Name

	b := &BleveIndex{boosts: boosts, fields: fields}
	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		b.index = index
		return b, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		b.index = index
		return b, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	b.index = index
	return b, nil
}

// NewArtworkIndex creates or opens the artwork metadata index.
func NewArtworkIndex(path string, boosts map[string]float64) (*BleveIndex, error) {
	return NewBleveIndex(path, ArtworkFields, boosts)
}

// NewEssayIndex creates or opens the essay chunk index.
func NewEssayIndex(path string, boosts map[string]float64) (*BleveIndex, error) {
	return NewBleveIndex(path, EssayFields, boosts)
}

// Index indexes the document's fields under id. Unknown fields are ignored.
func (b *BleveIndex) Index(ctx context.Context, id int64, fields map[string]string) error {
	doc := make(map[string]interface{}, len(b.fields)+1)
	all := make([]string, 0, len(b.fields))
	for _, f := range b.fields {
		if v := strings.TrimSpace(fields[f]); v != "" {
			doc[f] = v
			all = append(all, v)
		}
	}
	doc[AllField] = strings.Join(all, " ")
	return b.index.Index(strconv.FormatInt(id, 10), doc)
}

func (b *BleveIndex) boost(field string) float64 {
	if v, ok := b.boosts[field]; ok && v > 0 {
		return v
	}
	return 1.0
}

// buildQuery requires every query term in the composite field (or any expansion phrase)
// and scores by boosted per-field matches.
func (b *BleveIndex) buildQuery(query string, expansions []string) blevequery.Query {
	gate := bleve.NewMatchQuery(query)
	gate.SetField(AllField)
	gate.SetOperator(blevequery.MatchQueryOperatorAnd)
	gates := []blevequery.Query{gate}

	scoring := make([]blevequery.Query, 0, len(b.fields)*(1+len(expansions)))
	for _, f := range b.fields {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(f)
		mq.SetBoost(b.boost(f))
		scoring = append(scoring, mq)
	}
	for _, term := range expansions {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		pq := bleve.NewMatchPhraseQuery(term)
		pq.SetField(AllField)
		gates = append(gates, pq)
		for _, f := range b.fields {
			fq := bleve.NewMatchPhraseQuery(term)
			fq.SetField(f)
			fq.SetBoost(b.boost(f))
			scoring = append(scoring, fq)
		}
	}

	bq := bleve.NewBooleanQuery()
	bq.AddMust(bleve.NewDisjunctionQuery(gates...))
	bq.AddShould(scoring...)
	return bq
}

// Search runs the query and returns up to limit hits ordered by score, with the
// terms and fields each hit matched on.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Result, error) {
	var expansions []string
	if opts != nil {
		expansions = opts.ExpansionTerms
	}
	if strings.TrimSpace(query) == "" && len(expansions) == 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequest(b.buildQuery(query, expansions))
	req.Size = limit
	req.IncludeLocations = true
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	out := make([]*Result, 0, len(results.Hits))
	for _, hit := range results.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		r := &Result{ID: id, Score: hit.Score}
		terms := make(map[string]struct{})
		for field, tlm := range hit.Locations {
			if field != AllField {
				r.MatchedFields = append(r.MatchedFields, field)
			}
			for term := range tlm {
				terms[term] = struct{}{}
			}
		}
		for term := range terms {
			r.MatchedTerms = append(r.MatchedTerms, term)
		}
		sort.Strings(r.MatchedFields)
		sort.Strings(r.MatchedTerms)
		out = append(out, r)
	}
	return out, nil
}

// Delete removes a document from the index.
func (b *BleveIndex) Delete(ctx context.Context, id int64) error {
	return b.index.Delete(strconv.FormatInt(id, 10))
}

// DocCount returns the total number of documents in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
