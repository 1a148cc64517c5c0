// Package keyword provides per-corpus lexical search indexing and search.
package keyword

import "context"

// AllField is the composite field holding every indexed field's text. A document
// matches a query only if this field contains every query term.
const AllField = "all"

// SearchOptions optional parameters for lexical search. Nil means use defaults.
type SearchOptions struct {
	// ExpansionTerms are phrases OR-ed with the user query, so a document matching
	// any of them also qualifies.
	ExpansionTerms []string
}

// Index defines lexical search operations over one corpus.
type Index interface {
	Index(ctx context.Context, id int64, fields map[string]string) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Result, error)
	Delete(ctx context.Context, id int64) error
	// DocCount returns the total number of documents in the index.
	DocCount() (uint64, error)
	Close() error
}

// Result is a single lexical search hit.
type Result struct {
	ID            int64
	Score         float64
	MatchedTerms  []string
	MatchedFields []string
}
