package models

import (
	"errors"
	"strings"
)

// ErrEmptyQuery is returned when a search query is empty or blank.
var ErrEmptyQuery = errors.New("query cannot be empty")

// MaxLimit caps the number of results a caller may request.
const MaxLimit = 100

// SearchQuery represents a search request.
type SearchQuery struct {
	Query string `json:"query"`
	// Limit truncates the merged result list; 0 returns every retrieved item.
	Limit int `json:"limit,omitempty"`
}

// Validate trims the query text and normalizes the limit.
// Returns ErrEmptyQuery if nothing is left to search for.
func (q *SearchQuery) Validate() error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return ErrEmptyQuery
	}
	if q.Limit < 0 {
		q.Limit = 0
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	return nil
}
