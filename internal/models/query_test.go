package models

import (
	"errors"
	"testing"
)

func TestSearchQuery_Validate(t *testing.T) {
	tests := []struct {
		name      string
		query     *SearchQuery
		wantErr   error
		wantQuery string
		wantLimit int
	}{
		{"empty query", &SearchQuery{Query: ""}, ErrEmptyQuery, "", 0},
		{"blank query", &SearchQuery{Query: "   \t"}, ErrEmptyQuery, "", 0},
		{"valid query", &SearchQuery{Query: "vanitas"}, nil, "vanitas", 0},
		{"trims whitespace", &SearchQuery{Query: "  still life "}, nil, "still life", 0},
		{"caps limit", &SearchQuery{Query: "x", Limit: 500}, nil, "x", MaxLimit},
		{"negative limit", &SearchQuery{Query: "x", Limit: -3}, nil, "x", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if tt.query.Query != tt.wantQuery {
				t.Errorf("query = %q, want %q", tt.query.Query, tt.wantQuery)
			}
			if tt.query.Limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", tt.query.Limit, tt.wantLimit)
			}
		})
	}
}

func TestArtwork_AggregatedMetadata(t *testing.T) {
	a := &Artwork{Title: "Vanitas", Artist: "Pieter Claesz", Department: "Paintings"}
	if got, want := a.AggregatedMetadata(), "Vanitas. Pieter Claesz. Paintings"; got != want {
		t.Errorf("AggregatedMetadata() = %q, want %q", got, want)
	}
}
