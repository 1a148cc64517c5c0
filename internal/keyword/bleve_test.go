package keyword

import (
	"context"
	"path/filepath"
	"testing"
)

func newArtworkIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewArtworkIndex("", map[string]float64{"title": 3, "artist": 2.5})
	if err != nil {
		t.Fatalf("NewArtworkIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	ctx := context.Background()
	docs := map[int64]map[string]string{
		1: {"title": "Still Life with Skull", "artist": "Pieter Claesz", "medium": "Oil on wood", "department": "European Paintings"},
		2: {"title": "The Harvesters", "artist": "Pieter Bruegel the Elder", "medium": "Oil on wood"},
		3: {"title": "Wheat Field with Cypresses", "artist": "Vincent van Gogh", "medium": "Oil on canvas"},
		4: {"title": "Baroque ewer", "culture": "Dutch", "department": "European Sculpture"},
	}
	for id, fields := range docs {
		if err := idx.Index(ctx, id, fields); err != nil {
			t.Fatalf("Index %d: %v", id, err)
		}
	}
	return idx
}

func TestBleveIndex_SearchRequiresAllTerms(t *testing.T) {
	idx := newArtworkIndex(t)
	ctx := context.Background()

	results, err := idx.Search(ctx, "pieter oil", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results for terms spread across fields, got %d", len(results))
	}

	results, err = idx.Search(ctx, "pieter canvas", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("no document holds both terms, got %d results", len(results))
	}
}

func TestBleveIndex_SearchReportsMatchedFieldsAndTerms(t *testing.T) {
	idx := newArtworkIndex(t)
	results, err := idx.Search(context.Background(), "skull", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != 1 {
		t.Fatalf("unexpected results: %+v", results)
	}
	r := results[0]
	if len(r.MatchedFields) != 1 || r.MatchedFields[0] != "title" {
		t.Errorf("MatchedFields = %v, want [title]", r.MatchedFields)
	}
	if len(r.MatchedTerms) != 1 || r.MatchedTerms[0] != "skull" {
		t.Errorf("MatchedTerms = %v, want [skull]", r.MatchedTerms)
	}
}

func TestBleveIndex_TitleBoostOutranksOtherFields(t *testing.T) {
	idx := newArtworkIndex(t)
	ctx := context.Background()
	if err := idx.Index(ctx, 5, map[string]string{"title": "Portrait", "medium": "Wheat paste on paper"}); err != nil {
		t.Fatal(err)
	}
	results, err := idx.Search(ctx, "wheat", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != 3 {
		t.Errorf("title match should rank first, got %d", results[0].ID)
	}
}

func TestBleveIndex_ExpansionTermsAreDisjunctive(t *testing.T) {
	idx := newArtworkIndex(t)
	ctx := context.Background()

	results, err := idx.Search(ctx, "harvest festival", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results without expansion, got %d", len(results))
	}

	results, err = idx.Search(ctx, "harvest festival", 10, &SearchOptions{ExpansionTerms: []string{"Baroque"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != 4 {
		t.Errorf("expansion should surface the Baroque ewer, got %+v", results)
	}
}

func TestBleveIndex_DeleteAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "essays")
	idx, err := NewEssayIndex(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	_ = idx.Index(ctx, 10, map[string]string{"title": "Dutch Golden Age", "text": "Merchants commissioned genre scenes."})
	_ = idx.Index(ctx, 11, map[string]string{"title": "Cubism", "text": "Picasso and Braque fractured form."})
	if err := idx.Delete(ctx, 11); err != nil {
		t.Fatal(err)
	}
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewEssayIndex(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	n, err := reopened.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("DocCount = %d, want 1", n)
	}
	results, _ := reopened.Search(ctx, "merchants", 5, nil)
	if len(results) != 1 || results[0].ID != 10 {
		t.Errorf("unexpected results after reopen: %+v", results)
	}
}

func TestBleveIndex_EmptyQuery(t *testing.T) {
	idx := newArtworkIndex(t)
	results, err := idx.Search(context.Background(), "  ", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}
