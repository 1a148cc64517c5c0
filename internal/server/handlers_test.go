package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/artatlas/internal/catalog"
	"github.com/hyperjump/artatlas/internal/concept"
	"github.com/hyperjump/artatlas/internal/config"
	"github.com/hyperjump/artatlas/internal/embedding"
	"github.com/hyperjump/artatlas/internal/keyword"
	"github.com/hyperjump/artatlas/internal/models"
	"github.com/hyperjump/artatlas/internal/search"
	"github.com/hyperjump/artatlas/internal/storage"
	"github.com/hyperjump/artatlas/internal/vector"
)

type mockWatchService struct {
	dirs []string
}

func (m *mockWatchService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

type testServer struct {
	handler http.Handler
	store   storage.Storage
	essayID int64
}

// newTestServer builds a server over an in-memory catalog. When populate is false the
// catalog is left empty.
func newTestServer(t *testing.T, populate bool) *testServer {
	t.Helper()
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	artworkKW, _ := keyword.NewArtworkIndex("", nil)
	t.Cleanup(func() { artworkKW.Close() })
	essayKW, _ := keyword.NewEssayIndex("", nil)
	t.Cleanup(func() { essayKW.Close() })
	artworkVec, _ := vector.NewMemoryIndex(3)
	essayVec, _ := vector.NewMemoryIndex(3)
	indexes := search.Indexes{ArtworkKeyword: artworkKW, EssayKeyword: essayKW, ArtworkVectors: artworkVec, EssayVectors: essayVec}

	emb := embedding.NewStaticEmbedder(3, map[string][]float32{
		"skull":                                {1, 0, 0},
		"skull and hourglass":                  {1, 0, 0},
		"guttering candle":                     {1, 0, 0},
		"Still Life with Skull. Pieter Claesz": {1, 0, 0},
		"River Landscape":                      {0, 0, 1},
		"wide":                                 {1, 0, 0, 0},
	})
	cache := concept.NewCache(store)
	cfg := config.Default()
	cfg.Storage.DatabasePath = ":memory:"
	cfg.Storage.ArtworkIndexPath = ""
	cfg.Storage.EssayIndexPath = ""
	pipeline := catalog.NewPipeline(store, emb, indexes, cache, cfg)
	engine := search.NewEngine(store, emb, indexes, cache, cfg)

	ts := &testServer{store: store}
	if populate {
		if _, err := pipeline.IngestEssay(ctx, catalog.EssayManifest{
			Title:  "Vanitas",
			Chunks: []string{"skull and hourglass", "guttering candle"},
		}); err != nil {
			t.Fatal(err)
		}
		if _, err := pipeline.IngestArtworks(ctx, []*models.Artwork{
			{ID: 1, Title: "Still Life with Skull", Artist: "Pieter Claesz"},
			{ID: 2, Title: "River Landscape"},
		}); err != nil {
			t.Fatal(err)
		}
		if _, err := pipeline.Seed(ctx, &catalog.Seed{
			Concepts:   []catalog.SeedConcept{{Name: "Vanitas", Type: "genre"}},
			EssayLinks: []catalog.EssayLink{{EssayTitle: "Vanitas", Concepts: []string{"Vanitas"}}},
		}); err != nil {
			t.Fatal(err)
		}
		essays, err := store.ListEssays(ctx, 0, 1)
		if err != nil || len(essays) == 0 {
			t.Fatalf("essays: %v %v", essays, err)
		}
		ts.essayID = essays[0].ID
	} else if err := cache.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	srv := NewServer(engine, pipeline, store, cfg, zap.NewNop(), WithWatcher(&mockWatchService{dirs: []string{"/tmp/catalog"}}))
	ts.handler = srv.Router()
	return ts
}

func (ts *testServer) do(t *testing.T, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestHandleSearchQuery(t *testing.T) {
	ts := newTestServer(t, true)
	w := ts.do(t, http.MethodGet, "/api/search?q=skull", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var resp search.Response
	decode(t, w, &resp)
	if resp.Message != search.MessageSuccess || len(resp.Results) == 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	foundArtwork := false
	for _, r := range resp.Results {
		if r.Type == models.CorpusArtwork && r.ID == 1 {
			foundArtwork = true
		}
		if r.Type == models.CorpusArtwork && r.ID == 2 {
			t.Error("River Landscape does not match the lexical filter")
		}
	}
	if !foundArtwork {
		t.Errorf("artwork 1 missing from %+v", resp.Results)
	}
	if len(resp.DetectedConcepts) != 1 || resp.DetectedConcepts[0].ConceptName != "Vanitas" {
		t.Errorf("detected concepts = %+v", resp.DetectedConcepts)
	}
	if resp.Explanation == nil {
		t.Error("explanation graph missing")
	}
}

func TestHandleSearchQuery_limit(t *testing.T) {
	ts := newTestServer(t, true)
	w := ts.do(t, http.MethodGet, "/api/search?q=skull&limit=1", "")
	var resp search.Response
	decode(t, w, &resp)
	if len(resp.Results) != 1 {
		t.Errorf("got %d results, want 1", len(resp.Results))
	}
	if w := ts.do(t, http.MethodGet, "/api/search?q=skull&limit=x", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status: got %d", w.Code)
	}
}

func TestHandleSearchQuery_noResultsIs404(t *testing.T) {
	ts := newTestServer(t, false)
	w := ts.do(t, http.MethodGet, "/api/search?q=skull", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", w.Code)
	}
	var resp search.Response
	decode(t, w, &resp)
	if resp.Message != search.MessageNoResults {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestHandleSearch_errors(t *testing.T) {
	ts := newTestServer(t, true)
	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"blank_get", http.MethodGet, "/api/search?q=%20%20", "", http.StatusBadRequest},
		{"blank_post", http.MethodPost, "/api/v1/search", `{"query": ""}`, http.StatusBadRequest},
		{"invalid_body", http.MethodPost, "/api/v1/search", `{`, http.StatusBadRequest},
		{"embedding_unavailable", http.MethodPost, "/api/v1/search", `{"query": "unknown words"}`, http.StatusServiceUnavailable},
		{"dimension_mismatch", http.MethodPost, "/api/v1/search", `{"query": "wide"}`, http.StatusBadRequest},
		{"dimension_mismatch_get", http.MethodGet, "/api/search?q=wide", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, tt.method, tt.target, tt.body)
			if w.Code != tt.want {
				t.Errorf("status: got %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
	w := ts.do(t, http.MethodGet, "/api/search?q=", "")
	var out map[string]string
	decode(t, w, &out)
	if out["error"] != messageInappropriateQuery {
		t.Errorf("error message = %q", out["error"])
	}
}

func TestHandleSearch_post(t *testing.T) {
	ts := newTestServer(t, false)
	w := ts.do(t, http.MethodPost, "/api/v1/search", `{"query": "skull"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var resp search.Response
	decode(t, w, &resp)
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Errorf("results = %v, want empty list", resp.Results)
	}
}

func TestHandleConcepts(t *testing.T) {
	ts := newTestServer(t, true)
	w := ts.do(t, http.MethodGet, "/api/v1/concepts", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Concepts []conceptInfo `json:"concepts"`
		BuiltAt  string        `json:"built_at"`
	}
	decode(t, w, &out)
	if len(out.Concepts) != 1 {
		t.Fatalf("concepts = %+v", out.Concepts)
	}
	c := out.Concepts[0]
	if c.Name != "Vanitas" || c.Support != 2 || c.Authority != 1 || c.Primary {
		t.Errorf("concept = %+v", c)
	}
	if out.BuiltAt == "" {
		t.Error("built_at missing")
	}

	w = ts.do(t, http.MethodPost, "/api/v1/concepts/refresh", "")
	if w.Code != http.StatusOK {
		t.Errorf("refresh status: got %d", w.Code)
	}
}

func TestHandleAffinities(t *testing.T) {
	ts := newTestServer(t, true)
	w := ts.do(t, http.MethodPost, "/api/v1/affinities", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var out struct {
		Persisted  bool                    `json:"persisted"`
		Count      int                     `json:"count"`
		Affinities []models.ArtworkConcept `json:"affinities"`
	}
	decode(t, w, &out)
	if out.Persisted || out.Count != 1 || out.Affinities[0].ArtworkID != 1 {
		t.Errorf("dry run = %+v", out)
	}

	w = ts.do(t, http.MethodPost, "/api/v1/affinities", `{"persist": true}`)
	decode(t, w, &out)
	if !out.Persisted {
		t.Error("persist flag not honored")
	}
	counts, err := ts.store.Counts(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if counts.ArtworkConcepts != 1 {
		t.Errorf("persisted mappings = %d", counts.ArtworkConcepts)
	}

	if w := ts.do(t, http.MethodPost, "/api/v1/affinities", `{"persist": "yes"}`); w.Code != http.StatusBadRequest {
		t.Errorf("invalid body status: got %d", w.Code)
	}
}

func TestHandleGetArtworkAndEssay(t *testing.T) {
	ts := newTestServer(t, true)
	tests := []struct {
		target string
		want   int
		title  string
	}{
		{"/api/v1/artworks/1", http.StatusOK, "Still Life with Skull"},
		{"/api/v1/artworks/999", http.StatusNotFound, ""},
		{"/api/v1/artworks/abc", http.StatusBadRequest, ""},
		{"/api/v1/essays/999", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		w := ts.do(t, http.MethodGet, tt.target, "")
		if w.Code != tt.want {
			t.Errorf("%s: status %d, want %d", tt.target, w.Code, tt.want)
			continue
		}
		if tt.title != "" && !strings.Contains(w.Body.String(), tt.title) {
			t.Errorf("%s: body %s", tt.target, w.Body.String())
		}
	}

	w := ts.do(t, http.MethodGet, "/api/v1/essays/"+jsonInt(ts.essayID), "")
	if w.Code != http.StatusOK {
		t.Fatalf("essay status: got %d", w.Code)
	}
	var e models.Essay
	decode(t, w, &e)
	if e.Title != "Vanitas" {
		t.Errorf("essay = %+v", e)
	}
}

func TestHandleStatus(t *testing.T) {
	ts := newTestServer(t, true)
	w := ts.do(t, http.MethodGet, "/api/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Catalog    storage.Counts         `json:"catalog"`
		VectorSize map[string]int         `json:"vector_index_size"`
		Prototypes int                    `json:"prototypes"`
		Watched    []string               `json:"watched_directories"`
		DiskUsage  *storage.DiskUsage     `json:"disk_usage"`
		Config     map[string]interface{} `json:"config"`
	}
	decode(t, w, &out)
	if out.Catalog.Artworks != 2 || out.Catalog.Essays != 2 || out.Catalog.Concepts != 1 {
		t.Errorf("catalog = %+v", out.Catalog)
	}
	if out.VectorSize["artwork"] != 2 || out.VectorSize["essay"] != 2 {
		t.Errorf("vector sizes = %v", out.VectorSize)
	}
	if out.Prototypes != 1 {
		t.Errorf("prototypes = %d", out.Prototypes)
	}
	if len(out.Watched) != 1 || out.Watched[0] != "/tmp/catalog" {
		t.Errorf("watched = %v", out.Watched)
	}
	if out.DiskUsage == nil || out.DiskUsage.Total != 0 {
		t.Errorf("disk usage = %+v", out.DiskUsage)
	}
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t, false)
	w := ts.do(t, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("health: %d %s", w.Code, w.Body.String())
	}
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
