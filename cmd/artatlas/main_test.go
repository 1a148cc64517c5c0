package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/artatlas/internal/cli"
	"github.com/hyperjump/artatlas/internal/config"
	"github.com/hyperjump/artatlas/internal/models"
)

func TestSearchArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"vanitas still life", "-limit", "5"},
			expected: []string{"-limit", "5", "vanitas still life"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-limit", "5", "vanitas still life"},
			expected: []string{"-limit", "5", "vanitas still life"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"vanitas still life"},
			expected: []string{"vanitas still life"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"dutch", "golden", "age", "-output", "json"},
			expected: []string{"-output", "json", "dutch", "golden", "age"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := searchArgsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("searchArgsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"impressionism"}, "impressionism"},
		{"multiple words", []string{"still", "life"}, "still life"},
		{"single quoted phrase", []string{"still life"}, "still life"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildSearchQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestParseOutputFormat(t *testing.T) {
	if f, err := parseOutputFormat("json"); err != nil || f != cli.OutputJSON {
		t.Errorf("json: got %q, %v", f, err)
	}
	if f, err := parseOutputFormat(""); err != nil || f != cli.OutputText {
		t.Errorf("empty: got %q, %v", f, err)
	}
	if _, err := parseOutputFormat("compact"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "./catalog.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_defaultsWhenNothingFound(t *testing.T) {
	if _, err := os.Stat(defaultConfigPath); err == nil {
		t.Skip("a system config exists")
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != "" {
		t.Errorf("resolved = %q, want empty", resolved)
	}
	if cfg.Search.LexicalWeight != 0.4 {
		t.Errorf("defaults not applied: %+v", cfg.Search)
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if _, _, err := loadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit path")
	}
}

const remoteBody = `{
  "query": "skull",
  "message": "Search Successful",
  "metadata": {"path_taken": "lexical+vector", "artwork_results": 1, "essay_results": 0, "detected_concepts": 0, "query_time_ms": 3},
  "results": [{"id": 1, "type": "artwork", "title": "Still Life with a Skull", "lexical_score": 1, "semantic_score": 1, "final_score": 1, "rank": 1, "retrieval_trace": {}}],
  "detected_concepts": [],
  "explanation": {"nodes": [{"id": "query", "node_type": "query"}], "edges": []}
}`

func TestWriteRemoteSearch(t *testing.T) {
	var buf bytes.Buffer
	if err := writeRemoteSearch(&buf, []byte(remoteBody), cli.OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Still Life with a Skull") {
		t.Errorf("text output missing result:\n%s", buf.String())
	}

	buf.Reset()
	if err := writeRemoteSearch(&buf, []byte(remoteBody), cli.OutputJSON); err != nil {
		t.Fatal(err)
	}
	if buf.String() != remoteBody {
		t.Error("JSON output should pass the server body through")
	}

	if err := writeRemoteSearch(&buf, []byte("not json"), cli.OutputText); err == nil {
		t.Error("expected decode error")
	}
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var q models.SearchQuery
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil || r.URL.Path != "/api/v1/search" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if q.Query == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"InAppropriate Query"}`))
			return
		}
		_, _ = w.Write([]byte(remoteBody))
	}))
	defer srv.Close()

	body, err := postJSON(srv.URL+"/api/v1/search", &models.SearchQuery{Query: "skull", Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != remoteBody {
		t.Errorf("body = %s", body)
	}

	_, err = postJSON(srv.URL+"/api/v1/search", &models.SearchQuery{})
	if err == nil || !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "InAppropriate Query") {
		t.Errorf("err = %v", err)
	}
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/status" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"prototypes":3}`))
	}))
	defer srv.Close()

	body, err := getJSON(srv.URL + "/api/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != `{"prototypes":3}` {
		t.Errorf("body = %s", body)
	}
	if _, err := getJSON(srv.URL + "/missing"); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("err = %v", err)
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "config.yaml")
	if err := writeDefaultConfig(path, false); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8080 || cfg.Concepts.DetectionThreshold != 0.7 {
		t.Errorf("unexpected defaults: port %d, threshold %v", cfg.Server.Port, cfg.Concepts.DetectionThreshold)
	}
	if err := writeDefaultConfig(path, false); err == nil {
		t.Error("expected error for existing file without force")
	}
	if err := writeDefaultConfig(path, true); err != nil {
		t.Errorf("force overwrite: %v", err)
	}
}
