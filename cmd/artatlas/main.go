// Package main is the ArtAtlas CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/artatlas/internal/catalog"
	"github.com/hyperjump/artatlas/internal/cli"
	"github.com/hyperjump/artatlas/internal/concept"
	"github.com/hyperjump/artatlas/internal/config"
	"github.com/hyperjump/artatlas/internal/embedding"
	"github.com/hyperjump/artatlas/internal/keyword"
	"github.com/hyperjump/artatlas/internal/models"
	"github.com/hyperjump/artatlas/internal/search"
	"github.com/hyperjump/artatlas/internal/server"
	"github.com/hyperjump/artatlas/internal/storage"
	"github.com/hyperjump/artatlas/internal/vector"
	"github.com/hyperjump/artatlas/internal/watcher"
	"github.com/hyperjump/artatlas/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/artatlas/config.yaml"

// loadConfig loads config from path. When path is the default and does not exist, it
// looks for config.yaml in the current directory, then falls back to built-in defaults.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "ingest":
		runIngest()
	case "affinities":
		runAffinities()
	case "concepts":
		runConcepts()
	case "status":
		runStatus()
	case "init":
		runInit()
	case "version", "--version", "-v":
		fmt.Printf("artatlas version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config, creates the logger and initializes every component.
func setup(configPath string, debug bool) (*Components, *zap.Logger, string) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Info("config loaded",
		zap.String("config_path", resolved),
		zap.Bool("debug", debugMode),
	)
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return components, logger, resolved
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	noSync := fs.Bool("no-sync", false, "skip ingesting catalog directories at startup")
	_ = fs.Parse(os.Args[2:])

	components, logger, _ := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()
	cfg := components.Config

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seed, err := catalog.LoadSeed(cfg.Catalog.SeedPath)
	if err != nil {
		logger.Fatal("Failed to load concept seed", zap.Error(err))
	}
	if err := components.Pipeline.RebuildIndexes(ctx); err != nil {
		logger.Fatal("Failed to rebuild indexes", zap.Error(err))
	}
	if *noSync {
		_, err = components.Pipeline.Seed(ctx, seed)
	} else {
		_, err = components.Pipeline.Sync(ctx, seed)
	}
	if err != nil {
		logger.Warn("catalog sync incomplete", zap.Error(err))
	}
	go components.Concepts.Run(ctx, time.Duration(cfg.Concepts.RefreshIntervalSec)*time.Second)

	var opts []server.Option
	if cfg.Catalog.Watch && len(cfg.Catalog.Directories) > 0 {
		pipeline := components.Pipeline
		watchSvc := watcher.NewWatcher(
			cfg.Catalog.Directories,
			cfg.Catalog.Extensions,
			pipeline,
			watcher.WithLogger(logger),
			watcher.WithRefresh(func(ctx context.Context) error {
				_, err := pipeline.Seed(ctx, seed)
				return err
			}, 2*time.Second),
		)
		if err := watchSvc.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
		opts = append(opts, server.WithWatcher(watchSvc))
	}

	srv := server.NewServer(components.Engine, components.Pipeline, components.Storage, cfg, logger, opts...)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: artatlas search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Results mix artworks and essay passages ranked by hybrid score. Detected concepts
rescore the list and are substantiated by evidence bundles.

Examples:
  artatlas search vanitas still life
  artatlas search --limit 5 "dutch golden age"
  artatlas search --output json skull
  artatlas search --server "" impressionism        # direct storage access
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// parseOutputFormat maps the --output flag to a cli format.
func parseOutputFormat(s string) (cli.OutputFormat, error) {
	switch s {
	case "text", "":
		return cli.OutputText, nil
	case "json":
		return cli.OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct storage mode)")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage)")
	limit := fs.Int("limit", 10, "number of results (0 = all)")
	debug := fs.Bool("debug", false, "enable debug logging (direct storage mode)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := parseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	query := &models.SearchQuery{Query: queryStr, Limit: *limit}

	if *serverURL != "" {
		// Use the HTTP API when the server is running; it holds the index locks.
		body, err := postJSON(*serverURL+"/api/v1/search", query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		if err := writeRemoteSearch(os.Stdout, body, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	components, logger, _ := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	if err := components.Warm(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load catalog: %v\n", err)
		os.Exit(1)
	}
	response, err := components.Engine.Search(ctx, query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// remoteResponse is a search response as decoded from the API. The explanation graph
// holds interface-typed nodes and is kept raw.
type remoteResponse struct {
	search.Response
	Explanation json.RawMessage `json:"explanation,omitempty"`
}

// writeRemoteSearch renders an API search response. JSON output is passed through.
func writeRemoteSearch(w io.Writer, body []byte, format cli.OutputFormat) error {
	if format == cli.OutputJSON {
		_, err := w.Write(body)
		return err
	}
	var resp remoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return cli.WriteSearchResults(w, &resp.Response, format)
}

// postJSON posts v to url and returns the body of a 200 response.
func postJSON(url string, v interface{}) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	seedPath := fs.String("seed", "", "concept seed file (default: catalog.seed_path or built-in concepts)")
	affinities := fs.Bool("affinities", false, "generate and persist artwork affinities after ingesting")
	_ = fs.Parse(os.Args[2:])

	components, logger, _ := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()
	cfg := components.Config

	path := *seedPath
	if path == "" {
		path = cfg.Catalog.SeedPath
	}
	seed, err := catalog.LoadSeed(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load seed: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	targets := fs.Args()
	if len(targets) == 0 {
		targets = cfg.Catalog.Directories
	}
	failed := false
	for _, target := range targets {
		info, err := os.Stat(target)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", target, err)
			failed = true
			continue
		}
		if info.IsDir() {
			n, err := components.Pipeline.IngestDirectory(ctx, target)
			fmt.Printf("%s: %d files ingested\n", target, n)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", target, err)
				failed = true
			}
			continue
		}
		report, err := components.Pipeline.IngestFile(ctx, target)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", target, err)
			failed = true
			continue
		}
		fmt.Printf("%s: %d artworks, %d essays, %d chunks\n", target, report.Artworks, report.Essays, report.Chunks)
	}

	report, err := components.Pipeline.Seed(ctx, seed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%d concepts, %d new essay links\n", report.Concepts, report.Links)
	for _, name := range report.Missing {
		fmt.Printf("warning: essay link references unknown concept %q\n", name)
	}

	if *affinities {
		mappings, err := components.Pipeline.Affinities(ctx, true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Affinities failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%d artwork affinities persisted\n", len(mappings))
	}
	if failed {
		os.Exit(1)
	}
}

func runAffinities() {
	fs := flag.NewFlagSet("affinities", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	persist := fs.Bool("persist", false, "store the generated mappings (default is a dry run)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := parseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	components, logger, _ := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	if err := components.Concepts.Refresh(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build concept prototypes: %v\n", err)
		os.Exit(1)
	}
	mappings, err := components.Pipeline.Affinities(ctx, *persist)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Affinities failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteAffinities(os.Stdout, mappings, components.Concepts.Load(), *persist, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runConcepts() {
	fs := flag.NewFlagSet("concepts", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := parseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	components, logger, _ := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	concepts, err := components.Storage.ListConcepts(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "List concepts failed: %v\n", err)
		os.Exit(1)
	}
	if err := components.Concepts.Refresh(ctx); err != nil {
		logger.Warn("concept prototypes unavailable", zap.Error(err))
	}
	rows := cli.ConceptRows(concepts, components.Concepts.Load())
	if err := cli.WriteConcepts(os.Stdout, rows, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	body, err := getJSON(strings.TrimRight(*serverURL, "/") + "/api/v1/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid status response: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(out.String())
}

func getJSON(url string) ([]byte, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "overwrite an existing config file")
	_ = fs.Parse(os.Args[2:])

	path := "config.yaml"
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	if err := writeDefaultConfig(path, *force); err != nil {
		fmt.Fprintf(os.Stderr, "Init failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote default config to %s\n", path)
}

// writeDefaultConfig saves the built-in defaults to path, refusing to replace an
// existing file unless force is set.
func writeDefaultConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	return config.Save(path, config.Default())
}

// Components holds the initialized services shared by every subcommand.
type Components struct {
	Config   *config.Config
	Storage  *storage.SQLiteStorage
	Embedder embedding.Embedder
	Indexes  search.Indexes
	Concepts *concept.Cache
	Engine   *search.Engine
	Pipeline *catalog.Pipeline
}

// Warm loads the vector indexes from storage and builds the concept prototypes.
func (c *Components) Warm(ctx context.Context) error {
	if err := c.Pipeline.RebuildIndexes(ctx); err != nil {
		return err
	}
	return c.Concepts.Refresh(ctx)
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	for _, closer := range []io.Closer{
		c.Indexes.ArtworkKeyword, c.Indexes.EssayKeyword,
		c.Indexes.ArtworkVectors, c.Indexes.EssayVectors,
	} {
		if closer != nil {
			_ = closer.Close()
		}
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	embedder, err := newEmbedder(&cfg.Embedding, logger)
	if err != nil {
		return nil, err
	}
	c.Embedder = embedder

	artworkIdx, err := keyword.NewArtworkIndex(cfg.Storage.ArtworkIndexPath, cfg.Search.ArtworkFieldBoosts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize artwork index: %w", err)
	}
	c.Indexes.ArtworkKeyword = artworkIdx
	essayIdx, err := keyword.NewEssayIndex(cfg.Storage.EssayIndexPath, cfg.Search.EssayFieldBoosts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize essay index: %w", err)
	}
	c.Indexes.EssayKeyword = essayIdx

	artworkVecs, err := vector.NewMemoryIndex(cfg.Embedding.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize artwork vectors: %w", err)
	}
	c.Indexes.ArtworkVectors = artworkVecs
	essayVecs, err := vector.NewMemoryIndex(cfg.Embedding.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize essay vectors: %w", err)
	}
	c.Indexes.EssayVectors = essayVecs

	c.Concepts = concept.NewCache(store,
		concept.WithPrimaryTypes(cfg.Concepts.PrimaryTypes...),
		concept.WithCacheLogger(logger),
	)
	c.Engine = search.NewEngine(store, embedder, c.Indexes, c.Concepts, cfg, search.WithLogger(logger))
	c.Pipeline = catalog.NewPipeline(store, embedder, c.Indexes, c.Concepts, cfg, catalog.WithLogger(logger))
	ok = true
	return c, nil
}

// newEmbedder returns the cached ONNX embedder, or a hash-based embedder when the
// runtime or model is unavailable.
func newEmbedder(cfg *config.EmbeddingConfig, logger *zap.Logger) (embedding.Embedder, error) {
	var inner embedding.Embedder
	onnxEmbedder, err := embedding.NewONNXEmbedder(embedding.ONNXOptions{
		ModelPath:     cfg.ModelPath,
		TokenizerPath: cfg.TokenizerPath,
		Dimensions:    cfg.Dimensions,
		MaxTokens:     cfg.MaxTokens,
		MeanPooling:   cfg.Pooling == "mean",
	})
	if err != nil {
		logger.Warn("ONNX embedder unavailable, using hash embeddings; semantic scores are not meaningful",
			zap.String("model_path", cfg.ModelPath), zap.Error(err))
		inner = embedding.NewMockEmbedder(cfg.Dimensions)
	} else {
		inner = onnxEmbedder
	}
	cached, err := embedding.NewCachedEmbedder(inner, cfg.CacheSize)
	if err != nil {
		_ = inner.Close()
		return nil, err
	}
	return cached, nil
}

func printUsage() {
	fmt.Println(`artatlas - Concept-grounded search over artworks and essays

Usage:
  artatlas server [flags]             Start the HTTP server
  artatlas search [flags] <query>     Search artworks and essays
  artatlas ingest [flags] [path...]   Ingest catalog files or directories, then apply the concept seed
  artatlas affinities [flags]         Propagate concepts to artworks
  artatlas concepts [flags]           List concepts and their prototypes
  artatlas status [--server url]      Show catalog and index status of a running server
  artatlas init [--force] [path]      Write the default config (default: ./config.yaml)
  artatlas version                    Show version
  artatlas help                       Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/artatlas/config.yaml)
  --debug            Enable debug logging

Server Flags:
  --no-sync          Skip ingesting catalog directories at startup

Search Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct storage.
  --limit int        Number of results (default: 10, 0 = all)
  --output string    Output format: text or json (default: text)

Ingest Flags:
  --seed string      Concept seed file
  --affinities       Generate and persist artwork affinities afterwards

Affinities Flags:
  --persist          Store the generated mappings (default: dry run)
  --output string    Output format: text or json

Concepts Flags:
  --output string    Output format: text or json

Examples:
  artatlas server
  artatlas ingest ./catalog/met_objects.json ./catalog/essays
  artatlas affinities --persist
  artatlas search "vanitas still life"
  artatlas search --output json skull
  artatlas concepts`)
}
