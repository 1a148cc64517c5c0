// Package watcher re-ingests catalog files when they change on disk.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/artatlas/internal/catalog"
)

const (
	defaultDebounce     = 400 * time.Millisecond
	defaultRefreshDelay = 2 * time.Second
)

// Ingester ingests one catalog file.
type Ingester interface {
	IngestFile(ctx context.Context, path string) (*catalog.FileReport, error)
}

// RefreshFunc rebuilds concept state after a burst of ingests.
type RefreshFunc func(ctx context.Context) error

// Watcher watches catalog directories and ingests created or changed files.
type Watcher struct {
	roots        []string
	extensions   []string
	ingester     Ingester
	refresh      RefreshFunc
	debounce     time.Duration
	refreshDelay time.Duration
	watcher      *fsnotify.Watcher
	mu           sync.Mutex
	pending      map[string]*time.Timer
	refreshTimer *time.Timer
	ctx          context.Context
	done         chan struct{}
	started      bool
	stopOnce     sync.Once
	logger       *zap.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets how long a file must stay quiet before it is ingested.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithRefresh sets the function run once ingests settle for delay.
func WithRefresh(fn RefreshFunc, delay time.Duration) Option {
	return func(w *Watcher) {
		w.refresh = fn
		if delay > 0 {
			w.refreshDelay = delay
		}
	}
}

// NewWatcher creates a watcher over roots (recursively). extensions filter which files
// are ingested; empty means all.
func NewWatcher(roots []string, extensions []string, ingester Ingester, opts ...Option) *Watcher {
	w := &Watcher{
		roots:        roots,
		extensions:   extensions,
		ingester:     ingester,
		debounce:     defaultDebounce,
		refreshDelay: defaultRefreshDelay,
		pending:      make(map[string]*time.Timer),
		done:         make(chan struct{}),
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start starts watching. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.ctx = ctx
	w.started = true
	w.logger.Debug("watcher starting", zap.Strings("roots", w.roots), zap.Strings("extensions", w.extensions))
	for _, root := range w.roots {
		if err := w.addRootLocked(root); err != nil {
			_ = w.watcher.Close()
			w.watcher = nil
			w.started = false
			w.mu.Unlock()
			return err
		}
	}
	w.mu.Unlock()
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	w.mu.Lock()
	events, errs := w.watcher.Events, w.watcher.Errors
	w.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-errs:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	if !w.underRoot(path) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
		if matchExtension(path, w.extensions) {
			w.debounceIngest(path)
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// Records stay in the catalog; only a pending ingest is dropped.
		w.cancelDebounce(path)
	}
}

// handleNewDirectory watches a created or moved-in directory and ingests its files.
func (w *Watcher) handleNewDirectory(dirPath string) {
	w.mu.Lock()
	watcher := w.watcher
	w.mu.Unlock()
	if watcher == nil {
		return
	}
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := watcher.Add(path); err != nil {
				w.logger.Warn("watcher failed to add directory", zap.String("path", path), zap.Error(err))
			}
			return nil
		}
		if matchExtension(path, w.extensions) {
			w.debounceIngest(path)
		}
		return nil
	})
}

func (w *Watcher) underRoot(path string) bool {
	w.mu.Lock()
	roots := append([]string(nil), w.roots...)
	w.mu.Unlock()
	clean := filepath.Clean(path)
	for _, root := range roots {
		if inDir(filepath.Clean(root), clean) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

func (w *Watcher) debounceIngest(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		ctx := w.ctx
		w.mu.Unlock()
		w.ingest(ctx, path)
	})
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	if ctx == nil || ctx.Err() != nil {
		return
	}
	report, err := w.ingester.IngestFile(ctx, path)
	if err != nil {
		w.logger.Warn("watcher ingest failed", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Info("watcher ingested file",
		zap.String("path", path),
		zap.Int("artworks", report.Artworks),
		zap.Int("essays", report.Essays),
	)
	w.scheduleRefresh()
}

// scheduleRefresh runs the refresh function once no ingest happened for refreshDelay.
func (w *Watcher) scheduleRefresh() {
	if w.refresh == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if w.refreshTimer != nil {
		w.refreshTimer.Stop()
	}
	w.refreshTimer = time.AfterFunc(w.refreshDelay, func() {
		w.mu.Lock()
		ctx := w.ctx
		w.refreshTimer = nil
		w.mu.Unlock()
		if ctx == nil || ctx.Err() != nil {
			return
		}
		if err := w.refresh(ctx); err != nil {
			w.logger.Warn("watcher concept refresh failed", zap.Error(err))
			return
		}
		w.logger.Debug("watcher concept refresh done")
	})
}

func (w *Watcher) addRootLocked(root string) error {
	root = filepath.Clean(root)
	if _, err := os.Stat(root); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if err := os.MkdirAll(root, 0755); err != nil {
			return err
		}
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return w.watcher.Add(path)
	})
}

// Directories returns a copy of the watched root directories.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

// Stop stops the watcher and drops pending ingests.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	if w.refreshTimer != nil {
		w.refreshTimer.Stop()
		w.refreshTimer = nil
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
