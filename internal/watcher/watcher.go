// Package watcher keeps the index in step with directories on disk using fsnotify.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

// DefaultDebounce is how long a file must stay quiet before it is re-indexed.
const DefaultDebounce = 400 * time.Millisecond

// FileIndexer ingests and removes files. *indexer.Indexer implements it.
type FileIndexer interface {
	IndexFile(ctx context.Context, path string, allowedExts []string) (*models.IngestResult, error)
	RemoveFile(ctx context.Context, path string) (int, error)
}

// Options configures which files are watched.
type Options struct {
	// Extensions filters files by extension; empty means all files.
	Extensions []string
	Recursive  bool
	Debounce   time.Duration
}

// Watcher re-ingests files under its roots when they change and removes
// their documents when they are deleted or renamed away.
type Watcher struct {
	files FileIndexer
	opts  Options

	mu        sync.Mutex
	roots     []string
	rootPaths map[string][]string // root -> directories registered with fsnotify
	pending   map[string]*time.Timer
	fsw       *fsnotify.Watcher
	ctx       context.Context
	done      chan struct{}
	stopOnce  sync.Once

	logger *zap.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the watcher logger.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWatcher returns a watcher for roots. Call Start to begin watching.
func NewWatcher(files FileIndexer, roots []string, opts Options, options ...WatcherOption) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	w := &Watcher{
		files:     files,
		opts:      opts,
		roots:     append([]string(nil), roots...),
		rootPaths: make(map[string][]string),
		pending:   make(map[string]*time.Timer),
		done:      make(chan struct{}),
		logger:    zap.NewNop(),
	}
	for _, o := range options {
		o(w)
	}
	return w
}

// Start registers the roots with fsnotify and handles events until ctx is
// cancelled or Stop is called. Every root must be an existing directory.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w.fsw = fsw
	w.ctx = ctx
	for i, root := range w.roots {
		abs, err := filepath.Abs(root)
		if err == nil {
			err = w.addRootLocked(abs)
		}
		if err != nil {
			_ = fsw.Close()
			w.fsw = nil
			return fmt.Errorf("watch %s: %w", root, err)
		}
		w.roots[i] = abs
	}
	w.logger.Info("watcher started",
		zap.Strings("roots", w.roots),
		zap.Strings("extensions", w.opts.Extensions),
		zap.Bool("recursive", w.opts.Recursive))
	go w.run(ctx, fsw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if !w.underRoot(path) || isHidden(filepath.Base(path)) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancel(path)
		if matchExtension(path, w.opts.Extensions) {
			w.remove(path)
		}
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			if ev.Has(fsnotify.Create) && w.opts.Recursive {
				w.handleNewDirectory(path)
			}
			return
		}
		if matchExtension(path, w.opts.Extensions) {
			w.schedule(path)
		}
	}
}

// handleNewDirectory watches a directory created under a recursive root and
// indexes the files already inside it.
func (w *Watcher) handleNewDirectory(dir string) {
	w.mu.Lock()
	if w.fsw == nil {
		w.mu.Unlock()
		return
	}
	root := w.rootOf(dir)
	paths, err := w.watchTree(dir)
	if err != nil {
		w.logger.Warn("watcher failed to add directory", zap.String("path", dir), zap.Error(err))
	}
	w.rootPaths[root] = append(w.rootPaths[root], paths...)
	w.mu.Unlock()
	w.Sync(dir)
}

// schedule indexes path once it has been quiet for the debounce interval.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.opts.Debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		ctx := w.ctx
		w.mu.Unlock()
		w.index(ctx, path)
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) index(ctx context.Context, path string) {
	if ctx == nil || ctx.Err() != nil {
		return
	}
	res, err := w.files.IndexFile(ctx, path, w.opts.Extensions)
	if err != nil {
		w.logger.Warn("watcher failed to index file", zap.String("path", path), zap.Error(err))
		return
	}
	if res.Skipped {
		return
	}
	w.logger.Info("watcher file indexed",
		zap.String("path", path),
		zap.String("document_id", res.DocumentID),
		zap.Int("chunks", res.ChunkCount))
}

func (w *Watcher) remove(path string) {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	n, err := w.files.RemoveFile(ctx, path)
	if err != nil {
		w.logger.Warn("watcher failed to remove file", zap.String("path", path), zap.Error(err))
		return
	}
	if n > 0 {
		w.logger.Info("watcher file removed", zap.String("path", path), zap.Int("chunks", n))
	}
}

// AddDirectory starts watching root. When syncExisting is set the files
// already in root are indexed in the background.
func (w *Watcher) AddDirectory(root string, syncExisting bool) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	if w.fsw == nil {
		w.mu.Unlock()
		return errors.New("watcher not started")
	}
	for _, r := range w.roots {
		if r == abs {
			w.mu.Unlock()
			return nil
		}
	}
	if err := w.addRootLocked(abs); err != nil {
		w.mu.Unlock()
		return err
	}
	w.roots = append(w.roots, abs)
	w.mu.Unlock()
	w.logger.Info("watcher directory added", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if syncExisting {
		go w.Sync(abs)
	}
	return nil
}

// RemoveDirectory stops watching root. Documents already indexed from it stay.
func (w *Watcher) RemoveDirectory(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, r := range w.roots {
		if r != abs {
			continue
		}
		if w.fsw != nil {
			for _, p := range w.rootPaths[abs] {
				_ = w.fsw.Remove(p)
			}
		}
		delete(w.rootPaths, abs)
		w.roots = append(w.roots[:i], w.roots[i+1:]...)
		w.logger.Info("watcher directory removed", zap.String("path", abs))
		return nil
	}
	return nil
}

func (w *Watcher) addRootLocked(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", root)
	}
	paths, err := w.watchTree(root)
	if err != nil {
		return err
	}
	w.rootPaths[root] = paths
	return nil
}

// watchTree registers dir, and its subdirectories when recursive, with fsnotify.
func (w *Watcher) watchTree(dir string) ([]string, error) {
	if !w.opts.Recursive {
		if err := w.fsw.Add(dir); err != nil {
			return nil, err
		}
		return []string{dir}, nil
	}
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	})
	return paths, err
}

// Sync indexes every matching file under dir, honoring the recursive option.
func (w *Watcher) Sync(dir string) {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != dir && (!w.opts.Recursive || isHidden(d.Name())) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && matchExtension(path, w.opts.Extensions) {
			w.index(ctx, path)
		}
		return nil
	})
}

// SyncExistingFiles indexes the files already present in every root.
func (w *Watcher) SyncExistingFiles() {
	for _, root := range w.Directories() {
		w.Sync(root)
	}
}

// Directories returns the watched roots.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

// Stop cancels pending re-indexes and closes the fsnotify watcher. A stopped
// watcher cannot be started again.
func (w *Watcher) Stop() {
	w.mu.Lock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	if w.fsw != nil {
		_ = w.fsw.Close()
		w.fsw = nil
	}
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) underRoot(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rootOf(path) != ""
}

// rootOf returns the root containing path, or "". Callers hold w.mu.
func (w *Watcher) rootOf(path string) string {
	for _, root := range w.roots {
		if inDir(root, path) {
			return root
		}
	}
	return ""
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
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
