package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

// recordingIndexer records the paths it was asked to index and remove.
type recordingIndexer struct {
	mu      sync.Mutex
	indexed []string
	removed []string
}

func (r *recordingIndexer) IndexFile(_ context.Context, path string, _ []string) (*models.IngestResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed = append(r.indexed, path)
	return &models.IngestResult{DocumentID: path, ChunkCount: 1}, nil
}

func (r *recordingIndexer) RemoveFile(_ context.Context, path string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, path)
	return 1, nil
}

func (r *recordingIndexer) snapshot() (indexed, removed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.indexed...), append([]string(nil), r.removed...)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startWatcher(t *testing.T, files FileIndexer, roots []string, opts Options) *Watcher {
	t.Helper()
	if opts.Debounce == 0 {
		opts.Debounce = 30 * time.Millisecond
	}
	w := NewWatcher(files, roots, opts)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_IndexesWrittenFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	rec := &recordingIndexer{}
	startWatcher(t, rec, []string{dir}, Options{Extensions: []string{".txt"}, Recursive: true})

	txt := filepath.Join(sub, "notes.txt")
	if err := os.WriteFile(txt, []byte("hello"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "image.png"), []byte{0x89}, 0o600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "index of notes.txt", func() bool {
		indexed, _ := rec.snapshot()
		return contains(indexed, txt)
	})

	if err := os.Remove(txt); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "removal of notes.txt", func() bool {
		_, removed := rec.snapshot()
		return contains(removed, txt)
	})

	indexed, _ := rec.snapshot()
	if contains(indexed, filepath.Join(dir, "image.png")) {
		t.Error("file with a filtered extension was indexed")
	}
}

func TestWatcher_DebounceCoalescesWrites(t *testing.T) {
	dir := t.TempDir()
	rec := &recordingIndexer{}
	startWatcher(t, rec, []string{dir}, Options{Debounce: 200 * time.Millisecond})

	path := filepath.Join(dir, "a.md")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte(time.Now().String()), 0o600); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	waitFor(t, "debounced index", func() bool {
		indexed, _ := rec.snapshot()
		return len(indexed) > 0
	})
	time.Sleep(300 * time.Millisecond)
	if indexed, _ := rec.snapshot(); len(indexed) != 1 {
		t.Errorf("expected one index after burst of writes, got %d", len(indexed))
	}
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	dir := t.TempDir()
	rec := &recordingIndexer{}
	startWatcher(t, rec, []string{dir}, Options{Recursive: true})

	sub := filepath.Join(dir, "new")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher time to register the new directory.
	time.Sleep(100 * time.Millisecond)
	path := filepath.Join(sub, "late.txt")
	if err := os.WriteFile(path, []byte("late"), 0o600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "index of file in new directory", func() bool {
		indexed, _ := rec.snapshot()
		return contains(indexed, path)
	})
}

func TestWatcher_AddRemoveDirectories(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "existing.txt")
	if err := os.WriteFile(existing, []byte("already here"), 0o600); err != nil {
		t.Fatal(err)
	}
	rec := &recordingIndexer{}
	w := startWatcher(t, rec, nil, Options{})

	if err := w.AddDirectory(dir, true); err != nil {
		t.Fatal(err)
	}
	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	if dirs := w.Directories(); len(dirs) != 1 || dirs[0] != filepath.Clean(dir) {
		t.Errorf("Directories() = %v", dirs)
	}
	waitFor(t, "sync of existing file", func() bool {
		indexed, _ := rec.snapshot()
		return contains(indexed, existing)
	})

	if err := w.RemoveDirectory(dir); err != nil {
		t.Fatal(err)
	}
	if len(w.Directories()) != 0 {
		t.Errorf("after remove: %v", w.Directories())
	}
	if err := w.AddDirectory(filepath.Join(dir, "missing"), false); err == nil {
		t.Error("expected error adding a missing directory")
	}
}

func TestWatcher_StartRejectsMissingRoot(t *testing.T) {
	w := NewWatcher(&recordingIndexer{}, []string{filepath.Join(t.TempDir(), "nope")}, Options{})
	if err := w.Start(context.Background()); err == nil {
		w.Stop()
		t.Fatal("expected error for missing root")
	}
}

func TestSync_NonRecursiveSkipsSubdirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	hidden := filepath.Join(dir, ".cache")
	for _, d := range []string{sub, hidden} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	top := filepath.Join(dir, "top.txt")
	for _, p := range []string{top, filepath.Join(sub, "nested.txt"), filepath.Join(hidden, "x.txt")} {
		if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	rec := &recordingIndexer{}
	w := NewWatcher(rec, []string{dir}, Options{})
	w.ctx = context.Background()
	w.Sync(dir)
	indexed, _ := rec.snapshot()
	if len(indexed) != 1 || indexed[0] != top {
		t.Errorf("non-recursive sync indexed %v", indexed)
	}

	rec = &recordingIndexer{}
	w = NewWatcher(rec, []string{dir}, Options{Recursive: true})
	w.ctx = context.Background()
	w.Sync(dir)
	if indexed, _ := rec.snapshot(); len(indexed) != 2 {
		t.Errorf("recursive sync indexed %v", indexed)
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.txt", []string{".txt"}, true},
		{"/a/b.TXT", []string{"txt"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b", nil, true},
		{"/a/b", []string{".txt"}, false},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.extensions); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.txt", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/ab", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		if got := inDir(tt.dir, tt.path); got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}
