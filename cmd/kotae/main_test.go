package main

import (
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{"flags after query are moved first", []string{"how do I install", "-k", "8"}, []string{"-k", "8", "how do I install"}},
		{"flags first returns unchanged", []string{"-k", "8", "question"}, []string{"-k", "8", "question"}},
		{"query only returns unchanged", []string{"question"}, []string{"question"}},
		{"empty args returns unchanged", []string{}, []string{}},
		{"multiple positionals then flags", []string{"one", "two", "-output", "json"}, []string{"-output", "json", "one", "two"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := argsReorder(tt.args); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"leave"}, "leave"},
		{"multiple words", []string{"leave", "policy"}, "leave policy"},
		{"quoted phrase", []string{"leave policy"}, "leave policy"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildQuery(tt.args); got != tt.expected {
				t.Errorf("buildQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestStringList(t *testing.T) {
	var s stringList
	for _, v := range []string{"a", "b, c", " ,"} {
		if err := s.Set(v); err != nil {
			t.Fatal(err)
		}
	}
	if !reflect.DeepEqual([]string(s), []string{"a", "b", "c"}) || s.String() != "a,b,c" {
		t.Errorf("stringList = %v", s)
	}
}

func TestReadInputs(t *testing.T) {
	dir := t.TempDir()
	hidden := filepath.Join(dir, ".git")
	if err := os.MkdirAll(hidden, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"a.txt":           "Alpha.",
		"b.md":            "# Bravo",
		"c.bin":           "ignored",
		".git/config.txt": "ignored",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	inputs, err := readInputs(dir, "", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	var titles []string
	for _, in := range inputs {
		titles = append(titles, in.Title)
		if in.ID != fileid.FromPath(filepath.Join(dir, in.Title)) {
			t.Errorf("%s: ID %q not derived from path", in.Title, in.ID)
		}
	}
	sort.Strings(titles)
	if !reflect.DeepEqual(titles, []string{"a.txt", "b.md"}) {
		t.Errorf("titles = %v", titles)
	}

	chunking := &models.ChunkOverride{Size: 100}
	single, err := readInputs(filepath.Join(dir, "a.txt"), "custom", "Custom", chunking)
	if err != nil {
		t.Fatal(err)
	}
	if len(single) != 1 || single[0].ID != "custom" || single[0].Title != "Custom" || single[0].Content != "Alpha." || single[0].Chunking != chunking {
		t.Errorf("single input = %+v", single[0])
	}

	if _, err := readInputs(dir, "custom", "", nil); err == nil {
		t.Error("expected error for --id on a directory")
	}
	if _, err := readInputs(filepath.Join(dir, "missing.txt"), "", "", nil); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadConfig_explicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kotae.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9191\nstorage:\n  database_path: ./data/kotae.db\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, resolved, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != path || cfg.Server.Port != 9191 {
		t.Errorf("resolved %q, port %d", resolved, cfg.Server.Port)
	}
	if cfg.Storage.DatabasePath != filepath.Join(dir, "data/kotae.db") {
		t.Errorf("database path %q", cfg.Storage.DatabasePath)
	}
}

func TestChunkOverride(t *testing.T) {
	if got := chunkOverride(0, -1); got != nil {
		t.Errorf("no flags: got %+v, want nil", got)
	}
	got := chunkOverride(0, 0)
	if got == nil || got.Size != 0 || got.Overlap == nil || *got.Overlap != 0 {
		t.Errorf("zero overlap: got %+v", got)
	}
	got = chunkOverride(500, -1)
	if got == nil || got.Size != 500 || got.Overlap != nil {
		t.Errorf("size only: got %+v", got)
	}
}
