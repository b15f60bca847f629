// Package config provides configuration loading and structs for the kotae server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	LogLevel   string           `yaml:"log_level"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Generation GenerationConfig `yaml:"generation"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the database path and snapshot behaviour.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	// Snapshot writes the whole chunk collection to the database on shutdown
	// and restores it on startup. Defaults to true when unset.
	Snapshot *bool `yaml:"snapshot"`
}

// SnapshotOrDefault reports whether the chunk snapshot is enabled.
func (s *StorageConfig) SnapshotOrDefault() bool {
	if s.Snapshot != nil {
		return *s.Snapshot
	}
	return true
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	// Provider is one of "hash", "openai" or "onnx".
	Provider   string        `yaml:"provider"`
	Model      string        `yaml:"model"`
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Dimensions int           `yaml:"dimensions"`
	BatchSize  int           `yaml:"batch_size"`
	CacheSize  int           `yaml:"cache_size"`
	Timeout    time.Duration `yaml:"timeout"`
	ModelPath  string        `yaml:"model_path"`
	MaxTokens  int           `yaml:"max_tokens"`
}

// ChunkingConfig holds the default chunk window used when an ingest call does not override it.
type ChunkingConfig struct {
	ChunkSize int `yaml:"chunk_size"`
	// ChunkOverlap defaults to 200 when unset; an explicit 0 disables overlap.
	ChunkOverlap *int `yaml:"chunk_overlap"`
}

// DefaultChunkOverlap is the overlap used when chunk_overlap is unset.
const DefaultChunkOverlap = 200

// OverlapOrDefault returns the configured overlap, or DefaultChunkOverlap when unset.
func (c *ChunkingConfig) OverlapOrDefault() int {
	if c.ChunkOverlap != nil {
		return *c.ChunkOverlap
	}
	return DefaultChunkOverlap
}

// RetrievalConfig holds top-k and context assembly settings.
type RetrievalConfig struct {
	TopK               int     `yaml:"top_k"`
	MaxK               int     `yaml:"max_k"`
	MinScore           float64 `yaml:"min_score"`
	SourcePreviewChars int     `yaml:"source_preview_chars"`
	MaxContextChars    int     `yaml:"max_context_chars"`
}

// GenerationConfig holds the completion provider settings.
type GenerationConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float32       `yaml:"temperature"`
	// AnswerWithoutContext asks the model to state that it lacks context when
	// retrieval finds nothing. When false a fixed answer is returned instead.
	AnswerWithoutContext *bool `yaml:"answer_without_context"`
	// ExposeErrors includes provider error detail in API responses.
	ExposeErrors bool `yaml:"expose_errors"`
}

// AnswerWithoutContextOrDefault defaults to true when unset.
func (g *GenerationConfig) AnswerWithoutContextOrDefault() bool {
	if g.AnswerWithoutContext != nil {
		return *g.AnswerWithoutContext
	}
	return true
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, loads a .env file next to it
// when present, applies environment overrides and defaults, and expands paths.
// A missing config file is not an error: defaults and environment are used.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	configDir := filepath.Dir(path)
	if err := LoadEnvFile(filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}
	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is ignored.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg fields from KOTAE_* environment variables.
func ApplyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", models.ErrConfiguration, key, v)
		}
		*dst = n
		return nil
	}

	setString("KOTAE_LLM_BASE_URL", &cfg.Generation.BaseURL)
	setString("KOTAE_LLM_MODEL", &cfg.Generation.Model)
	setString("KOTAE_EMBEDDING_PROVIDER", &cfg.Embedding.Provider)
	setString("KOTAE_EMBEDDING_MODEL", &cfg.Embedding.Model)
	setString("KOTAE_EMBEDDING_BASE_URL", &cfg.Embedding.BaseURL)
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if cfg.Generation.APIKey == "" {
			cfg.Generation.APIKey = key
		}
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = key
		}
	}
	if err := setInt("KOTAE_CHUNK_SIZE", &cfg.Chunking.ChunkSize); err != nil {
		return err
	}
	if v := os.Getenv("KOTAE_CHUNK_OVERLAP"); v != "" {
		overlap := 0
		if err := setInt("KOTAE_CHUNK_OVERLAP", &overlap); err != nil {
			return err
		}
		cfg.Chunking.ChunkOverlap = &overlap
	}
	return setInt("KOTAE_RETRIEVAL_K", &cfg.Retrieval.TopK)
}

// Validate checks settings that would otherwise fail on first use.
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", models.ErrConfiguration, c.Chunking.ChunkSize)
	}
	if overlap := c.Chunking.OverlapOrDefault(); overlap < 0 || overlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, %d), got %d",
			models.ErrConfiguration, c.Chunking.ChunkSize, overlap)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("%w: embedding dimensions must be positive", models.ErrConfiguration)
	}
	switch c.Embedding.Provider {
	case "hash", "openai", "onnx":
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", models.ErrConfiguration, c.Embedding.Provider)
	}
	if c.Retrieval.TopK <= 0 || c.Retrieval.TopK > c.Retrieval.MaxK {
		return fmt.Errorf("%w: top_k must be in [1, %d], got %d", models.ErrConfiguration, c.Retrieval.MaxK, c.Retrieval.TopK)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir,
// "~/" is the home directory, other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/"))
}

// ExpandHome replaces a leading "~/" in path with the home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
