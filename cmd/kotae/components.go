package main

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/service"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"go.uber.org/zap"
)

// Components holds everything a command needs to run in-process.
type Components struct {
	Config   *config.Config
	Storage  storage.Storage
	Embedder embedding.Embedder
	Index    *vector.MemoryIndex
	Indexer  *indexer.Indexer
	Engine   *search.Engine
	Service  *service.Service
	logger   *zap.Logger
}

// Close saves the snapshot when enabled and releases the embedder and storage.
func (c *Components) Close() {
	if c.Storage != nil && c.Config.Storage.SnapshotOrDefault() {
		if _, err := c.Service.Snapshot(context.Background()); err != nil {
			c.logger.Warn("failed to save snapshot", zap.Error(err))
		}
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	c := &Components{Config: cfg, Storage: store, logger: logger}

	c.Embedder, err = embedding.New(cfg.Embedding, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	c.Index, err = vector.NewMemoryIndex(c.Embedder.Dimensions())
	if err != nil {
		c.closeQuietly()
		return nil, err
	}
	c.Indexer, err = indexer.NewIndexer(c.Embedder, c.Index,
		models.ChunkConfig{Size: cfg.Chunking.ChunkSize, Overlap: cfg.Chunking.OverlapOrDefault()},
		indexer.WithStorage(store),
		indexer.WithLogger(logger.Named("indexer")))
	if err != nil {
		c.closeQuietly()
		return nil, err
	}
	c.Engine, err = search.NewEngine(c.Embedder, c.Index, search.Options{
		DefaultK:           cfg.Retrieval.TopK,
		MaxK:               cfg.Retrieval.MaxK,
		MinScore:           cfg.Retrieval.MinScore,
		SourcePreviewChars: cfg.Retrieval.SourcePreviewChars,
		MaxContextChars:    cfg.Retrieval.MaxContextChars,
	}, search.WithLogger(logger.Named("search")))
	if err != nil {
		c.closeQuietly()
		return nil, err
	}
	provider, err := generation.NewOpenAIProvider(cfg.Generation.BaseURL, cfg.Generation.APIKey,
		cfg.Generation.Model, cfg.Generation.Temperature)
	if err != nil {
		c.closeQuietly()
		return nil, fmt.Errorf("create completion provider: %w", err)
	}
	generator := generation.NewGenerator(provider,
		generation.WithTimeout(cfg.Generation.Timeout),
		generation.WithLogger(logger.Named("generation")))

	c.Service = service.New(c.Indexer, c.Engine, c.Index,
		service.WithStorage(store),
		service.WithGenerator(generator),
		service.WithAnswerWithoutContext(cfg.Generation.AnswerWithoutContextOrDefault()),
		service.WithLogger(logger.Named("service")))

	if cfg.Storage.SnapshotOrDefault() {
		n, err := c.Service.Restore(context.Background())
		if err != nil {
			// A snapshot from another embedding model cannot be loaded; start empty.
			logger.Warn("snapshot not restored", zap.Error(err))
		} else {
			logger.Info("snapshot restored", zap.Int("chunks", n))
		}
	}
	return c, nil
}

func (c *Components) closeQuietly() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	_ = c.Storage.Close()
}
