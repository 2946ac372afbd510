package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/ragdocs/internal/blob"
	"github.com/hyperjump/ragdocs/internal/chunker"
	"github.com/hyperjump/ragdocs/internal/config"
	"github.com/hyperjump/ragdocs/internal/embedding"
	"github.com/hyperjump/ragdocs/internal/enrich"
	"github.com/hyperjump/ragdocs/internal/keyword"
	"github.com/hyperjump/ragdocs/internal/llm"
	"github.com/hyperjump/ragdocs/internal/loader"
	"github.com/hyperjump/ragdocs/internal/metrics"
	"github.com/hyperjump/ragdocs/internal/rag"
	"github.com/hyperjump/ragdocs/internal/session"
	"github.com/hyperjump/ragdocs/internal/store"
	"github.com/hyperjump/ragdocs/internal/vector"
)

// Components holds initialized services.
type Components struct {
	Store       *store.Store
	Blobs       blob.Store
	Embedder    embedding.Embedder
	VectorIndex vector.Index
	ChatIndex   *keyword.BleveIndex
	Metrics     *metrics.Metrics
	Enricher    *enrich.Worker
	Sessions    *session.Service
}

// Close releases components in reverse dependency order.
func (c *Components) Close() {
	if c.Enricher != nil {
		c.Enricher.Stop()
	}
	if c.ChatIndex != nil {
		_ = c.ChatIndex.Close()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{Metrics: metrics.New()}
	if err := c.build(ctx, cfg, logger); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Components) build(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	st, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Store = st

	c.Blobs, err = newBlobStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		if cfg.Embedding.Provider != "onnx" {
			return fmt.Errorf("failed to initialize embedder: %w", err)
		}
		// Without the ONNX runtime the service still starts, with meaningless retrieval.
		logger.Warn("onnx embedder unavailable, falling back to mock embeddings", zap.Error(err))
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	}
	c.Embedder = embedder

	index, err := vector.NewIndex(cfg.Vector, c.Embedder.Dimensions(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize vector index: %w", err)
	}
	c.VectorIndex = index
	logger.Info("vector index initialized",
		zap.String("backend", cfg.Vector.Backend),
		zap.Int("dimensions", c.Embedder.Dimensions()))

	chats, err := keyword.NewBleveIndex(cfg.Keyword.IndexPath)
	if err != nil {
		return fmt.Errorf("failed to initialize chat index: %w", err)
	}
	c.ChatIndex = chats

	model := llm.NewClient(llm.Options{
		BaseURL:           cfg.LLM.BaseURL,
		APIKey:            cfg.LLM.APIKey,
		Model:             cfg.LLM.Model,
		Temperature:       cfg.LLM.Temperature,
		MaxTokens:         cfg.LLM.MaxTokens,
		Timeout:           time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		Logger:            logger,
	})

	ragOpts := []rag.Option{
		rag.WithLogger(logger),
		rag.WithMetrics(c.Metrics),
		rag.WithTopK(cfg.Vector.TopK),
		rag.WithSampleSize(cfg.Vector.TitleSample),
	}
	pipeline := rag.NewPipeline(
		loader.New(c.Blobs, loader.WithLogger(logger)),
		chunker.New(chunker.WithChunkSize(cfg.Chunking.ChunkSize), chunker.WithOverlap(cfg.Chunking.ChunkOverlap)),
		c.Embedder,
		c.VectorIndex,
		ragOpts...,
	)
	generator := rag.NewGenerator(c.Embedder, c.VectorIndex, model, ragOpts...)
	titler := rag.NewTitler(c.VectorIndex, model, ragOpts...)

	queue, err := newTitleQueue(ctx, cfg.Enrichment)
	if err != nil {
		return fmt.Errorf("failed to initialize enrichment queue: %w", err)
	}
	c.Enricher = enrich.NewWorker(queue, titler, c.Store,
		enrich.WithLogger(logger),
		enrich.WithMetrics(c.Metrics),
		enrich.WithWorkers(cfg.Enrichment.Workers),
	)

	c.Sessions = session.New(c.Store, c.Blobs, pipeline, generator,
		session.WithLogger(logger),
		session.WithTitleQueue(c.Enricher),
		session.WithChatIndex(c.ChatIndex),
	)
	return nil
}

func newBlobStore(ctx context.Context, cfg config.StorageConfig) (blob.Store, error) {
	switch cfg.BlobBackend {
	case "disk", "":
		return blob.NewDiskStore(cfg.BlobDir, cfg.PublicURL)
	case "s3":
		return blob.NewS3Store(ctx, blob.S3Options{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			PublicURL: cfg.PublicURL,
		})
	default:
		return nil, fmt.Errorf("unknown blob backend: %s (supported: disk, s3)", cfg.BlobBackend)
	}
}

func newTitleQueue(ctx context.Context, cfg config.EnrichmentConfig) (enrich.Queue, error) {
	switch cfg.Backend {
	case "memory", "":
		return enrich.NewMemoryQueue(cfg.QueueSize), nil
	case "redis":
		return enrich.NewRedisQueue(ctx, cfg.RedisURL, cfg.RedisKey, cfg.QueueSize)
	default:
		return nil, fmt.Errorf("unknown enrichment backend: %s (supported: memory, redis)", cfg.Backend)
	}
}
