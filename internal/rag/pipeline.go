// Package rag turns stored documents into retrievable chunks and answers questions
// grounded in them.
package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/ragdocs/internal/apperr"
	"github.com/hyperjump/ragdocs/internal/chunker"
	"github.com/hyperjump/ragdocs/internal/embedding"
	"github.com/hyperjump/ragdocs/internal/metrics"
	"github.com/hyperjump/ragdocs/internal/models"
	"github.com/hyperjump/ragdocs/internal/vector"
	"github.com/hyperjump/ragdocs/pkg/utils"
)

var errEmptyDocument = errors.New("document has no text")

// Loader extracts text segments from a stored document.
type Loader interface {
	Load(ctx context.Context, key string, contentType models.ContentType) ([]string, error)
}

// IngestRequest names the document to index.
type IngestRequest struct {
	DocID       string
	StorageKey  string
	ContentType models.ContentType
	// ReplaceExisting clears the document's records before writing new ones.
	ReplaceExisting bool
}

// Pipeline runs load, chunk, embed and index for one document.
type Pipeline struct {
	loader   Loader
	chunker  *chunker.Chunker
	embedder embedding.Embedder
	index    vector.Index
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// Option configures a Pipeline, Generator or Titler.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	topK    int
	sample  int
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTopK sets the number of chunks retrieved per answer.
func WithTopK(k int) Option {
	return func(o *options) {
		if k > 0 {
			o.topK = k
		}
	}
}

// WithSampleSize sets the number of chunks sampled for a title.
func WithSampleSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.sample = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{topK: DefaultTopK, sample: DefaultTitleSample}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = utils.OrNop(o.logger)
	return o
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(loader Loader, ch *chunker.Chunker, embedder embedding.Embedder, index vector.Index, opts ...Option) *Pipeline {
	o := buildOptions(opts)
	if ch == nil {
		ch = chunker.New()
	}
	return &Pipeline{
		loader:   loader,
		chunker:  ch,
		embedder: embedder,
		index:    index,
		logger:   o.logger,
		metrics:  o.metrics,
	}
}

// ChunkID returns the record id of the i-th chunk of a document.
func ChunkID(docID string, i int) string {
	return fmt.Sprintf("%s_chunk_%d", docID, i)
}

// Ingest indexes a document and returns the number of chunks written.
// Errors carry the kind of the stage that failed; nothing is written unless every
// earlier stage succeeded.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (int, error) {
	start := time.Now()
	n, err := p.ingest(ctx, req)
	p.metrics.ObserveIngest(err)
	if err != nil {
		p.logger.Error("Ingestion failed",
			zap.String("doc_id", req.DocID),
			zap.String("key", req.StorageKey),
			zap.String("kind", string(apperr.KindOf(err))),
			zap.Error(err))
		return 0, err
	}
	p.logger.Info("Document indexed",
		zap.String("doc_id", req.DocID),
		zap.Int("chunks", n),
		zap.Duration("took", time.Since(start)))
	return n, nil
}

func (p *Pipeline) ingest(ctx context.Context, req IngestRequest) (int, error) {
	segments, err := p.loader.Load(ctx, req.StorageKey, req.ContentType)
	if err != nil {
		if apperr.Is(err, apperr.KindDocumentLoad) {
			return 0, err
		}
		return 0, apperr.DocumentLoad(req.StorageKey, err)
	}
	total := 0
	for _, s := range segments {
		total += len(s)
	}
	if total == 0 {
		return 0, apperr.DocumentLoad(req.StorageKey, errEmptyDocument)
	}

	chunks, err := p.chunker.Split(segments)
	if err != nil {
		ce := apperr.Chunking(req.StorageKey)
		if !errors.Is(err, chunker.ErrNoChunks) {
			ce.Err = err
		}
		return 0, ce
	}
	p.logger.Debug("Document chunked",
		zap.String("doc_id", req.DocID),
		zap.Int("segments", len(segments)),
		zap.Int("chunks", len(chunks)))

	vectors, err := embedding.EmbedAll(ctx, p.embedder, chunks)
	if err != nil {
		return 0, err
	}

	ids := make([]string, len(chunks))
	metadatas := make([]map[string]string, len(chunks))
	for i := range chunks {
		ids[i] = ChunkID(req.DocID, i)
		metadatas[i] = map[string]string{vector.MetadataDocID: req.DocID}
	}
	records, err := vector.Records(ids, vectors, chunks, metadatas)
	if err != nil {
		return 0, apperr.VectorStore("building records", err)
	}

	if req.ReplaceExisting {
		if err := p.index.Delete(ctx, vector.DocFilter(req.DocID)); err != nil {
			return 0, asVectorStore("clearing document", err)
		}
	}
	if err := p.index.Upsert(ctx, records); err != nil {
		return 0, asVectorStore("upsert", err)
	}
	return len(records), nil
}

func asVectorStore(reason string, err error) error {
	if apperr.Is(err, apperr.KindVectorStore) {
		return err
	}
	return apperr.VectorStore(reason, err)
}
