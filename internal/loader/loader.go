// Package loader fetches a stored document and returns its text segments.
package loader

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/hyperjump/ragdocs/internal/apperr"
	"github.com/hyperjump/ragdocs/internal/blob"
	"github.com/hyperjump/ragdocs/internal/extract"
	"github.com/hyperjump/ragdocs/internal/models"
	"github.com/hyperjump/ragdocs/pkg/utils"
)

// Loader reads the blob at a storage key and extracts its text.
type Loader struct {
	blobs     blob.Store
	extractor *extract.Extractor
	logger    *zap.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// New returns a Loader over blobs.
func New(blobs blob.Store, opts ...Option) *Loader {
	l := &Loader{
		blobs:     blobs,
		extractor: extract.NewExtractor(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = utils.OrNop(l.logger)
	return l
}

// Load returns the ordered text segments of the document at key.
// A missing blob or undecodable content is a document_load_failed error.
// A readable document with no text is returned as segments with no content;
// callers decide whether that is acceptable.
func (l *Loader) Load(ctx context.Context, key string, contentType models.ContentType) ([]string, error) {
	data, err := l.blobs.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, blob.ErrNotFound) {
			l.logger.Error("blob fetch failed", zap.String("storage_key", key), zap.Error(err))
		}
		return nil, apperr.DocumentLoad(key, err)
	}
	segments, err := l.extractor.Extract(data, contentType)
	if err != nil {
		l.logger.Error("text extraction failed",
			zap.String("storage_key", key),
			zap.String("content_type", string(contentType)),
			zap.Error(err))
		return nil, apperr.DocumentLoad(key, err)
	}
	return segments, nil
}
