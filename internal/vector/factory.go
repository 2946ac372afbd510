package vector

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/ragdocs/internal/config"
)

// Backend names the vector index implementation.
type Backend string

const (
	// BackendMemory uses the in-process brute-force index, persisted to a file.
	BackendMemory Backend = "memory"
	// BackendQdrant uses a Qdrant collection over REST.
	BackendQdrant Backend = "qdrant"
)

// NewIndex creates the vector index selected by cfg.Backend.
// Supported backends: "memory" (default), "qdrant".
func NewIndex(cfg config.VectorConfig, dimensions int, logger *zap.Logger) (Index, error) {
	switch Backend(cfg.Backend) {
	case BackendMemory, "":
		return NewMemoryIndex(dimensions, WithPersistPath(cfg.IndexPath))
	case BackendQdrant:
		return NewQdrantIndex(QdrantOptions{
			URL:        cfg.URL,
			APIKey:     cfg.APIKey,
			Collection: cfg.Collection,
			Dimensions: dimensions,
			Logger:     logger,
		})
	default:
		return nil, fmt.Errorf("unknown vector backend: %s (supported: memory, qdrant)", cfg.Backend)
	}
}
