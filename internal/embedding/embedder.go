// Package embedding maps text to fixed-dimension vectors.
package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/ragdocs/internal/apperr"
)

// Embedder produces vector embeddings for text. EmbedBatch returns one vector per
// input, in input order, all of Dimensions() length.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// EmbedAll embeds texts and checks the result against the batch contract.
// Any failure, an empty result, or a count or dimension mismatch is an embedding_failed error.
func EmbedAll(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, apperr.Embedding("no texts to embed", nil)
	}
	vectors, err := e.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, apperr.Embedding("model call failed", err)
	}
	if len(vectors) != len(texts) {
		return nil, apperr.Embedding(
			fmt.Sprintf("got %d embeddings for %d texts", len(vectors), len(texts)), nil)
	}
	dims := e.Dimensions()
	for i, v := range vectors {
		if len(v) == 0 || (dims > 0 && len(v) != dims) {
			return nil, apperr.Embedding(
				fmt.Sprintf("embedding %d has %d dimensions, want %d", i, len(v), dims), nil)
		}
	}
	return vectors, nil
}

// EmbedQuery embeds a single query string through the batch contract.
func EmbedQuery(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vectors, err := EmbedAll(ctx, e, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
