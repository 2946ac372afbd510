package embedding

import (
	"testing"

	"github.com/hyperjump/ragdocs/internal/config"
)

func TestNew(t *testing.T) {
	e, err := New(config.EmbeddingConfig{Provider: "mock", Dimensions: 12, CacheSize: 4})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(*CachedEmbedder); !ok {
		t.Errorf("expected cached embedder, got %T", e)
	}
	if e.Dimensions() != 12 {
		t.Errorf("dims = %d", e.Dimensions())
	}

	e, err = New(config.EmbeddingConfig{Provider: "openai", Dimensions: 8})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(*OpenAIEmbedder); !ok {
		t.Errorf("expected openai embedder, got %T", e)
	}

	if _, err := New(config.EmbeddingConfig{Provider: "word2vec"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}
