package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	base := Embedding("model down", errors.New("dial tcp: refused"))
	wrapped := fmt.Errorf("ingest doc 7: %w", base)
	if got := KindOf(wrapped); got != KindEmbedding {
		t.Errorf("KindOf = %s, want %s", got, KindEmbedding)
	}
	if got := KindOf(errors.New("plain")); got != KindInternal {
		t.Errorf("KindOf(untagged) = %s, want %s", got, KindInternal)
	}
}

func TestIs_walksNestedTaggedErrors(t *testing.T) {
	err := Answer(VectorStore("query", errors.New("timeout")))
	if !Is(err, KindAnswer) {
		t.Error("expected answer kind")
	}
	if !Is(err, KindVectorStore) {
		t.Error("expected nested vector store kind")
	}
	if Is(err, KindEmbedding) {
		t.Error("did not expect embedding kind")
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{SessionNotFound("abc"), http.StatusNotFound},
		{Chunking("uploads/a.pdf"), http.StatusUnprocessableEntity},
		{VectorStore("upsert", nil), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusOf(tt.err); got != tt.want {
			t.Errorf("StatusOf(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestError_Message(t *testing.T) {
	err := ChatSave(errors.New("database is locked"))
	if err.Error() != "failed to save chat messages: database is locked" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, err.Err) {
		t.Error("Unwrap should expose the cause")
	}
}
