// Package vector stores embedded chunks and answers filtered similarity queries.
package vector

import (
	"context"
	"fmt"
)

// MetadataDocID is the metadata key that partitions records by document.
const MetadataDocID = "doc_id"

// Record is one indexed chunk.
type Record struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]string
}

// Match is a Record returned by a similarity query.
type Match struct {
	Record
	Score float64 // Inner product; cosine similarity for normalized vectors
}

// Filter selects records whose metadata equals every key/value pair. An empty filter matches all.
type Filter map[string]string

// DocFilter returns the filter for one document's records.
func DocFilter(docID string) Filter {
	return Filter{MetadataDocID: docID}
}

// Matches reports whether metadata satisfies f.
func (f Filter) Matches(metadata map[string]string) bool {
	for k, v := range f {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// Index is a flat keyspace of records across all documents.
// Failures are reported as vector_store_failed errors.
type Index interface {
	// Upsert writes records keyed by ID; an existing ID is overwritten.
	Upsert(ctx context.Context, records []Record) error
	// Query returns up to k records matching filter, closest first. No match is an empty result.
	Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Match, error)
	// Get returns up to limit records matching filter without ranking.
	Get(ctx context.Context, filter Filter, limit int) ([]Record, error)
	// Delete removes every record matching filter.
	Delete(ctx context.Context, filter Filter) error
	// Count returns the number of records matching filter.
	Count(ctx context.Context, filter Filter) (int, error)
	Close() error
}

// Records zips parallel id, vector, text and metadata sequences into records.
// All four must have the same length.
func Records(ids []string, vectors [][]float32, texts []string, metadatas []map[string]string) ([]Record, error) {
	n := len(ids)
	if len(vectors) != n || len(texts) != n || len(metadatas) != n {
		return nil, fmt.Errorf("length mismatch: %d ids, %d vectors, %d texts, %d metadatas",
			n, len(vectors), len(texts), len(metadatas))
	}
	records := make([]Record, n)
	for i := range ids {
		records[i] = Record{ID: ids[i], Vector: vectors[i], Text: texts[i], Metadata: metadatas[i]}
	}
	return records, nil
}
