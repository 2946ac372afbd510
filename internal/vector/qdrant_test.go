package vector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/ragdocs/internal/apperr"
)

// fakeQdrant serves just enough of the Qdrant REST API for the adapter.
type fakeQdrant struct {
	mu        sync.Mutex
	exists    bool
	creates   int
	points    map[string]map[string]any
	lastQuery map[string]any
	failWith  int
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{points: map[string]map[string]any{}}
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != 0 {
		http.Error(w, `{"status":{"error":"boom"}}`, f.failWith)
		return
	}
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	path := strings.TrimPrefix(r.URL.Path, "/collections/docs")

	if path == "" && r.Method == http.MethodPut {
		f.exists = true
		f.creates++
		writeResult(w, true)
		return
	}
	if !f.exists {
		http.Error(w, `{"status":{"error":"Not found: Collection docs doesn't exist!"}}`, http.StatusNotFound)
		return
	}
	switch {
	case path == "/index":
		writeResult(w, map[string]any{"status": "acknowledged"})
	case path == "/points" && r.Method == http.MethodPut:
		for _, p := range body["points"].([]any) {
			point := p.(map[string]any)
			f.points[point["id"].(string)] = point["payload"].(map[string]any)
		}
		writeResult(w, map[string]any{"status": "completed"})
	case path == "/points/search":
		f.lastQuery = body
		limit := int(body["limit"].(float64))
		var out []map[string]any
		for id, payload := range f.filtered(body) {
			if len(out) == limit {
				break
			}
			out = append(out, map[string]any{"id": id, "score": 0.5, "payload": payload})
		}
		writeResult(w, out)
	case path == "/points/scroll":
		limit := int(body["limit"].(float64))
		var out []map[string]any
		for id, payload := range f.filtered(body) {
			if len(out) == limit {
				break
			}
			out = append(out, map[string]any{"id": id, "payload": payload})
		}
		writeResult(w, map[string]any{"points": out})
	case path == "/points/delete":
		for id := range f.filtered(body) {
			delete(f.points, id)
		}
		writeResult(w, map[string]any{"status": "completed"})
	case path == "/points/count":
		writeResult(w, map[string]any{"count": len(f.filtered(body))})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeQdrant) filtered(body map[string]any) map[string]map[string]any {
	out := map[string]map[string]any{}
	filter, _ := body["filter"].(map[string]any)
	for id, payload := range f.points {
		if filter == nil || payloadMatches(payload, filter) {
			out[id] = payload
		}
	}
	return out
}

func payloadMatches(payload map[string]any, filter map[string]any) bool {
	md := payload["metadata"].(map[string]any)
	for _, c := range filter["must"].([]any) {
		cond := c.(map[string]any)
		key := strings.TrimPrefix(cond["key"].(string), "metadata.")
		want := cond["match"].(map[string]any)["value"]
		if md[key] != want {
			return false
		}
	}
	return true
}

func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result, "status": "ok"})
}

func newTestQdrant(t *testing.T) (*QdrantIndex, *fakeQdrant) {
	t.Helper()
	fake := newFakeQdrant()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	idx, err := NewQdrantIndex(QdrantOptions{URL: srv.URL, Collection: "docs", Dimensions: 2})
	require.NoError(t, err)
	return idx, fake
}

func TestQdrantIndex_lazyCreateOnceThenRetry(t *testing.T) {
	idx, fake := newTestQdrant(t)
	ctx := context.Background()

	err := idx.Upsert(ctx, []Record{docRecord("42", 0, []float32{1, 0}), docRecord("42", 1, []float32{0, 1})})
	require.NoError(t, err)
	assert.Equal(t, 1, fake.creates)
	assert.Len(t, fake.points, 2)

	require.NoError(t, idx.Upsert(ctx, []Record{docRecord("43", 0, []float32{1, 0})}))
	assert.Equal(t, 1, fake.creates, "collection should be created exactly once")
}

func TestQdrantIndex_queryOnMissingCollectionIsEmpty(t *testing.T) {
	idx, fake := newTestQdrant(t)
	matches, err := idx.Query(context.Background(), []float32{1, 0}, 5, DocFilter("1"))
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Equal(t, 1, fake.creates)
}

func TestQdrantIndex_queryGetCountDelete(t *testing.T) {
	idx, fake := newTestQdrant(t)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, []Record{
		docRecord("42", 0, []float32{1, 0}),
		docRecord("42", 1, []float32{0, 1}),
		docRecord("42", 2, []float32{1, 1}),
		docRecord("7", 0, []float32{1, 0}),
	}))

	matches, err := idx.Query(ctx, []float32{1, 0}, 5, DocFilter("42"))
	require.NoError(t, err)
	assert.Len(t, matches, 3)
	for _, m := range matches {
		assert.Equal(t, "42", m.Metadata[MetadataDocID])
		assert.True(t, strings.HasPrefix(m.ID, "42_chunk_"))
	}
	assert.EqualValues(t, 5, fake.lastQuery["limit"])

	sample, err := idx.Get(ctx, DocFilter("42"), 2)
	require.NoError(t, err)
	assert.Len(t, sample, 2)

	n, err := idx.Count(ctx, DocFilter("42"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, idx.Delete(ctx, DocFilter("42")))
	n, err = idx.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestQdrantIndex_backendFailureIsVectorStoreError(t *testing.T) {
	idx, fake := newTestQdrant(t)
	fake.failWith = http.StatusServiceUnavailable

	_, err := idx.Query(context.Background(), []float32{1, 0}, 5, DocFilter("1"))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindVectorStore))
	assert.Equal(t, 0, fake.creates, "non-404 failures must not create the collection")
}

func TestQdrantIndex_deleteRequiresFilter(t *testing.T) {
	idx, _ := newTestQdrant(t)
	err := idx.Delete(context.Background(), nil)
	assert.True(t, apperr.Is(err, apperr.KindVectorStore))
}

func TestPointID_deterministic(t *testing.T) {
	assert.Equal(t, PointID("42_chunk_0"), PointID("42_chunk_0"))
	assert.NotEqual(t, PointID("42_chunk_0"), PointID("42_chunk_1"))
}
