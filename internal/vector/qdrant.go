package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/ragdocs/internal/apperr"
	"github.com/hyperjump/ragdocs/pkg/utils"
)

const (
	payloadRecordID = "record_id"
	payloadText     = "text"
	payloadMetadata = "metadata"
)

// QdrantOptions configures a QdrantIndex.
type QdrantOptions struct {
	URL        string
	APIKey     string
	Collection string
	Dimensions int
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// QdrantIndex is a REST client for one Qdrant collection using cosine distance.
// A missing collection is created on first use, once, and the operation retried once.
type QdrantIndex struct {
	url        string
	apiKey     string
	collection string
	dimensions int
	client     *http.Client
	logger     *zap.Logger

	createMu sync.Mutex
	created  bool
}

// statusError is a non-2xx response from Qdrant.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant returned status %d: %s", e.Code, e.Body)
}

func isCollectionMissing(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// NewQdrantIndex returns an adapter for opts.Collection. No request is made until first use.
func NewQdrantIndex(opts QdrantOptions) (*QdrantIndex, error) {
	if opts.URL == "" || opts.Collection == "" {
		return nil, errors.New("qdrant url and collection are required")
	}
	if opts.Dimensions <= 0 {
		return nil, errors.New("dimensions must be positive")
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &QdrantIndex{
		url:        strings.TrimRight(opts.URL, "/"),
		apiKey:     opts.APIKey,
		collection: opts.Collection,
		dimensions: opts.Dimensions,
		client:     client,
		logger:     utils.OrNop(opts.Logger),
	}, nil
}

// PointID maps a record id to the UUID Qdrant stores it under.
func PointID(recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(recordID)).String()
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector,omitempty"`
	Payload map[string]any `json:"payload"`
}

type qdrantScored struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Upsert writes records; Qdrant overwrites points with the same id.
func (q *QdrantIndex) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]qdrantPoint, len(records))
	for i, r := range records {
		md := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			md[k] = v
		}
		points[i] = qdrantPoint{
			ID:     PointID(r.ID),
			Vector: r.Vector,
			Payload: map[string]any{
				payloadRecordID: r.ID,
				payloadText:     r.Text,
				payloadMetadata: md,
			},
		}
	}
	body := map[string]any{"points": points}
	err := q.withCollection(ctx, func() error {
		return q.do(ctx, http.MethodPut, "/points?wait=true", body, nil)
	})
	if err != nil {
		return apperr.VectorStore("upsert", err)
	}
	return nil
}

// Query runs a filtered similarity search.
func (q *QdrantIndex) Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Match, error) {
	if k <= 0 {
		return []Match{}, nil
	}
	body := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if f := qdrantFilter(filter); f != nil {
		body["filter"] = f
	}
	var resp struct {
		Result []qdrantScored `json:"result"`
	}
	err := q.withCollection(ctx, func() error {
		return q.do(ctx, http.MethodPost, "/points/search", body, &resp)
	})
	if err != nil {
		return nil, apperr.VectorStore("query", err)
	}
	matches := make([]Match, 0, len(resp.Result))
	for _, p := range resp.Result {
		matches = append(matches, Match{Record: recordFromPayload(p.Payload), Score: p.Score})
	}
	return matches, nil
}

// Get scrolls up to limit records matching filter.
func (q *QdrantIndex) Get(ctx context.Context, filter Filter, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	body := map[string]any{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if f := qdrantFilter(filter); f != nil {
		body["filter"] = f
	}
	var resp struct {
		Result struct {
			Points []qdrantScored `json:"points"`
		} `json:"result"`
	}
	err := q.withCollection(ctx, func() error {
		return q.do(ctx, http.MethodPost, "/points/scroll", body, &resp)
	})
	if err != nil {
		return nil, apperr.VectorStore("get", err)
	}
	records := make([]Record, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		records = append(records, recordFromPayload(p.Payload))
	}
	return records, nil
}

// Delete removes points matching filter. An empty filter is rejected.
func (q *QdrantIndex) Delete(ctx context.Context, filter Filter) error {
	f := qdrantFilter(filter)
	if f == nil {
		return apperr.VectorStore("delete requires a filter", nil)
	}
	err := q.withCollection(ctx, func() error {
		return q.do(ctx, http.MethodPost, "/points/delete?wait=true", map[string]any{"filter": f}, nil)
	})
	if err != nil {
		return apperr.VectorStore("delete", err)
	}
	return nil
}

// Count returns the exact number of points matching filter.
func (q *QdrantIndex) Count(ctx context.Context, filter Filter) (int, error) {
	body := map[string]any{"exact": true}
	if f := qdrantFilter(filter); f != nil {
		body["filter"] = f
	}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := q.withCollection(ctx, func() error {
		return q.do(ctx, http.MethodPost, "/points/count", body, &resp)
	})
	if err != nil {
		return 0, apperr.VectorStore("count", err)
	}
	return resp.Result.Count, nil
}

// Close releases idle connections.
func (q *QdrantIndex) Close() error {
	q.client.CloseIdleConnections()
	return nil
}

// withCollection runs op; if Qdrant reports the collection missing, it creates the
// collection (at most once per QdrantIndex) and runs op one more time.
func (q *QdrantIndex) withCollection(ctx context.Context, op func() error) error {
	err := op()
	if !isCollectionMissing(err) {
		return err
	}
	if err := q.createCollection(ctx); err != nil {
		return err
	}
	return op()
}

func (q *QdrantIndex) createCollection(ctx context.Context) error {
	q.createMu.Lock()
	defer q.createMu.Unlock()
	if q.created {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     q.dimensions,
			"distance": "Cosine",
		},
	}
	if err := q.do(ctx, http.MethodPut, "", body, nil); err != nil {
		var se *statusError
		// Another process created it first.
		if !errors.As(err, &se) || se.Code != http.StatusConflict {
			return fmt.Errorf("create collection %s: %w", q.collection, err)
		}
	}
	index := map[string]any{"field_name": payloadMetadata + "." + MetadataDocID, "field_schema": "keyword"}
	if err := q.do(ctx, http.MethodPut, "/index?wait=true", index, nil); err != nil {
		q.logger.Warn("payload index creation failed", zap.String("collection", q.collection), zap.Error(err))
	}
	q.created = true
	q.logger.Info("created vector collection",
		zap.String("collection", q.collection),
		zap.Int("dimensions", q.dimensions))
	return nil
}

func (q *QdrantIndex) do(ctx context.Context, method, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	url := q.url + "/collections/" + q.collection + path
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func qdrantFilter(f Filter) map[string]any {
	if len(f) == 0 {
		return nil
	}
	must := make([]map[string]any, 0, len(f))
	for k, v := range f {
		must = append(must, map[string]any{
			"key":   payloadMetadata + "." + k,
			"match": map[string]any{"value": v},
		})
	}
	return map[string]any{"must": must}
}

func recordFromPayload(p map[string]any) Record {
	r := Record{Metadata: map[string]string{}}
	if v, ok := p[payloadRecordID].(string); ok {
		r.ID = v
	}
	if v, ok := p[payloadText].(string); ok {
		r.Text = v
	}
	if md, ok := p[payloadMetadata].(map[string]any); ok {
		for k, v := range md {
			r.Metadata[k] = fmt.Sprint(v)
		}
	}
	return r
}
