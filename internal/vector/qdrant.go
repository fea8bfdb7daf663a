package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kotae-ai/kotae/internal/models"
)

// QdrantIndex is a REST client to a Qdrant collection. All writes use
// wait=true so acknowledged points are durable before ingestion reports
// success. Every search and delete carries a mandatory tenant filter.
type QdrantIndex struct {
	baseURL    string
	apiKey     string
	collection string
	dimensions int
	distance   string
	client     *http.Client
}

// qdrantDistance maps a similarity metric name to Qdrant's distance enum.
func qdrantDistance(metric string) string {
	if metric == "dot" {
		return "Dot"
	}
	return "Cosine"
}

// NewQdrantIndex creates a client and ensures the collection exists with
// the configured dimension and distance ("cosine" or "dot").
func NewQdrantIndex(baseURL, apiKey, collection string, dimensions int, metric string) (*QdrantIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection name required")
	}
	q := &QdrantIndex{
		baseURL:    baseURL,
		apiKey:     apiKey,
		collection: collection,
		dimensions: dimensions,
		distance:   qdrantDistance(metric),
		client:     &http.Client{Timeout: 30 * time.Second},
	}
	if err := q.ensureCollection(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *QdrantIndex) ensureCollection() error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     q.dimensions,
			"distance": q.distance,
		},
	}
	// Qdrant returns 409 if the collection already exists.
	err := q.doJSON(context.Background(), http.MethodPut,
		fmt.Sprintf("/collections/%s", q.collection), body, nil, http.StatusConflict)
	if err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}
	return nil
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Upsert writes records as points. Qdrant requires UUID or integer point
// IDs, so the record ID is hashed to a stable UUID and also stored in the
// payload; re-ingesting the same record overwrites the same point.
func (q *QdrantIndex) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]qdrantPoint, len(records))
	for i, rec := range records {
		if len(rec.Vector) != q.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(rec.Vector), q.dimensions)
		}
		points[i] = qdrantPoint{
			ID:     uuid.NewSHA1(uuid.NameSpaceOID, []byte(rec.ID)).String(),
			Vector: rec.Vector,
			Payload: map[string]any{
				"record_id":   rec.ID,
				"tenant_id":   rec.Payload.TenantID,
				"document_id": rec.Payload.DocumentID,
				"filename":    rec.Payload.Filename,
				"chunk_index": rec.Payload.ChunkIndex,
				"text":        rec.Payload.Text,
			},
		}
	}
	body := map[string]any{"points": points}
	path := fmt.Sprintf("/collections/%s/points?wait=true", q.collection)
	if err := q.doJSON(ctx, http.MethodPut, path, body, nil); err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}
	return nil
}

func tenantFilter(tenantID string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": "tenant_id", "match": map[string]any{"value": tenantID}},
		},
	}
}

// Search runs a filtered similarity search. The tenant filter is part of the
// query itself, so other tenants' points are never scored or returned.
func (q *QdrantIndex) Search(ctx context.Context, tenantID string, query []float32, k int) ([]*Hit, error) {
	if len(query) != q.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), q.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}
	body := map[string]any{
		"vector":       query,
		"limit":        k,
		"with_payload": true,
		"filter":       tenantFilter(tenantID),
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", q.collection)
	if err := q.doJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, fmt.Errorf("search points: %w", err)
	}

	hits := make([]*Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		payload := models.ChunkPayload{}
		if v, ok := r.Payload["tenant_id"].(string); ok {
			payload.TenantID = v
		}
		if v, ok := r.Payload["document_id"].(string); ok {
			payload.DocumentID = v
		}
		if v, ok := r.Payload["filename"].(string); ok {
			payload.Filename = v
		}
		if v, ok := r.Payload["chunk_index"].(float64); ok {
			payload.ChunkIndex = int(v)
		}
		if v, ok := r.Payload["text"].(string); ok {
			payload.Text = v
		}
		hits = append(hits, &Hit{Payload: payload, Score: r.Score})
	}
	return hits, nil
}

// DeleteDocument deletes by filter on tenant and document.
func (q *QdrantIndex) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	filter := tenantFilter(tenantID)
	filter["must"] = append(filter["must"].([]map[string]any), map[string]any{
		"key": "document_id", "match": map[string]any{"value": documentID},
	})
	body := map[string]any{"filter": filter}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", q.collection)
	if err := q.doJSON(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("delete points: %w", err)
	}
	return nil
}

// Flush is a no-op; writes go through with wait=true.
func (q *QdrantIndex) Flush() error {
	return nil
}

// Size returns the collection's point count, or 0 if the count request fails.
func (q *QdrantIndex) Size() int {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/count", q.collection)
	if err := q.doJSON(context.Background(), http.MethodPost, path, map[string]any{"exact": true}, &resp); err != nil {
		return 0
	}
	return resp.Result.Count
}

// Close is a no-op; the HTTP client needs no teardown.
func (q *QdrantIndex) Close() error {
	return nil
}

func (q *QdrantIndex) doJSON(ctx context.Context, method, path string, body, out any, okStatuses ...int) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		for _, s := range okStatuses {
			if resp.StatusCode == s {
				return nil
			}
		}
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("qdrant %s %s: %s: %s", method, path, resp.Status, string(msg))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
