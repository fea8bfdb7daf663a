package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kotae-ai/kotae/internal/models"
)

// HTTPReranker calls a cross-encoder reranking service over HTTP. It speaks
// the rerank API exposed by text-embeddings-inference style servers:
// POST /rerank with {"query": ..., "texts": [...]} returning a list of
// {"index": i, "score": s} entries.
type HTTPReranker struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewHTTPReranker creates a reranker client for the given endpoint.
func NewHTTPReranker(baseURL, model string, timeout time.Duration) *HTTPReranker {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPReranker{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

type rerankRequest struct {
	Model string   `json:"model,omitempty"`
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Rerank scores every candidate against the query in a single request.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, candidates []*models.Candidate) ([]*models.RerankedCandidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Payload.Text
	}

	body, err := json.Marshal(rerankRequest{Model: r.model, Query: query, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("rerank service returned %d: %s", resp.StatusCode, string(data))
	}

	var results []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	if len(results) != len(candidates) {
		return nil, fmt.Errorf("rerank result count mismatch: got %d, want %d", len(results), len(candidates))
	}

	out := make([]*models.RerankedCandidate, len(candidates))
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(candidates) {
			return nil, fmt.Errorf("rerank index %d out of range", res.Index)
		}
		out[res.Index] = &models.RerankedCandidate{
			Candidate: *candidates[res.Index],
			Relevance: res.Score,
		}
	}
	for i, rc := range out {
		if rc == nil {
			return nil, fmt.Errorf("no rerank score for candidate %d", i)
		}
	}
	return out, nil
}

// Close is a no-op; the HTTP client needs no teardown.
func (r *HTTPReranker) Close() error {
	return nil
}
