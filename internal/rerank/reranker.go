// Package rerank scores retrieval candidates for relevance to a query.
package rerank

import (
	"context"

	"github.com/kotae-ai/kotae/internal/models"
)

// Reranker assigns a relevance score to each candidate. The returned slice
// preserves the input order; callers sort on Relevance themselves. A
// reranker never drops or reorders candidates and never touches payloads.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []*models.Candidate) ([]*models.RerankedCandidate, error)
	Close() error
}
