package rerank

import (
	"context"
	"math"
	"strings"

	"github.com/kotae-ai/kotae/internal/models"
	"github.com/kotae-ai/kotae/pkg/utils"
)

// LexicalReranker scores candidates by lexical overlap with the query. It is
// the fallback when no cross-encoder service is configured: weaker than a
// model but deterministic, dependency-free and fast. Exact phrase matches
// score highest, then term coverage weighted by term frequency.
type LexicalReranker struct{}

// NewLexicalReranker returns a reranker that needs no external service.
func NewLexicalReranker() *LexicalReranker {
	return &LexicalReranker{}
}

// Rerank scores each candidate against the query. Scores are in [0, 1] with
// a phrase-match bonus pushing exact matches above scattered-term matches.
func (r *LexicalReranker) Rerank(ctx context.Context, query string, candidates []*models.Candidate) ([]*models.RerankedCandidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	queryLower := strings.ToLower(query)
	terms := utils.Tokenize(queryLower)

	out := make([]*models.RerankedCandidate, len(candidates))
	for i, c := range candidates {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		out[i] = &models.RerankedCandidate{
			Candidate: *c,
			Relevance: scoreText(queryLower, terms, c.Payload.Text),
		}
	}
	return out, nil
}

// Close is a no-op.
func (r *LexicalReranker) Close() error {
	return nil
}

func scoreText(queryLower string, terms []string, text string) float64 {
	if len(terms) == 0 || text == "" {
		return 0
	}
	textLower := strings.ToLower(text)

	// Coverage: fraction of query terms present, weighted by a dampened
	// term frequency so repeated mentions help without dominating.
	var covered, weight float64
	for _, term := range terms {
		n := strings.Count(textLower, term)
		if n == 0 {
			continue
		}
		covered++
		weight += math.Log1p(float64(n))
	}
	score := 0.6*(covered/float64(len(terms))) + 0.2*math.Tanh(weight/4)

	// Exact phrase match outranks any scattered-term match.
	if len(terms) > 1 && strings.Contains(textLower, queryLower) {
		score += 0.2
	}
	return score
}
