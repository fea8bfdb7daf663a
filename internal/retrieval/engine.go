package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kotae-ai/kotae/internal/assemble"
	"github.com/kotae-ai/kotae/internal/config"
	"github.com/kotae-ai/kotae/internal/embedding"
	"github.com/kotae-ai/kotae/internal/generate"
	"github.com/kotae-ai/kotae/internal/models"
	"github.com/kotae-ai/kotae/internal/rerank"
	"github.com/kotae-ai/kotae/internal/vector"
	"github.com/kotae-ai/kotae/pkg/utils"
)

// Engine runs the two-stage retrieval pipeline: embed the query, fetch
// candidates from the vector index under the tenant filter, rerank, select,
// assemble context, generate. Each query advances through a fixed stage
// sequence and either reaches Assembled or fails at a named stage.
type Engine struct {
	embedder  embedding.Embedder
	index     vector.Index
	reranker  rerank.Reranker
	assembler *assemble.Assembler
	generator generate.Generator
	cfg       config.RetrievalConfig
	logger    *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates a retrieval engine. The config is explicit; zero values
// for fan-out fall back to the package defaults.
func NewEngine(embedder embedding.Embedder, index vector.Index, reranker rerank.Reranker,
	generator generate.Generator, cfg config.RetrievalConfig, opts ...Option) *Engine {
	if cfg.NCandidates <= 0 {
		cfg.NCandidates = config.DefaultNCandidates
	}
	if cfg.NSelected <= 0 {
		cfg.NSelected = config.DefaultNSelected
	}
	e := &Engine{
		embedder:  embedder,
		index:     index,
		reranker:  reranker,
		assembler: assemble.New(),
		generator: generator,
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// stageCtx bounds one pipeline stage. A zero timeout means no bound beyond
// the caller's context.
func (e *Engine) stageCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if t := e.cfg.StageTimeout(); t > 0 {
		return context.WithTimeout(ctx, t)
	}
	return context.WithCancel(ctx)
}

// Ask answers a question from the tenant's documents. A tenant with no
// relevant documents gets an answer with NoContext set, not an error.
func (e *Engine) Ask(ctx context.Context, tenantID, query string) (*models.Answer, error) {
	start := time.Now()
	if tenantID == "" {
		return nil, &ValidationError{Reason: "tenant id required"}
	}
	req := models.AskRequest{Query: query}
	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	query = req.Query
	if e.logger != nil {
		e.logger.Debug("ask received",
			zap.String("tenant_id", tenantID),
			zap.String("query", utils.Truncate(query, 200)))
	}

	queryVec, err := e.embedQuery(ctx, tenantID, query)
	if err != nil {
		return nil, err
	}

	candidates, err := e.fetchCandidates(ctx, tenantID, queryVec)
	if err != nil {
		return nil, err
	}

	selected, err := e.rerankAndSelect(ctx, tenantID, query, candidates)
	if err != nil {
		return nil, err
	}

	contextText, sources := e.assembler.Assemble(selected)
	prompt := e.assembler.BuildPrompt(query, contextText)

	answer, err := e.generate(ctx, tenantID, prompt)
	if err != nil {
		return nil, err
	}

	if e.logger != nil {
		e.logger.Info("query answered",
			zap.String("tenant_id", tenantID),
			zap.Int("candidates", len(candidates)),
			zap.Int("selected", len(selected)),
			zap.Bool("no_context", len(selected) == 0),
			zap.Duration("took", time.Since(start)))
	}
	return &models.Answer{
		Text:      answer,
		Sources:   sources,
		NoContext: len(selected) == 0,
		QueryTime: time.Since(start).Milliseconds(),
	}, nil
}

func (e *Engine) embedQuery(ctx context.Context, tenantID, query string) ([]float32, error) {
	sctx, cancel := e.stageCtx(ctx)
	defer cancel()
	vec, err := e.embedder.Embed(sctx, query)
	if err != nil {
		return nil, &UpstreamError{Stage: StageEmbedded, TenantID: tenantID,
			Err: fmt.Errorf("embed query: %w", err)}
	}
	return vec, nil
}

func (e *Engine) fetchCandidates(ctx context.Context, tenantID string, queryVec []float32) ([]*models.Candidate, error) {
	sctx, cancel := e.stageCtx(ctx)
	defer cancel()
	hits, err := e.index.Search(sctx, tenantID, queryVec, e.cfg.NCandidates)
	if err != nil {
		return nil, &UpstreamError{Stage: StageCandidatesFetched, TenantID: tenantID,
			Err: fmt.Errorf("vector search: %w", err)}
	}

	// Every returned record must belong to the querying tenant. A mismatch
	// means the index-level filter failed; the query dies loudly rather than
	// dropping the foreign record.
	candidates := make([]*models.Candidate, len(hits))
	for i, hit := range hits {
		if hit.Payload.TenantID != tenantID {
			if e.logger != nil {
				e.logger.Error("tenant isolation violation",
					zap.String("query_tenant", tenantID),
					zap.String("record_tenant", hit.Payload.TenantID),
					zap.String("document_id", hit.Payload.DocumentID))
			}
			return nil, &IsolationError{
				QueryTenant:  tenantID,
				RecordTenant: hit.Payload.TenantID,
				DocumentID:   hit.Payload.DocumentID,
			}
		}
		candidates[i] = &models.Candidate{Payload: hit.Payload, Similarity: hit.Score}
	}
	return candidates, nil
}

func (e *Engine) rerankAndSelect(ctx context.Context, tenantID, query string, candidates []*models.Candidate) ([]*models.RerankedCandidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	sctx, cancel := e.stageCtx(ctx)
	defer cancel()
	reranked, err := e.reranker.Rerank(sctx, query, candidates)
	if err != nil {
		return nil, &UpstreamError{Stage: StageReranked, TenantID: tenantID,
			Err: fmt.Errorf("rerank: %w", err)}
	}

	// Stable sort: candidates with equal relevance keep their vector-search
	// order, so repeated queries give repeatable contexts.
	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Relevance > reranked[j].Relevance
	})
	if len(reranked) > e.cfg.NSelected {
		reranked = reranked[:e.cfg.NSelected]
	}
	return reranked, nil
}

func (e *Engine) generate(ctx context.Context, tenantID, prompt string) (string, error) {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	text, err := e.generator.Generate(sctx, prompt)
	if err != nil {
		return "", &UpstreamError{Stage: StageGenerated, TenantID: tenantID,
			Err: fmt.Errorf("answer generation failed: %w", err)}
	}
	return text, nil
}
