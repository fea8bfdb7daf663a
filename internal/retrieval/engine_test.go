package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kotae-ai/kotae/internal/assemble"
	"github.com/kotae-ai/kotae/internal/config"
	"github.com/kotae-ai/kotae/internal/embedding"
	"github.com/kotae-ai/kotae/internal/models"
	"github.com/kotae-ai/kotae/internal/rerank"
	"github.com/kotae-ai/kotae/internal/vector"
)

// fakeIndex returns canned hits and records the tenant it was asked for.
type fakeIndex struct {
	hits       []*vector.Hit
	err        error
	lastTenant string
	lastK      int
}

func (f *fakeIndex) Upsert(ctx context.Context, records []vector.Record) error { return nil }
func (f *fakeIndex) Search(ctx context.Context, tenantID string, query []float32, k int) ([]*vector.Hit, error) {
	f.lastTenant = tenantID
	f.lastK = k
	return f.hits, f.err
}
func (f *fakeIndex) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	return nil
}
func (f *fakeIndex) Flush() error { return nil }
func (f *fakeIndex) Size() int    { return len(f.hits) }
func (f *fakeIndex) Close() error { return nil }

// echoGenerator returns its prompt so tests can inspect the context.
type echoGenerator struct {
	lastPrompt string
	err        error
}

func (g *echoGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.lastPrompt = prompt
	if g.err != nil {
		return "", g.err
	}
	return "generated answer", nil
}
func (g *echoGenerator) Close() error { return nil }

// fixedReranker scores candidates from a lookup table keyed by chunk text.
type fixedReranker struct {
	scores map[string]float64
}

func (r *fixedReranker) Rerank(ctx context.Context, query string, candidates []*models.Candidate) ([]*models.RerankedCandidate, error) {
	out := make([]*models.RerankedCandidate, len(candidates))
	for i, c := range candidates {
		out[i] = &models.RerankedCandidate{Candidate: *c, Relevance: r.scores[c.Payload.Text]}
	}
	return out, nil
}
func (r *fixedReranker) Close() error { return nil }

func hit(tenantID, text string, score float64) *vector.Hit {
	return &vector.Hit{
		Payload: models.ChunkPayload{
			TenantID:   tenantID,
			DocumentID: "d1",
			Filename:   "doc.txt",
			Text:       text,
		},
		Score: score,
	}
}

func newTestEngine(idx vector.Index, rr rerank.Reranker, gen *echoGenerator, cfg config.RetrievalConfig) *Engine {
	return NewEngine(embedding.NewMockEmbedder(8), idx, rr, gen, cfg)
}

func TestEngine_Validation(t *testing.T) {
	e := newTestEngine(&fakeIndex{}, rerank.NewLexicalReranker(), &echoGenerator{}, config.RetrievalConfig{})

	tests := []struct {
		name     string
		tenantID string
		query    string
	}{
		{"empty tenant", "", "a question"},
		{"empty query", "t1", ""},
		{"whitespace query", "t1", "   \n\t  "},
		{"oversized query", "t1", strings.Repeat("x", models.MaxQueryChars+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Ask(context.Background(), tt.tenantID, tt.query)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestEngine_EmptyCorpusIsNotAnError(t *testing.T) {
	gen := &echoGenerator{}
	e := newTestEngine(&fakeIndex{}, rerank.NewLexicalReranker(), gen, config.RetrievalConfig{})

	answer, err := e.Ask(context.Background(), "newcomer", "what do my documents say?")
	if err != nil {
		t.Fatalf("empty corpus must not error: %v", err)
	}
	if !answer.NoContext {
		t.Error("expected NoContext to be set")
	}
	if len(answer.Sources) != 0 {
		t.Errorf("expected no sources, got %v", answer.Sources)
	}
	if answer.Text != "generated answer" {
		t.Errorf("generator should still be invoked, got %q", answer.Text)
	}
	if !strings.Contains(gen.lastPrompt, assemble.NoContextText) {
		t.Error("prompt should carry the explicit no-material context")
	}
}

func TestEngine_IsolationViolationIsFatal(t *testing.T) {
	idx := &fakeIndex{hits: []*vector.Hit{
		hit("alice", "her own chunk", 0.9),
		hit("mallory", "someone else's chunk", 0.8),
	}}
	e := newTestEngine(idx, rerank.NewLexicalReranker(), &echoGenerator{}, config.RetrievalConfig{})

	_, err := e.Ask(context.Background(), "alice", "question")
	var ierr *IsolationError
	if !errors.As(err, &ierr) {
		t.Fatalf("expected IsolationError, got %v", err)
	}
	if ierr.QueryTenant != "alice" || ierr.RecordTenant != "mallory" {
		t.Errorf("error carries wrong tenants: %+v", ierr)
	}
}

func TestEngine_RerankOrdersContext(t *testing.T) {
	idx := &fakeIndex{hits: []*vector.Hit{
		hit("t1", "vector favourite", 0.99),
		hit("t1", "actual answer", 0.50),
	}}
	rr := &fixedReranker{scores: map[string]float64{
		"vector favourite": 0.1,
		"actual answer":    0.9,
	}}
	gen := &echoGenerator{}
	e := newTestEngine(idx, rr, gen, config.RetrievalConfig{})

	answer, err := e.Ask(context.Background(), "t1", "question")
	if err != nil {
		t.Fatal(err)
	}
	if answer.NoContext {
		t.Error("NoContext should be false")
	}
	if !strings.Contains(gen.lastPrompt, "[Source 1: doc.txt]\nactual answer") {
		t.Errorf("reranker winner should be source 1:\n%s", gen.lastPrompt)
	}
	if idx.lastK != config.DefaultNCandidates {
		t.Errorf("search fan-out = %d, want %d", idx.lastK, config.DefaultNCandidates)
	}
}

func TestEngine_StableSortOnTies(t *testing.T) {
	idx := &fakeIndex{hits: []*vector.Hit{
		hit("t1", "first by similarity", 0.9),
		hit("t1", "second by similarity", 0.8),
		hit("t1", "third by similarity", 0.7),
	}}
	// All candidates tie on relevance; retrieval order must survive.
	rr := &fixedReranker{scores: map[string]float64{
		"first by similarity":  0.5,
		"second by similarity": 0.5,
		"third by similarity":  0.5,
	}}
	gen := &echoGenerator{}
	e := newTestEngine(idx, rr, gen, config.RetrievalConfig{})

	if _, err := e.Ask(context.Background(), "t1", "question"); err != nil {
		t.Fatal(err)
	}
	i1 := strings.Index(gen.lastPrompt, "first by similarity")
	i2 := strings.Index(gen.lastPrompt, "second by similarity")
	i3 := strings.Index(gen.lastPrompt, "third by similarity")
	if !(i1 < i2 && i2 < i3) {
		t.Errorf("tie-breaking changed retrieval order: %d %d %d", i1, i2, i3)
	}
}

func TestEngine_SelectionCap(t *testing.T) {
	var hits []*vector.Hit
	scores := make(map[string]float64)
	for i := 0; i < 8; i++ {
		text := fmt.Sprintf("chunk %d", i)
		hits = append(hits, hit("t1", text, 0.9))
		scores[text] = float64(i)
	}
	gen := &echoGenerator{}
	e := newTestEngine(&fakeIndex{hits: hits}, &fixedReranker{scores: scores}, gen,
		config.RetrievalConfig{NSelected: 2})

	if _, err := e.Ask(context.Background(), "t1", "question"); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(gen.lastPrompt, "[Source "); n != 2 {
		t.Errorf("context has %d sources, want 2", n)
	}
	if !strings.Contains(gen.lastPrompt, "chunk 7") || !strings.Contains(gen.lastPrompt, "chunk 6") {
		t.Error("selection should keep the top-scored chunks")
	}
}

func TestEngine_UpstreamErrorsCarryStage(t *testing.T) {
	sentinel := errors.New("index down")
	e := newTestEngine(&fakeIndex{err: sentinel}, rerank.NewLexicalReranker(), &echoGenerator{},
		config.RetrievalConfig{})

	_, err := e.Ask(context.Background(), "t1", "question")
	var uerr *UpstreamError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if uerr.Stage != StageCandidatesFetched {
		t.Errorf("stage = %s, want %s", uerr.Stage, StageCandidatesFetched)
	}
	if !errors.Is(err, sentinel) {
		t.Error("cause not wrapped")
	}
}

func TestEngine_GenerationFailure(t *testing.T) {
	idx := &fakeIndex{hits: []*vector.Hit{hit("t1", "content", 0.9)}}
	gen := &echoGenerator{err: errors.New("model overloaded")}
	e := newTestEngine(idx, rerank.NewLexicalReranker(), gen, config.RetrievalConfig{})

	_, err := e.Ask(context.Background(), "t1", "question")
	var uerr *UpstreamError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if uerr.Stage != StageGenerated {
		t.Errorf("stage = %s, want %s", uerr.Stage, StageGenerated)
	}
	if !strings.Contains(err.Error(), "answer generation failed") {
		t.Errorf("error = %v", err)
	}
}
