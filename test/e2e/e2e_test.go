package e2e

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kotae-ai/kotae/internal/chunker"
	"github.com/kotae-ai/kotae/internal/config"
	"github.com/kotae-ai/kotae/internal/embedding"
	"github.com/kotae-ai/kotae/internal/extract"
	"github.com/kotae-ai/kotae/internal/ingest"
	"github.com/kotae-ai/kotae/internal/rerank"
	"github.com/kotae-ai/kotae/internal/retrieval"
	"github.com/kotae-ai/kotae/internal/vector"
)

const e2eDimensions = 8

// promptEcho returns the assembled prompt verbatim so the test can inspect
// exactly what context reached the model.
type promptEcho struct {
	lastPrompt string
}

func (g *promptEcho) Generate(ctx context.Context, prompt string) (string, error) {
	g.lastPrompt = prompt
	return "model answer", nil
}
func (g *promptEcho) Close() error { return nil }

// buildStack wires the full pipeline with production chunking parameters,
// a persistent memory index, and the lexical reranker.
func buildStack(t *testing.T, dir string) (*ingest.Ingestor, *retrieval.Engine, *promptEcho, *vector.MemoryIndex) {
	t.Helper()
	cfg := config.RetrievalConfig{
		ChunkSize:    config.DefaultChunkSize,
		ChunkOverlap: config.DefaultChunkOverlap,
		NCandidates:  config.DefaultNCandidates,
		NSelected:    config.DefaultNSelected,
	}
	idx, err := vector.NewMemoryIndex(e2eDimensions, filepath.Join(dir, "vectors.bin"))
	if err != nil {
		t.Fatal(err)
	}
	embedder := embedding.NewMockEmbedder(e2eDimensions)
	ch := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	ing := ingest.NewIngestor(extract.NewExtractor(), ch, embedder, idx)
	gen := &promptEcho{}
	engine := retrieval.NewEngine(embedder, idx, rerank.NewLexicalReranker(), gen, cfg)
	return ing, engine, gen, idx
}

// twoChunkDocument builds a document that splits into exactly two 1500-rune
// chunks sharing a 300-rune overlap, with a distinctive phrase that appears
// only in the second chunk.
func twoChunkDocument(phrase string) string {
	return strings.Repeat("a", 2700-len(phrase)) + phrase
}

func TestE2E_IngestThenAsk(t *testing.T) {
	dir := t.TempDir()
	ing, engine, gen, _ := buildStack(t, dir)
	ctx := context.Background()

	const phrase = "the launch window opens on the ninth of October"
	doc := twoChunkDocument(phrase)

	result, err := ing.Ingest(ctx, "tenant-1", "doc-1", "plan.txt", []byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if result.ChunkCount != 2 {
		t.Fatalf("chunk count = %d, want exactly 2", result.ChunkCount)
	}

	answer, err := engine.Ask(ctx, "tenant-1", "when does the launch window open?")
	if err != nil {
		t.Fatal(err)
	}
	if answer.NoContext {
		t.Error("expected context from the ingested document")
	}
	if answer.Text != "model answer" {
		t.Errorf("answer = %q", answer.Text)
	}
	if len(answer.Sources) != 1 || answer.Sources[0] != "plan.txt" {
		t.Errorf("sources = %v", answer.Sources)
	}
	// The phrase lives only in the second chunk; the reranker must surface
	// that chunk as the top source despite whatever the vector stage ranked.
	if !strings.Contains(gen.lastPrompt, phrase) {
		t.Error("the phrase-bearing chunk did not reach the context")
	}
	top := gen.lastPrompt[strings.Index(gen.lastPrompt, "[Source 1:"):]
	if end := strings.Index(top, "[Source 2:"); end >= 0 {
		top = top[:end]
	}
	if !strings.Contains(top, phrase) {
		t.Error("the phrase-bearing chunk should be ranked first after reranking")
	}
}

func TestE2E_ChunkOverlapIsShared(t *testing.T) {
	ch := chunker.New(config.DefaultChunkSize, config.DefaultChunkOverlap)
	doc := twoChunkDocument("tail phrase marking the end of the document here")
	chunks := ch.Split(doc)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	c0, c1 := []rune(chunks[0]), []rune(chunks[1])
	if len(c0) != 1500 || len(c1) != 1500 {
		t.Fatalf("chunk lengths = %d, %d", len(c0), len(c1))
	}
	if string(c0[1200:]) != string(c1[:300]) {
		t.Error("adjacent chunks do not share the 300-rune overlap")
	}
	if ch.Reconstruct(chunks) != doc {
		t.Error("chunks do not reconstruct the document")
	}
}

func TestE2E_TenantsAreInvisibleToEachOther(t *testing.T) {
	dir := t.TempDir()
	ing, engine, _, _ := buildStack(t, dir)
	ctx := context.Background()

	doc := twoChunkDocument("confidential roadmap for the alpha release")
	if _, err := ing.Ingest(ctx, "tenant-1", "doc-1", "roadmap.txt", []byte(doc)); err != nil {
		t.Fatal(err)
	}

	// The owner finds it.
	answer, err := engine.Ask(ctx, "tenant-1", "what is in the roadmap?")
	if err != nil {
		t.Fatal(err)
	}
	if answer.NoContext {
		t.Error("owner should see their document")
	}

	// Another tenant asking the same question gets the no-context answer,
	// with no error and no leaked sources.
	answer, err = engine.Ask(ctx, "tenant-2", "what is in the roadmap?")
	if err != nil {
		t.Fatalf("empty corpus must not be an error: %v", err)
	}
	if !answer.NoContext {
		t.Error("other tenant must not receive context")
	}
	if len(answer.Sources) != 0 {
		t.Errorf("other tenant sees sources: %v", answer.Sources)
	}
}

func TestE2E_IndexSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ing, _, _, idx := buildStack(t, dir)
	ctx := context.Background()

	doc := twoChunkDocument("durable fact about the migration deadline")
	if _, err := ing.Ingest(ctx, "tenant-1", "doc-1", "notes.txt", []byte(doc)); err != nil {
		t.Fatal(err)
	}
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}

	// A fresh stack over the same directory sees the ingested document.
	_, engine2, _, idx2 := buildStack(t, dir)
	if err := idx2.Load(); err != nil {
		t.Fatal(err)
	}
	if idx2.Size() != 2 {
		t.Fatalf("restored index size = %d, want 2", idx2.Size())
	}
	answer, err := engine2.Ask(ctx, "tenant-1", "what is the migration deadline fact?")
	if err != nil {
		t.Fatal(err)
	}
	if answer.NoContext {
		t.Error("restored index should serve the document")
	}
}
