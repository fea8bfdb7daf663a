// Package ingest implements the document ingestion pipeline:
// extract, chunk, embed, index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kotae-ai/kotae/internal/chunker"
	"github.com/kotae-ai/kotae/internal/embedding"
	"github.com/kotae-ai/kotae/internal/extract"
	"github.com/kotae-ai/kotae/internal/models"
	"github.com/kotae-ai/kotae/internal/vector"
)

// ErrNoText is returned when a document yields no extractable text.
var ErrNoText = errors.New("document contains no extractable text")

// InboxDocumentID derives a stable document ID for a file dropped in a
// tenant's inbox, so dropping the same filename again re-ingests the same
// document instead of creating a duplicate.
func InboxDocumentID(tenantID, filename string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(tenantID+"/"+filename)).String()
}

// Ingestor runs the ingestion pipeline. It does not persist catalog
// metadata; the caller records the returned IngestResult.
type Ingestor struct {
	extractor *extract.Extractor
	chunker   *chunker.Chunker
	embedder  embedding.Embedder
	index     vector.Index
	logger    *zap.Logger
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(i *Ingestor) {
		i.logger = logger
	}
}

// NewIngestor creates an ingestion pipeline from its collaborators.
func NewIngestor(extractor *extract.Extractor, ch *chunker.Chunker, embedder embedding.Embedder,
	index vector.Index, opts ...Option) *Ingestor {
	ing := &Ingestor{
		extractor: extractor,
		chunker:   ch,
		embedder:  embedder,
		index:     index,
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// Ingest extracts, chunks, embeds, and indexes one document for a tenant.
// Record IDs are "<documentID>:<chunkIndex>", so re-ingesting the same
// document ID overwrites its previous records instead of duplicating them.
// Success is reported only after the index has made the writes durable.
func (i *Ingestor) Ingest(ctx context.Context, tenantID, documentID, filename string, content []byte) (*models.IngestResult, error) {
	start := time.Now()
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id required")
	}
	if documentID == "" {
		return nil, fmt.Errorf("document id required")
	}

	text, err := i.extractor.ExtractBytes(content, filepath.Ext(filename))
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", filename, err)
	}

	chunks := i.chunker.Split(strings.TrimSpace(text))
	if len(chunks) == 0 {
		return nil, ErrNoText
	}

	vectors, err := i.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}

	records := make([]vector.Record, len(chunks))
	recordIDs := make([]string, len(chunks))
	for idx, chunk := range chunks {
		id := fmt.Sprintf("%s:%d", documentID, idx)
		recordIDs[idx] = id
		records[idx] = vector.Record{
			ID:     id,
			Vector: vectors[idx],
			Payload: models.ChunkPayload{
				TenantID:   tenantID,
				DocumentID: documentID,
				Filename:   filename,
				ChunkIndex: idx,
				Text:       chunk,
			},
		}
	}

	if err := i.index.Upsert(ctx, records); err != nil {
		return nil, fmt.Errorf("index chunks: %w", err)
	}
	if err := i.index.Flush(); err != nil {
		return nil, fmt.Errorf("flush index: %w", err)
	}

	if i.logger != nil {
		i.logger.Info("document ingested",
			zap.String("tenant_id", tenantID),
			zap.String("document_id", documentID),
			zap.String("filename", filename),
			zap.Int("chunks", len(chunks)),
			zap.Duration("took", time.Since(start)))
	}
	return &models.IngestResult{
		DocumentID: documentID,
		Filename:   filename,
		ChunkCount: len(chunks),
		RecordIDs:  recordIDs,
	}, nil
}

// Remove deletes a tenant's document from the index.
func (i *Ingestor) Remove(ctx context.Context, tenantID, documentID string) error {
	if err := i.index.DeleteDocument(ctx, tenantID, documentID); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	if err := i.index.Flush(); err != nil {
		return fmt.Errorf("flush index: %w", err)
	}
	if i.logger != nil {
		i.logger.Info("document removed",
			zap.String("tenant_id", tenantID),
			zap.String("document_id", documentID))
	}
	return nil
}
