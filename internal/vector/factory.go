package vector

import (
	"fmt"
	"os"

	"github.com/kotae-ai/kotae/internal/config"
)

// IndexType identifies a vector index backend.
type IndexType string

const (
	// IndexTypeMemory uses in-memory brute-force search with a snapshot
	// file. Good for a single node and small to mid-size corpora.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeQdrant uses a Qdrant server over REST.
	IndexTypeQdrant IndexType = "qdrant"
)

// NewIndex creates the configured vector index backend. The memory backend
// loads its snapshot before returning. metric ("cosine" or "dot") selects
// the Qdrant distance; the memory backend scores inner product either way,
// which equals cosine because embedders normalize their vectors.
func NewIndex(cfg config.VectorConfig, snapshotPath string, dimensions int, metric string) (Index, error) {
	switch IndexType(cfg.IndexType) {
	case IndexTypeMemory, "":
		idx, err := NewMemoryIndex(dimensions, snapshotPath)
		if err != nil {
			return nil, err
		}
		if err := idx.Load(); err != nil {
			return nil, fmt.Errorf("load vector snapshot: %w", err)
		}
		return idx, nil
	case IndexTypeQdrant:
		apiKey := ""
		if cfg.QdrantAPIKeyEnv != "" {
			apiKey = os.Getenv(cfg.QdrantAPIKeyEnv)
		}
		return NewQdrantIndex(cfg.QdrantURL, apiKey, cfg.QdrantCollection, dimensions, metric)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, qdrant)", cfg.IndexType)
	}
}
