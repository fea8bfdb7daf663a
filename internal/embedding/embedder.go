// Package embedding provides text embedding clients and caching.
package embedding

import "context"

// Embedder produces dense vector embeddings for text. Implementations must
// be deterministic for a fixed model version: callers treat residual numeric
// jitter as negligible and never compare vectors for equality.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
