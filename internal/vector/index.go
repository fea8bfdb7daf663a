// Package vector provides tenant-scoped vector index backends.
package vector

import (
	"context"

	"github.com/kotae-ai/kotae/internal/models"
)

// Record is a single embedded chunk to store in the index.
type Record struct {
	ID      string
	Vector  []float32
	Payload models.ChunkPayload
}

// Hit is a single search result with its stored payload.
type Hit struct {
	Payload models.ChunkPayload
	Score   float64 // Inner product; equals cosine similarity for normalized vectors.
}

// Index stores embedded chunks and performs similarity search. Every read
// and delete takes a tenant ID: there is deliberately no way to search or
// delete across tenants through this interface.
type Index interface {
	// Upsert inserts or replaces records by ID. Records carry their tenant
	// in the payload; the index persists it and filters on it at search time.
	Upsert(ctx context.Context, records []Record) error

	// Search returns up to k hits for the tenant, best score first. Records
	// belonging to other tenants are excluded before scoring, never after.
	Search(ctx context.Context, tenantID string, query []float32, k int) ([]*Hit, error)

	// DeleteDocument removes all records of one document owned by the tenant.
	DeleteDocument(ctx context.Context, tenantID, documentID string) error

	// Flush makes all accepted writes durable. Ingestion does not report
	// success until Flush returns nil.
	Flush() error

	Size() int
	Close() error
}
