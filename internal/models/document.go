// Package models defines core data structures for documents, chunks, questions, and answers.
package models

import "time"

// Document is the catalog entry for one ingested file. A document belongs to
// exactly one tenant and is never visible to another.
type Document struct {
	ID         string    `json:"id" db:"id"`
	TenantID   string    `json:"tenant_id" db:"tenant_id"`
	Filename   string    `json:"filename" db:"filename"`
	FilePath   string    `json:"-" db:"file_path"`
	ChunkCount int       `json:"chunks" db:"chunk_count"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// ChunkPayload is the payload stored beside each vector in the index.
// Chunks have no catalog record of their own; the index entry is the chunk.
// Payloads are immutable once written.
type ChunkPayload struct {
	TenantID   string `json:"tenant_id"`
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

// SourceLabel is the human-readable label a payload contributes to the
// answer's source list.
func (p *ChunkPayload) SourceLabel() string {
	return p.Filename
}
