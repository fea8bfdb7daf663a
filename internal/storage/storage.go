// Package storage provides the tenant-scoped document catalog.
package storage

import (
	"context"
	"errors"

	"github.com/kotae-ai/kotae/internal/models"
)

// ErrNotFound is returned when a document does not exist for the tenant.
// A document owned by another tenant is indistinguishable from a missing one.
var ErrNotFound = errors.New("document not found")

// Store is the catalog of ingested documents. Every operation is scoped to
// one tenant; there is no cross-tenant read or delete.
type Store interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, tenantID, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, tenantID string) ([]*models.Document, error)
	DeleteDocument(ctx context.Context, tenantID, id string) error
	CountDocuments(ctx context.Context, tenantID string) (int, error)
	Close() error
}
