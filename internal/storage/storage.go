// Package storage defines persistence for document metadata and stored PDF bytes.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/pdfmark/internal/models"
)

// ErrNotFound is returned when a document or object does not exist for the identity.
var ErrNotFound = errors.New("not found")

// MetadataStore persists document records scoped by owner identity.
type MetadataStore interface {
	// List returns the identity's documents, newest upload first.
	List(ctx context.Context, identity string) ([]*models.Document, error)
	Get(ctx context.Context, identity, id string) (*models.Document, error)
	Create(ctx context.Context, identity string, doc *models.Document) error
	// UpdateAnnotations replaces only the annotation map of one document.
	UpdateAnnotations(ctx context.Context, identity, id string, m models.AnnotationMap) error
	Delete(ctx context.Context, identity, id string) error

	// Stats
	Count(ctx context.Context) (int64, error)

	Close() error
}

// BlobStore keeps uploaded bytes and hands out retrievable references.
type BlobStore interface {
	Upload(ctx context.Context, path string, content []byte) (string, error)
	PublicURL(ref string) string
	Download(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}
