// Package library manages an identity's uploaded PDF documents: bytes in blob storage,
// records and annotation maps in the metadata store.
package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/pdfmark/internal/metrics"
	"github.com/hyperjump/pdfmark/internal/models"
	"github.com/hyperjump/pdfmark/internal/pdfinfo"
	"github.com/hyperjump/pdfmark/internal/persist"
	"github.com/hyperjump/pdfmark/internal/storage"
)

// Library uploads, lists, exports and deletes documents.
type Library struct {
	meta    storage.MetadataStore
	blobs   storage.BlobStore
	saver   *persist.Adapter
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration
}

// Option configures a Library.
type Option func(*Library)

// WithLogger sets a logger for upload, delete and import events.
func WithLogger(l *zap.Logger) Option {
	return func(lib *Library) { lib.logger = l }
}

// WithMetrics records upload, delete and save outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(lib *Library) { lib.metrics = m }
}

// WithClock replaces time.Now for upload timestamps and object paths.
func WithClock(now func() time.Time) Option {
	return func(lib *Library) { lib.now = now }
}

// WithSaveTimeout bounds background annotation saves.
func WithSaveTimeout(d time.Duration) Option {
	return func(lib *Library) { lib.timeout = d }
}

// New creates a library over meta and blobs.
func New(meta storage.MetadataStore, blobs storage.BlobStore, opts ...Option) *Library {
	lib := &Library{
		meta:   meta,
		blobs:  blobs,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(lib)
	}
	lib.saver = persist.NewAdapter(meta,
		persist.WithLogger(lib.logger),
		persist.WithMetrics(lib.metrics),
		persist.WithTimeout(lib.timeout),
	)
	return lib
}

// Saver returns the persistence adapter writing annotation maps for this library.
func (l *Library) Saver() *persist.Adapter {
	return l.saver
}

// List returns identity's documents, newest first.
func (l *Library) List(ctx context.Context, identity string) ([]*models.Document, error) {
	docs, err := l.meta.List(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// Get returns one of identity's documents.
func (l *Library) Get(ctx context.Context, identity, id string) (*models.Document, error) {
	return l.meta.Get(ctx, identity, id)
}

// Upload validates content as a PDF, stores it under a fresh object path and records
// it with an empty annotation map.
func (l *Library) Upload(ctx context.Context, identity, name string, content []byte) (doc *models.Document, err error) {
	defer func() { l.metrics.ObserveUpload(err) }()

	if identity == "" {
		return nil, errors.New("upload requires an identity")
	}
	if err := pdfinfo.Validate(content); err != nil {
		return nil, err
	}
	now := l.now().UTC()
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		name = "document.pdf"
	}

	ref, err := l.blobs.Upload(ctx, storage.ObjectPath(identity, name, now), content)
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}
	doc = &models.Document{
		ID:            uuid.New().String(),
		OriginalName:  name,
		StoragePath:   ref,
		PublicURL:     l.blobs.PublicURL(ref),
		UploadedAt:    now,
		AnnotationMap: models.AnnotationMap{},
	}
	if err := l.meta.Create(ctx, identity, doc); err != nil {
		if derr := l.blobs.Delete(ctx, ref); derr != nil {
			l.logger.Warn("Failed to remove stored file after metadata error",
				zap.String("storage_path", ref), zap.Error(derr))
		}
		return nil, fmt.Errorf("failed to store document: %w", err)
	}
	l.logger.Info("Document uploaded",
		zap.String("id", doc.ID), zap.String("name", name), zap.Int("bytes", len(content)))
	return doc, nil
}

// Download returns the document record and its stored bytes.
func (l *Library) Download(ctx context.Context, identity, id string) (*models.Document, []byte, error) {
	doc, err := l.meta.Get(ctx, identity, id)
	if err != nil {
		return nil, nil, err
	}
	content, err := l.blobs.Download(ctx, doc.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read file: %w", err)
	}
	return doc, content, nil
}

// DeleteResult reports what a delete removed. StorageErr is set when the stored
// file could not be removed; the record is deleted regardless.
type DeleteResult struct {
	Document   *models.Document
	StorageErr error
}

// Delete removes the stored file, best effort, then the record.
func (l *Library) Delete(ctx context.Context, identity, id string) (*DeleteResult, error) {
	doc, err := l.meta.Get(ctx, identity, id)
	if err != nil {
		l.metrics.ObserveDelete(err, false)
		return nil, err
	}
	res := &DeleteResult{Document: doc}
	if err := l.blobs.Delete(ctx, doc.StoragePath); err != nil && !errors.Is(err, storage.ErrNotFound) {
		res.StorageErr = err
		l.logger.Warn("Failed to delete stored file, continuing",
			zap.String("id", id), zap.String("storage_path", doc.StoragePath), zap.Error(err))
	}
	err = l.meta.Delete(ctx, identity, id)
	l.metrics.ObserveDelete(err, res.StorageErr != nil)
	if err != nil {
		return nil, fmt.Errorf("failed to delete document: %w", err)
	}
	l.logger.Info("Document deleted", zap.String("id", id))
	return res, nil
}

// Count returns the number of stored documents across all identities.
func (l *Library) Count(ctx context.Context) (int64, error) {
	return l.meta.Count(ctx)
}

// PublicFile returns stored bytes by reference. Public locations need no identity.
func (l *Library) PublicFile(ctx context.Context, ref string) ([]byte, error) {
	return l.blobs.Download(ctx, ref)
}

// SaveAnnotations replaces the document's stored annotation map.
func (l *Library) SaveAnnotations(ctx context.Context, identity, id string, m models.AnnotationMap) error {
	return l.saver.Save(ctx, id, identity, m)
}

// Export returns the downloadable annotation bundle of a document.
func (l *Library) Export(ctx context.Context, identity, id string) (*models.ExportBundle, error) {
	doc, err := l.meta.Get(ctx, identity, id)
	if err != nil {
		return nil, err
	}
	annotations := doc.AnnotationMap
	if annotations == nil {
		annotations = models.AnnotationMap{}
	}
	return &models.ExportBundle{
		PdfName:     doc.OriginalName,
		ExportedAt:  l.now().UTC(),
		Annotations: annotations,
	}, nil
}

// ExportFileName returns the download name of a document's annotation bundle.
// The first ".pdf" in name is dropped.
func ExportFileName(name string) string {
	return strings.Replace(name, ".pdf", "", 1) + "_annotations.json"
}

// ImportFile uploads the file at path for identity. If allowedExts is non-empty the
// file's extension must be in it (case-insensitive).
func (l *Library) ImportFile(ctx context.Context, identity, path string, allowedExts []string) (*models.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
		return nil, fmt.Errorf("extension %q not in allowed list", ext)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return l.Upload(ctx, identity, filepath.Base(path), content)
}

// ImportDirectory imports each regular file directly inside dir whose extension is
// allowed. Files that fail are logged and skipped. Returns the imported documents by path.
func (l *Library) ImportDirectory(ctx context.Context, identity, dir string, allowedExts []string) (map[string]*models.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	imported := make(map[string]*models.Document)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if len(allowedExts) > 0 && !extensionAllowed(filepath.Ext(path), allowedExts) {
			continue
		}
		doc, err := l.ImportFile(ctx, identity, path, allowedExts)
		if err != nil {
			l.logger.Warn("Import failed", zap.String("path", path), zap.Error(err))
			continue
		}
		imported[path] = doc
	}
	return imported, nil
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
