package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/pdfmark/internal/models"
)

// Dialect selects placeholder syntax for a database driver.
type Dialect string

const (
	// DialectSQLite uses ? placeholders.
	DialectSQLite Dialect = "sqlite"
	// DialectPostgres uses $n placeholders.
	DialectPostgres Dialect = "postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	original_name TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	public_url TEXT NOT NULL,
	uploaded_at TIMESTAMP NOT NULL,
	annotations TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_documents_owner_uploaded ON documents(owner, uploaded_at);
`

// SQLStore implements MetadataStore over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	s := NewSQLStore(db, DialectSQLite)
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore connects to dsn and initializes the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	s := NewSQLStore(db, DialectPostgres)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database. The schema is not touched; call Migrate.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Migrate creates the documents table and index if missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders for dialects that number them.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const documentColumns = `id, owner, original_name, storage_path, public_url, uploaded_at, annotations`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var doc models.Document
	var annotationsJSON string
	if err := row.Scan(&doc.ID, &doc.Owner, &doc.OriginalName, &doc.StoragePath, &doc.PublicURL,
		&doc.UploadedAt, &annotationsJSON); err != nil {
		return nil, err
	}
	doc.AnnotationMap = make(models.AnnotationMap)
	if annotationsJSON != "" {
		if err := json.Unmarshal([]byte(annotationsJSON), &doc.AnnotationMap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal annotations of %s: %w", doc.ID, err)
		}
	}
	doc.UploadedAt = doc.UploadedAt.UTC()
	return &doc, nil
}

// Create inserts a document owned by identity. A zero UploadedAt is set to now.
func (s *SQLStore) Create(ctx context.Context, identity string, doc *models.Document) error {
	if doc.AnnotationMap == nil {
		doc.AnnotationMap = make(models.AnnotationMap)
	}
	annotationsJSON, err := json.Marshal(doc.AnnotationMap)
	if err != nil {
		return fmt.Errorf("failed to marshal annotations: %w", err)
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	doc.Owner = identity

	_, err = s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO documents (`+documentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		doc.ID, identity, doc.OriginalName, doc.StoragePath, doc.PublicURL, doc.UploadedAt, string(annotationsJSON),
	)
	return err
}

// Get returns one of identity's documents.
func (s *SQLStore) Get(ctx context.Context, identity, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+documentColumns+` FROM documents WHERE id = ? AND owner = ?`), id, identity)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// List returns identity's documents ordered by upload time, newest first.
func (s *SQLStore) List(ctx context.Context, identity string) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+documentColumns+` FROM documents WHERE owner = ? ORDER BY uploaded_at DESC, id`), identity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []*models.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// UpdateAnnotations overwrites the annotation map and nothing else.
func (s *SQLStore) UpdateAnnotations(ctx context.Context, identity, id string, m models.AnnotationMap) error {
	if m == nil {
		m = make(models.AnnotationMap)
	}
	annotationsJSON, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal annotations: %w", err)
	}
	result, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE documents SET annotations = ? WHERE id = ? AND owner = ?`),
		string(annotationsJSON), id, identity,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

// Delete removes one of identity's documents.
func (s *SQLStore) Delete(ctx context.Context, identity, id string) error {
	result, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM documents WHERE id = ? AND owner = ?`), id, identity)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

// Count returns the total number of documents across all identities.
func (s *SQLStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
