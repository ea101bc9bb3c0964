// Package annotation holds the in-memory annotation map of the open document.
package annotation

import (
	"sync"

	"github.com/hyperjump/pdfmark/internal/models"
)

// Store owns the per-page annotation map of one open document. It performs no I/O.
type Store struct {
	mu    sync.RWMutex
	pages models.AnnotationMap
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{pages: make(models.AnnotationMap)}
}

// Append adds a to the end of the page's sequence, creating the sequence if needed.
func (s *Store) Append(page int, a models.Annotation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[page] = append(s.pages[page], a)
}

// ClearPage empties the page's sequence. The page key stays present.
func (s *Store) ClearPage(page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[page] = []models.Annotation{}
}

// ReplaceAll swaps in a copy of m as the whole map.
func (s *Store) ReplaceAll(m models.AnnotationMap) {
	cp := m.Clone()
	s.mu.Lock()
	s.pages = cp
	s.mu.Unlock()
}

// Reset drops every page.
func (s *Store) Reset() {
	s.ReplaceAll(nil)
}

// Snapshot returns a deep copy of the current map.
func (s *Store) Snapshot() models.AnnotationMap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pages.Clone()
}

// Page returns a copy of one page's annotations in draw order.
func (s *Store) Page(page int) []models.Annotation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.pages[page]
	out := make([]models.Annotation, len(list))
	copy(out, list)
	return out
}
