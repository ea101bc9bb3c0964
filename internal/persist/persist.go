// Package persist writes annotation maps to the document metadata store.
package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/pdfmark/internal/metrics"
	"github.com/hyperjump/pdfmark/internal/models"
)

const defaultTimeout = 10 * time.Second

// ErrNoTarget is returned when a save has no document or identity to write to.
var ErrNoTarget = errors.New("no document or identity to save annotations for")

// Updater is the partial-update capability of the metadata store.
type Updater interface {
	UpdateAnnotations(ctx context.Context, identity, documentID string, m models.AnnotationMap) error
}

// Adapter performs full-replace saves: every save sends the whole map.
// Failures are returned, never retried.
type Adapter struct {
	store   Updater
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets a logger for save outcomes.
func WithLogger(l *zap.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// WithMetrics records save outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Adapter) { a.metrics = m }
}

// WithTimeout bounds each background save. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAdapter returns an adapter writing through store.
func NewAdapter(store Updater, opts ...Option) *Adapter {
	a := &Adapter{
		store:   store,
		timeout: defaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Save replaces the document's stored annotation map with m.
func (a *Adapter) Save(ctx context.Context, documentID, identity string, m models.AnnotationMap) error {
	if documentID == "" || identity == "" {
		return ErrNoTarget
	}
	err := a.store.UpdateAnnotations(ctx, identity, documentID, m.Clone())
	a.metrics.ObserveSave(err)
	if err != nil {
		a.logger.Warn("annotation save failed",
			zap.String("document_id", documentID),
			zap.Int("annotations", m.Count()),
			zap.Error(err))
		return fmt.Errorf("save annotations: %w", err)
	}
	a.logger.Debug("annotations saved",
		zap.String("document_id", documentID),
		zap.Int("annotations", m.Count()))
	return nil
}

// SaveAsync runs Save on its own goroutine with a background context.
// documentID and identity are captured now, so a completion arriving after the
// session moved on still updates the right record. onDone may be nil.
func (a *Adapter) SaveAsync(documentID, identity string, m models.AnnotationMap, onDone func(error)) {
	snapshot := m.Clone()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		err := a.Save(ctx, documentID, identity, snapshot)
		if onDone != nil {
			onDone(err)
		}
	}()
}

// Wait blocks until every SaveAsync started so far has finished.
func (a *Adapter) Wait() {
	a.wg.Wait()
}
