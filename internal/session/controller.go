// Package session orchestrates opening, paging, zooming and closing a document
// and owns the annotation store and overlay controller of that session.
package session

import (
	"context"
	"math"

	"github.com/golang/geo/r2"
	"go.uber.org/zap"

	"github.com/hyperjump/pdfmark/internal/annotation"
	"github.com/hyperjump/pdfmark/internal/models"
	"github.com/hyperjump/pdfmark/internal/render"
)

// Config bounds zoom and drag handling.
type Config struct {
	DefaultZoom float64
	MinZoom     float64
	MaxZoom     float64
	MinExtent   float64
}

// DefaultConfig matches the viewer's stock behavior.
func DefaultConfig() Config {
	return Config{DefaultZoom: 1.0, MinZoom: 0.5, MaxZoom: 2.0, MinExtent: 5}
}

// Persister saves annotation maps, synchronously or in the background.
type Persister interface {
	render.Saver
	Save(ctx context.Context, documentID, identity string, m models.AnnotationMap) error
}

// Controller is the document session controller. Like the overlay controller
// it must be driven from a single goroutine.
type Controller struct {
	cfg     Config
	sess    *models.Session
	store   *annotation.Store
	overlay *render.Controller
	persist Persister
	logger  *zap.Logger
}

// Option configures a Controller.
type Option func(*controllerOptions)

type controllerOptions struct {
	logger  *zap.Logger
	onSaved func(error)
	clock   *annotation.Clock
}

// WithLogger sets a logger for lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(o *controllerOptions) { o.logger = l }
}

// WithSaveCallback receives the outcome of background saves started by commits.
func WithSaveCallback(fn func(error)) Option {
	return func(o *controllerOptions) { o.onSaved = fn }
}

// WithClock sets the source of annotation timestamps.
func WithClock(c *annotation.Clock) Option {
	return func(o *controllerOptions) { o.clock = c }
}

// NewController builds a session for identity painting onto surface.
func NewController(identity string, surface render.Surface, persist Persister, cfg Config, opts ...Option) *Controller {
	o := controllerOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.MinZoom <= 0 || cfg.MaxZoom < cfg.MinZoom {
		cfg = DefaultConfig()
	}
	cfg.DefaultZoom = math.Max(cfg.MinZoom, math.Min(cfg.MaxZoom, cfg.DefaultZoom))
	sess := &models.Session{Identity: identity, Tool: models.KindHighlight}
	store := annotation.NewStore()
	renderOpts := []render.Option{render.WithLogger(o.logger), render.WithSaveCallback(o.onSaved)}
	if cfg.MinExtent > 0 {
		renderOpts = append(renderOpts, render.WithMinExtent(cfg.MinExtent))
	}
	if o.clock != nil {
		renderOpts = append(renderOpts, render.WithClock(o.clock))
	}
	return &Controller{
		cfg:     cfg,
		sess:    sess,
		store:   store,
		overlay: render.NewController(sess, store, surface, persist, renderOpts...),
		persist: persist,
		logger:  o.logger,
	}
}

// Open makes doc the session's document, starting at page 1 and the default zoom.
func (c *Controller) Open(doc *models.Document) {
	c.overlay.Cancel()
	c.sess.Document = doc
	c.sess.Page = 1
	c.sess.NumPages = 0
	c.sess.Zoom = c.cfg.DefaultZoom
	c.store.ReplaceAll(doc.AnnotationMap)
	c.logger.Debug("document opened",
		zap.String("document_id", doc.ID),
		zap.Int("annotations", doc.AnnotationMap.Count()))
	c.overlay.Redraw()
}

// Close drops the open document and its in-memory annotations.
// Saves already in flight still complete against their own document.
func (c *Controller) Close() {
	c.overlay.Cancel()
	if c.sess.Document != nil {
		c.logger.Debug("document closed", zap.String("document_id", c.sess.Document.ID))
	}
	c.sess.Document = nil
	c.sess.Page = 0
	c.sess.NumPages = 0
	c.sess.Zoom = 0
	c.store.Reset()
	c.overlay.Redraw()
}

// DocumentLoaded records the page count reported by the rasterizer.
func (c *Controller) DocumentLoaded(numPages int) {
	c.sess.NumPages = numPages
	if c.sess.Page > numPages && numPages > 0 {
		c.sess.Page = numPages
		c.overlay.Redraw()
	}
}

// ChangePage moves by delta pages, clamped to [1, NumPages], and repaints.
func (c *Controller) ChangePage(delta int) int {
	if c.sess.Document == nil {
		return 0
	}
	upper := c.sess.NumPages
	if upper < 1 {
		upper = 1
	}
	page := c.sess.Page + delta
	if page < 1 {
		page = 1
	}
	if page > upper {
		page = upper
	}
	if page != c.sess.Page {
		c.overlay.Cancel()
	}
	c.sess.Page = page
	c.overlay.Redraw()
	return page
}

// ChangeZoom adjusts the scale by delta, clamped to the configured range.
// The caller re-renders the page at the new scale, which resizes and repaints the overlay.
func (c *Controller) ChangeZoom(delta float64) float64 {
	if c.sess.Document == nil {
		return 0
	}
	zoom := c.sess.Zoom + delta
	zoom = math.Max(c.cfg.MinZoom, math.Min(c.cfg.MaxZoom, zoom))
	c.sess.Zoom = math.Round(zoom*100) / 100
	return c.sess.Zoom
}

// SetTool selects the kind of the next annotation.
func (c *Controller) SetTool(kind models.Kind) {
	c.sess.Tool = kind
}

// ClearPage empties the current page, saves the full map and repaints.
// The local clear stands even if the save fails.
func (c *Controller) ClearPage(ctx context.Context) error {
	if c.sess.Document == nil {
		return nil
	}
	c.store.ClearPage(c.sess.Page)
	err := c.persist.Save(ctx, c.sess.Document.ID, c.sess.Identity, c.store.Snapshot())
	c.overlay.Redraw()
	return err
}

// PageRendered forwards the rendered page size to the overlay.
func (c *Controller) PageRendered(width, height int) {
	c.overlay.PageRendered(width, height)
}

// PointerDown forwards to the overlay state machine.
func (c *Controller) PointerDown(p r2.Point) bool {
	return c.overlay.PointerDown(p)
}

// PointerMove forwards to the overlay state machine.
func (c *Controller) PointerMove(p r2.Point) {
	c.overlay.PointerMove(p)
}

// PointerUp forwards to the overlay state machine.
func (c *Controller) PointerUp(p r2.Point) (models.Annotation, bool) {
	return c.overlay.PointerUp(p)
}

// Store exposes the session's annotation store for reads.
func (c *Controller) Store() *annotation.Store {
	return c.store
}

// Document returns the open document or nil.
func (c *Controller) Document() *models.Document {
	return c.sess.Document
}

// Page returns the current page number.
func (c *Controller) Page() int {
	return c.sess.Page
}

// Zoom returns the current scale.
func (c *Controller) Zoom() float64 {
	return c.sess.Zoom
}

// View returns a read model of the session.
func (c *Controller) View() models.SessionView {
	w, h := c.overlay.Size()
	return models.SessionView{
		DocumentID: c.sess.DocumentID(),
		Page:       c.sess.Page,
		NumPages:   c.sess.NumPages,
		Zoom:       c.sess.Zoom,
		Tool:       c.sess.Tool,
		Width:      w,
		Height:     h,
		Drawing:    c.overlay.State() == render.Drawing,
	}
}
