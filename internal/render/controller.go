package render

import (
	"github.com/golang/geo/r2"
	"go.uber.org/zap"

	"github.com/hyperjump/pdfmark/internal/annotation"
	"github.com/hyperjump/pdfmark/internal/geometry"
	"github.com/hyperjump/pdfmark/internal/models"
)

// State is the drawing state of the overlay.
type State int

const (
	// Idle waits for a pointer-down.
	Idle State = iota
	// Drawing tracks a drag in progress.
	Drawing
)

func (s State) String() string {
	if s == Drawing {
		return "drawing"
	}
	return "idle"
}

// Saver persists a committed map without blocking the caller.
type Saver interface {
	SaveAsync(documentID, identity string, m models.AnnotationMap, onDone func(error))
}

// Controller runs the idle/drawing state machine for one session and
// repaints the surface from the store. It must be driven from a single goroutine.
type Controller struct {
	session   *models.Session
	store     *annotation.Store
	surface   Surface
	saver     Saver
	clock     *annotation.Clock
	minExtent float64
	state     State
	width     int
	height    int
	onSaved   func(error)
	logger    *zap.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets a logger for commits and ignored events.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMinExtent overrides geometry.MinExtent.
func WithMinExtent(px float64) Option {
	return func(c *Controller) { c.minExtent = px }
}

// WithClock sets the source of capture timestamps.
func WithClock(clock *annotation.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithSaveCallback is invoked, possibly from another goroutine, when a save
// started by a commit completes.
func WithSaveCallback(fn func(error)) Option {
	return func(c *Controller) { c.onSaved = fn }
}

// NewController binds a controller to a session, its store, a surface and a saver.
func NewController(sess *models.Session, store *annotation.Store, surface Surface, saver Saver, opts ...Option) *Controller {
	c := &Controller{
		session:   sess,
		store:     store,
		surface:   surface,
		saver:     saver,
		clock:     annotation.NewClock(nil),
		minExtent: geometry.MinExtent,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current drawing state.
func (c *Controller) State() State {
	return c.state
}

// Size returns the overlay size set by the last PageRendered.
func (c *Controller) Size() (int, int) {
	return c.width, c.height
}

// PageRendered matches the overlay to a freshly rendered page and repaints it.
func (c *Controller) PageRendered(width, height int) {
	c.width, c.height = width, height
	c.surface.Resize(width, height)
	c.Redraw()
}

// PointerDown starts a drag when p is inside the overlay. It reports whether
// the controller entered Drawing.
func (c *Controller) PointerDown(p r2.Point) bool {
	if c.session.Document == nil {
		return false
	}
	if !geometry.Contains(float64(c.width), float64(c.height), p) {
		c.logger.Debug("pointer down outside overlay", zap.Float64("x", p.X), zap.Float64("y", p.Y))
		return false
	}
	c.state = Drawing
	c.session.DragStart = p
	return true
}

// PointerMove repaints committed annotations plus a live preview to p.
func (c *Controller) PointerMove(p r2.Point) {
	if c.state != Drawing {
		return
	}
	c.Redraw()
	preview := geometry.Span(c.session.DragStart, p)
	c.surface.DrawRect(preview.X, preview.Y, preview.Width, preview.Height, FillFor(c.session.Tool))
}

// PointerUp ends a drag. A non-trivial rectangle is appended to the store and
// saved in the background. The overlay is repainted either way.
func (c *Controller) PointerUp(p r2.Point) (models.Annotation, bool) {
	if c.state != Drawing {
		return models.Annotation{}, false
	}
	c.state = Idle
	defer c.Redraw()

	rect, ok := geometry.FromDragMin(c.session.DragStart, p, c.minExtent)
	if !ok {
		return models.Annotation{}, false
	}
	a := models.Annotation{
		X:         rect.X,
		Y:         rect.Y,
		Width:     rect.Width,
		Height:    rect.Height,
		Kind:      c.session.Tool,
		CreatedAt: c.clock.Now(),
	}
	c.store.Append(c.session.Page, a)
	c.logger.Debug("annotation committed",
		zap.String("document_id", c.session.DocumentID()),
		zap.Int("page", c.session.Page),
		zap.String("kind", string(a.Kind)))
	if c.saver != nil {
		c.saver.SaveAsync(c.session.DocumentID(), c.session.Identity, c.store.Snapshot(), c.onSaved)
	}
	return a, true
}

// Cancel abandons a drag without committing.
func (c *Controller) Cancel() {
	if c.state == Drawing {
		c.state = Idle
		c.Redraw()
	}
}

// Redraw clears the overlay and paints the current page's committed annotations in order.
func (c *Controller) Redraw() {
	c.surface.Clear()
	for _, a := range c.store.Page(c.session.Page) {
		c.surface.DrawRect(a.X, a.Y, a.Width, a.Height, FillFor(a.Kind))
	}
}
