// Package pdfinfo reads page counts and page geometry from PDF documents.
package pdfinfo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// ErrNotPDF is returned for content that does not parse as a PDF document.
var ErrNotPDF = errors.New("not a PDF document")

// ErrPageTooLarge is returned when a page at the requested scale exceeds MaxPixels.
var ErrPageTooLarge = errors.New("page too large to render")

// MaxPixels bounds the area of a rendered page.
const MaxPixels = 64 << 20

// Letter is the page box used when a page declares none, in points.
var Letter = Box{Width: 612, Height: 792}

// Box is a page size in PDF points.
type Box struct {
	Width  float64
	Height float64
}

// PageSize is a rendered page size in pixels.
type PageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns Width*Height without overflowing.
func (p PageSize) Area() int64 {
	return int64(p.Width) * int64(p.Height)
}

// Info describes a parsed document.
type Info struct {
	NumPages int
	Pages    []Box
}

// Page returns the box of a 1-based page number.
func (i *Info) Page(n int) (Box, error) {
	if n < 1 || n > len(i.Pages) {
		return Box{}, fmt.Errorf("page %d out of range [1, %d]", n, len(i.Pages))
	}
	return i.Pages[n-1], nil
}

// Validate reports whether content is a readable PDF with at least one page.
func Validate(content []byte) error {
	_, err := Inspect(content)
	return err
}

// Inspect parses content and returns its page boxes, rotation applied.
func Inspect(content []byte) (info *Info, err error) {
	if !bytes.HasPrefix(bytes.TrimLeft(content, "\x00\t\r\n "), []byte("%PDF-")) {
		return nil, ErrNotPDF
	}
	defer func() {
		if r := recover(); r != nil {
			info, err = nil, fmt.Errorf("%w: %v", ErrNotPDF, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPDF, err)
	}
	n := r.NumPage()
	if n < 1 {
		return nil, fmt.Errorf("%w: no pages", ErrNotPDF)
	}
	info = &Info{NumPages: n, Pages: make([]Box, 0, n)}
	for i := 1; i <= n; i++ {
		info.Pages = append(info.Pages, pageBox(r.Page(i)))
	}
	return info, nil
}

// inherited looks key up on the page node, then on its ancestors.
func inherited(v pdf.Value, key string) pdf.Value {
	for depth := 0; depth < 32 && !v.IsNull(); depth++ {
		if found := v.Key(key); !found.IsNull() {
			return found
		}
		v = v.Key("Parent")
	}
	return pdf.Value{}
}

func pageBox(p pdf.Page) Box {
	if p.V.IsNull() {
		return Letter
	}
	box := Letter
	if mb := inherited(p.V, "MediaBox"); mb.Kind() == pdf.Array && mb.Len() == 4 {
		w := math.Abs(mb.Index(2).Float64() - mb.Index(0).Float64())
		h := math.Abs(mb.Index(3).Float64() - mb.Index(1).Float64())
		if w > 0 && h > 0 {
			box = Box{Width: w, Height: h}
		}
	}
	rotate := inherited(p.V, "Rotate").Int64() % 360
	if rotate < 0 {
		rotate += 360
	}
	if rotate == 90 || rotate == 270 {
		box.Width, box.Height = box.Height, box.Width
	}
	return box
}

// Pixels returns the pixel size of b rendered at scale, one point per pixel at scale 1.
func (b Box) Pixels(scale float64) PageSize {
	px := func(v float64) int {
		f := math.Round(v * scale)
		if f > math.MaxInt32 || math.IsNaN(f) {
			return math.MaxInt32
		}
		if f < 1 {
			return 1
		}
		return int(f)
	}
	return PageSize{Width: px(b.Width), Height: px(b.Height)}
}

// Downloader fetches stored document bytes.
type Downloader interface {
	Download(ctx context.Context, ref string) ([]byte, error)
}

// Rasterizer turns stored documents into page-sized render targets.
type Rasterizer interface {
	PageCount(ctx context.Context, ref string) (int, error)
	RenderPage(ctx context.Context, ref string, page int, scale float64) (PageSize, error)
}

// PDFRasterizer reads documents from blob storage and caches their page geometry by reference.
type PDFRasterizer struct {
	blobs  Downloader
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]*Info
}

// Option configures a PDFRasterizer.
type Option func(*PDFRasterizer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *PDFRasterizer) {
		r.logger = l
	}
}

// NewPDFRasterizer creates a rasterizer over blobs.
func NewPDFRasterizer(blobs Downloader, opts ...Option) *PDFRasterizer {
	r := &PDFRasterizer{
		blobs:  blobs,
		logger: zap.NewNop(),
		cache:  make(map[string]*Info),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *PDFRasterizer) info(ctx context.Context, ref string) (*Info, error) {
	r.mu.Lock()
	cached, ok := r.cache[ref]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	content, err := r.blobs.Download(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", ref, err)
	}
	info, err := Inspect(content)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("Loaded document geometry", zap.String("ref", ref), zap.Int("pages", info.NumPages))

	r.mu.Lock()
	r.cache[ref] = info
	r.mu.Unlock()
	return info, nil
}

// PageCount returns the number of pages of the stored document.
func (r *PDFRasterizer) PageCount(ctx context.Context, ref string) (int, error) {
	info, err := r.info(ctx, ref)
	if err != nil {
		return 0, err
	}
	return info.NumPages, nil
}

// RenderPage returns the pixel size of page rendered at scale. Pages larger than
// MaxPixels at that scale fail with ErrPageTooLarge.
func (r *PDFRasterizer) RenderPage(ctx context.Context, ref string, page int, scale float64) (PageSize, error) {
	if scale <= 0 {
		return PageSize{}, fmt.Errorf("invalid scale %v", scale)
	}
	info, err := r.info(ctx, ref)
	if err != nil {
		return PageSize{}, err
	}
	box, err := info.Page(page)
	if err != nil {
		return PageSize{}, err
	}
	size := box.Pixels(scale)
	if size.Area() > MaxPixels {
		return PageSize{}, fmt.Errorf("%w: page %d is %dx%d at scale %v", ErrPageTooLarge, page, size.Width, size.Height, scale)
	}
	return size, nil
}

// Forget drops cached geometry for ref.
func (r *PDFRasterizer) Forget(ref string) {
	r.mu.Lock()
	delete(r.cache, ref)
	r.mu.Unlock()
}
