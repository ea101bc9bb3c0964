// Package render keeps the annotation overlay of the current page in sync
// with the annotation store and the pointer.
package render

import (
	"fmt"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/hyperjump/pdfmark/internal/models"
)

// Surface is the drawing capability the overlay is painted on.
type Surface interface {
	Clear()
	DrawRect(x, y, w, h float64, fill Fill)
	Resize(width, height int)
}

// Fill is a translucent color.
type Fill struct {
	Color colorful.Color
	Alpha float64
}

// CSS formats f as an rgba() color string.
func (f Fill) CSS() string {
	r, g, b := f.Color.RGB255()
	return fmt.Sprintf("rgba(%d, %d, %d, %g)", r, g, b, f.Alpha)
}

const fillAlpha = 0.3

var (
	highlightFill = Fill{Color: colorful.Color{R: 1, G: 1, B: 0}, Alpha: fillAlpha}
	markerFill    = Fill{Color: colorful.Color{R: 1, G: 0, B: 0}, Alpha: fillAlpha}
)

// FillFor returns the paint of an annotation kind.
func FillFor(kind models.Kind) Fill {
	if kind == models.KindMarker {
		return markerFill
	}
	return highlightFill
}
