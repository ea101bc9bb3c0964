package render

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// MaxImagePixels bounds the area of an ImageSurface. Larger resizes leave an empty image.
const MaxImagePixels = 64 << 20

// ImageSurface rasterizes the overlay into an RGBA image with source-over blending.
type ImageSurface struct {
	img *image.RGBA
}

// NewImageSurface returns a transparent surface of the given size.
func NewImageSurface(width, height int) *ImageSurface {
	s := &ImageSurface{}
	s.Resize(width, height)
	return s
}

// Resize replaces the image with a transparent one of the given size. Negative
// sizes, and sizes above MaxImagePixels, produce an empty image.
func (s *ImageSurface) Resize(width, height int) {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	if int64(width)*int64(height) > MaxImagePixels {
		width, height = 0, 0
	}
	s.img = image.NewRGBA(image.Rect(0, 0, width, height))
}

func (s *ImageSurface) Clear() {
	for i := range s.img.Pix {
		s.img.Pix[i] = 0
	}
}

func (s *ImageSurface) DrawRect(x, y, w, h float64, fill Fill) {
	r := image.Rect(
		int(math.Round(x)), int(math.Round(y)),
		int(math.Round(x+w)), int(math.Round(y+h)),
	).Intersect(s.img.Bounds())
	for py := r.Min.Y; py < r.Max.Y; py++ {
		for px := r.Min.X; px < r.Max.X; px++ {
			s.img.SetRGBA(px, py, blend(s.img.RGBAAt(px, py), fill))
		}
	}
}

// Image returns the backing image.
func (s *ImageSurface) Image() *image.RGBA {
	return s.img
}

// EncodePNG writes the surface as a PNG.
func (s *ImageSurface) EncodePNG(w io.Writer) error {
	return png.Encode(w, s.img)
}

func blend(dst color.RGBA, fill Fill) color.RGBA {
	srcA := fill.Alpha
	dstA := float64(dst.A) / 255
	outA := srcA + dstA*(1-srcA)
	if outA == 0 {
		return color.RGBA{}
	}
	var under colorful.Color
	if dst.A > 0 {
		under = colorful.Color{
			R: float64(dst.R) / float64(dst.A),
			G: float64(dst.G) / float64(dst.A),
			B: float64(dst.B) / float64(dst.A),
		}
	}
	// Straight-alpha mix, then premultiply for image.RGBA.
	mixed := under.BlendRgb(fill.Color, srcA/outA)
	return color.RGBA{
		R: uint8(math.Round(mixed.R * outA * 255)),
		G: uint8(math.Round(mixed.G * outA * 255)),
		B: uint8(math.Round(mixed.B * outA * 255)),
		A: uint8(math.Round(outA * 255)),
	}
}
