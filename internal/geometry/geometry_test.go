package geometry

import (
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
)

func TestFromDrag_Scenarios(t *testing.T) {
	want := Rect{X: 10, Y: 10, Width: 100, Height: 50}
	tests := []struct {
		name       string
		start, end r2.Point
		want       Rect
		ok         bool
	}{
		{"forward", r2.Point{X: 10, Y: 10}, r2.Point{X: 110, Y: 60}, want, true},
		{"reverse", r2.Point{X: 110, Y: 60}, r2.Point{X: 10, Y: 10}, want, true},
		{"up-right", r2.Point{X: 10, Y: 60}, r2.Point{X: 110, Y: 10}, want, true},
		{"tiny", r2.Point{X: 10, Y: 10}, r2.Point{X: 13, Y: 13}, Rect{}, false},
		{"thin", r2.Point{X: 10, Y: 10}, r2.Point{X: 200, Y: 14}, Rect{}, false},
		{"exact threshold", r2.Point{X: 0, Y: 0}, r2.Point{X: 5, Y: 5}, Rect{Width: 5, Height: 5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FromDrag(tt.start, tt.end)
			if ok != tt.ok {
				t.Fatalf("FromDrag ok = %v, want %v", ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("FromDrag = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFromDrag_NormalizationProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		x0, y0 := rng.Float64()*800, rng.Float64()*1000
		x1, y1 := rng.Float64()*800, rng.Float64()*1000
		r, ok := FromDrag(r2.Point{X: x0, Y: y0}, r2.Point{X: x1, Y: y1})
		w, h := abs(x1-x0), abs(y1-y0)
		if w < MinExtent || h < MinExtent {
			if ok {
				t.Fatalf("drag (%v,%v)->(%v,%v) should be discarded", x0, y0, x1, y1)
			}
			continue
		}
		if !ok {
			t.Fatalf("drag (%v,%v)->(%v,%v) unexpectedly discarded", x0, y0, x1, y1)
		}
		if r.X != min(x0, x1) || r.Y != min(y0, y1) || r.Width != w || r.Height != h {
			t.Fatalf("drag (%v,%v)->(%v,%v) = %+v", x0, y0, x1, y1, r)
		}
	}
}

func TestFromDragMin_CustomThreshold(t *testing.T) {
	if _, ok := FromDragMin(r2.Point{}, r2.Point{X: 8, Y: 8}, 10); ok {
		t.Error("8px drag should be discarded with threshold 10")
	}
	if _, ok := FromDragMin(r2.Point{}, r2.Point{X: 2, Y: 2}, 0); !ok {
		t.Error("any drag should be kept with threshold 0")
	}
}

func TestSpan_Degenerate(t *testing.T) {
	got := Span(r2.Point{X: 4, Y: 4}, r2.Point{X: 4, Y: 4})
	if got != (Rect{X: 4, Y: 4}) {
		t.Errorf("Span of a point = %+v", got)
	}
}

func TestContains(t *testing.T) {
	if !Contains(100, 50, r2.Point{X: 0, Y: 0}) {
		t.Error("origin should be inside")
	}
	if !Contains(100, 50, r2.Point{X: 100, Y: 50}) {
		t.Error("far corner should be inside")
	}
	if Contains(100, 50, r2.Point{X: 101, Y: 10}) {
		t.Error("point right of surface should be outside")
	}
	if Contains(100, 50, r2.Point{X: -1, Y: 10}) {
		t.Error("negative x should be outside")
	}
	if Contains(0, 0, r2.Point{}) {
		t.Error("unsized surface contains nothing")
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestScale(t *testing.T) {
	got := Scale(Rect{X: 10, Y: 20, Width: 30, Height: 40}, 1.5)
	want := Rect{X: 15, Y: 30, Width: 45, Height: 60}
	if got != want {
		t.Errorf("Scale = %+v, want %+v", got, want)
	}
}
