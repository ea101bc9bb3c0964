package render

// Op is one recorded surface call.
type Op struct {
	Type   string  `json:"op"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"w,omitempty"`
	Height float64 `json:"h,omitempty"`
	Color  string  `json:"color,omitempty"`
}

// Op types.
const (
	OpClear  = "clear"
	OpRect   = "rect"
	OpResize = "resize"
)

// RecordingSurface is a headless Surface that records every call.
// It is not safe for concurrent use.
type RecordingSurface struct {
	ops    []Op
	width  int
	height int
}

// NewRecordingSurface returns an empty recorder.
func NewRecordingSurface() *RecordingSurface {
	return &RecordingSurface{}
}

func (s *RecordingSurface) Clear() {
	s.ops = append(s.ops, Op{Type: OpClear})
}

func (s *RecordingSurface) DrawRect(x, y, w, h float64, fill Fill) {
	s.ops = append(s.ops, Op{Type: OpRect, X: x, Y: y, Width: w, Height: h, Color: fill.CSS()})
}

func (s *RecordingSurface) Resize(width, height int) {
	s.width, s.height = width, height
	s.ops = append(s.ops, Op{Type: OpResize, Width: float64(width), Height: float64(height)})
}

// Size returns the last size set by Resize.
func (s *RecordingSurface) Size() (int, int) {
	return s.width, s.height
}

// Ops returns the recorded calls without clearing them.
func (s *RecordingSurface) Ops() []Op {
	return append([]Op(nil), s.ops...)
}

// Drain returns the recorded calls and forgets them.
func (s *RecordingSurface) Drain() []Op {
	ops := s.ops
	s.ops = nil
	return ops
}

// Visible returns the rects painted since the last clear, which is what a
// real canvas would currently show.
func (s *RecordingSurface) Visible() []Op {
	var out []Op
	for _, op := range s.ops {
		switch op.Type {
		case OpClear, OpResize:
			out = out[:0]
		case OpRect:
			out = append(out, op)
		}
	}
	return out
}
