package models

import (
	"fmt"
	"time"
)

// Kind selects how an annotation is painted. It has no other behavioral effect.
type Kind string

const (
	// KindHighlight is a translucent yellow fill.
	KindHighlight Kind = "highlight"
	// KindMarker is a translucent red fill.
	KindMarker Kind = "marker"
)

// ParseKind returns the Kind named by s.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindHighlight, KindMarker:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown annotation kind %q", s)
	}
}

// Annotation is a normalized rectangle on one page, in page-local pixels
// at the scale the page was rendered when it was drawn.
type Annotation struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Width     float64   `json:"width"`
	Height    float64   `json:"height"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"createdAt"`
}

// AnnotationMap holds the annotations of one document keyed by 1-based page number.
// Order within a page is draw order.
type AnnotationMap map[int][]Annotation

// Clone returns a deep copy of m. A nil map clones to an empty one.
func (m AnnotationMap) Clone() AnnotationMap {
	out := make(AnnotationMap, len(m))
	for page, list := range m {
		cp := make([]Annotation, len(list))
		copy(cp, list)
		out[page] = cp
	}
	return out
}

// Count returns the number of annotations across all pages.
func (m AnnotationMap) Count() int {
	n := 0
	for _, list := range m {
		n += len(list)
	}
	return n
}
