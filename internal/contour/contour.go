// Package contour finds the outer boundaries of foreground regions and
// selects the one most likely to be a pattern piece.
package contour

import (
	"errors"
	"image"

	"github.com/MeKo-Tech/fabricarea/internal/geometry"
)

// ErrNoCandidateContour is returned when every boundary is rejected by the
// filters on both the primary and the fallback path.
var ErrNoCandidateContour = errors.New("pattern not found")

// Contour is a closed boundary in pixel coordinates with its derived
// measurements.
type Contour struct {
	Points    []geometry.Point
	Area      float64
	Perimeter float64
	// Bounds is the integer bounding box; Max is exclusive.
	Bounds image.Rectangle
}

// FromPoints builds a Contour and computes its area, perimeter and bounds.
func FromPoints(pts []geometry.Point) Contour {
	c := Contour{
		Points:    pts,
		Area:      geometry.Area(pts),
		Perimeter: geometry.Perimeter(pts),
	}
	if len(pts) > 0 {
		b := geometry.BoundingBox(pts)
		c.Bounds = image.Rect(int(b.MinX), int(b.MinY), int(b.MaxX)+1, int(b.MaxY)+1)
	}
	return c
}

// Compactness returns 4π·area/perimeter².
func (c Contour) Compactness() float64 {
	return geometry.Compactness(c.Area, c.Perimeter)
}

// Score ranks candidates: large and compact wins.
func (c Contour) Score() float64 {
	return c.Area * c.Compactness()
}

// AspectRatio returns max(w,h)/min(w,h) of the bounding box.
func (c Contour) AspectRatio() float64 {
	w, h := float64(c.Bounds.Dx()), float64(c.Bounds.Dy())
	return max(w, h) / max(min(w, h), 1)
}
