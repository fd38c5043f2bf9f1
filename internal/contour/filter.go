package contour

import "fmt"

// Rejection names the filter that discarded a candidate. The zero value
// means the candidate was accepted.
type Rejection string

const (
	Accepted      Rejection = ""
	RejectBorder  Rejection = "touches_border"
	RejectSmall   Rejection = "too_small"
	RejectLarge   Rejection = "too_large"
	RejectAspect  Rejection = "elongated"
	RejectPolygon Rejection = "degenerate"
)

// Filter holds the candidate plausibility bounds.
type Filter struct {
	MinAreaFraction float64 `mapstructure:"min_area_fraction" yaml:"min_area_fraction" json:"min_area_fraction"`
	MaxAreaFraction float64 `mapstructure:"max_area_fraction" yaml:"max_area_fraction" json:"max_area_fraction"`
	BorderMargin    int     `mapstructure:"border_margin" yaml:"border_margin" json:"border_margin"`
	MaxAspectRatio  float64 `mapstructure:"max_aspect_ratio" yaml:"max_aspect_ratio" json:"max_aspect_ratio"`
}

// DefaultFilter keeps regions between 5% and 90% of the image, at least
// 10 px clear of every edge, with an aspect ratio of at most 6.
func DefaultFilter() Filter {
	return Filter{
		MinAreaFraction: 0.05,
		MaxAreaFraction: 0.90,
		BorderMargin:    10,
		MaxAspectRatio:  6,
	}
}

// Validate checks the bounds.
func (f Filter) Validate() error {
	if f.MaxAreaFraction < 0.70 || f.MaxAreaFraction > 0.90 {
		return fmt.Errorf("max area fraction %.2f outside [0.70, 0.90]", f.MaxAreaFraction)
	}
	if f.MinAreaFraction <= 0 || f.MinAreaFraction >= f.MaxAreaFraction {
		return fmt.Errorf("min area fraction %.2f must be in (0, %.2f)", f.MinAreaFraction, f.MaxAreaFraction)
	}
	if f.BorderMargin < 0 {
		return fmt.Errorf("border margin must be non-negative, got %d", f.BorderMargin)
	}
	if f.MaxAspectRatio < 6 || f.MaxAspectRatio > 15 {
		return fmt.Errorf("max aspect ratio %.1f outside [6, 15]", f.MaxAspectRatio)
	}
	return nil
}

// Check returns why c is rejected for a w×h image, or Accepted. The border
// test runs first so a contour touching the edge is never scored.
func (f Filter) Check(c Contour, w, h int) Rejection {
	if len(c.Points) < 3 {
		return RejectPolygon
	}
	b := c.Bounds
	m := f.BorderMargin
	if b.Min.X <= m || b.Min.Y <= m || b.Max.X-1 >= w-1-m || b.Max.Y-1 >= h-1-m {
		return RejectBorder
	}
	total := float64(w) * float64(h)
	if c.Area < f.MinAreaFraction*total {
		return RejectSmall
	}
	if c.Area > f.MaxAreaFraction*total {
		return RejectLarge
	}
	if c.AspectRatio() > f.MaxAspectRatio {
		return RejectAspect
	}
	return Accepted
}

// Selection is the outcome of choosing among candidate contours.
type Selection struct {
	Contour    Contour
	Index      int
	Score      float64
	Candidates int
	Accepted   int
	Rejected   map[Rejection]int
	Fallback   bool
}

// Select filters contours and returns the highest scoring survivor. Ties
// keep the earliest contour, so the result depends only on the input order.
func (f Filter) Select(contours []Contour, w, h int) (Selection, error) {
	sel := Selection{Index: -1, Candidates: len(contours), Rejected: map[Rejection]int{}}
	for i, c := range contours {
		if r := f.Check(c, w, h); r != Accepted {
			sel.Rejected[r]++
			continue
		}
		sel.Accepted++
		if s := c.Score(); sel.Index < 0 || s > sel.Score {
			sel.Index, sel.Score, sel.Contour = i, s, c
		}
	}
	if sel.Index < 0 {
		return sel, ErrNoCandidateContour
	}
	return sel, nil
}
