// Package area converts a polygon in pixel coordinates into real-world
// surface area.
package area

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/fabricarea/internal/calibration"
	"github.com/MeKo-Tech/fabricarea/internal/geometry"
)

// ErrDegeneratePolygon is returned for polygons with fewer than 3 vertices.
var ErrDegeneratePolygon = errors.New("degenerate polygon")

// CmPerM2 is the number of square centimetres in a square metre.
const CmPerM2 = 10000

// Result is an immutable measurement.
type Result struct {
	PixelsPerCm float64          `json:"pixels_per_cm" yaml:"pixels_per_cm"`
	AreaPx      float64          `json:"area_px" yaml:"area_px"`
	AreaCm2     float64          `json:"area_cm2" yaml:"area_cm2"`
	AreaM2      float64          `json:"area_m2" yaml:"area_m2"`
	VertexCount int              `json:"vertex_count" yaml:"vertex_count"`
	Polygon     []geometry.Point `json:"polygon" yaml:"polygon"`
}

// Calculate measures poly at scale px/cm. The polygon is copied into the
// result.
func Calculate(poly []geometry.Point, scale float64) (Result, error) {
	if !(scale > 0) {
		return Result{}, fmt.Errorf("%w: scale %.4f px/cm", calibration.ErrCalibrationInvalid, scale)
	}
	if len(poly) < 3 {
		return Result{}, fmt.Errorf("%w: %d vertices", ErrDegeneratePolygon, len(poly))
	}
	px := geometry.Area(poly)
	cm2 := px / (scale * scale)
	return Result{
		PixelsPerCm: scale,
		AreaPx:      px,
		AreaCm2:     cm2,
		AreaM2:      cm2 / CmPerM2,
		VertexCount: len(poly),
		Polygon:     append([]geometry.Point(nil), poly...),
	}, nil
}

// Rescaled returns r with the polygon and pixel quantities mapped back by
// factor, for results measured on a downscaled copy of the image. The
// real-world area does not change.
func (r Result) Rescaled(factor float64) Result {
	if factor == 1 || factor <= 0 {
		return r
	}
	r.Polygon = geometry.ScalePoints(r.Polygon, factor)
	r.AreaPx *= factor * factor
	r.PixelsPerCm *= factor
	return r
}
