package pipeline

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/MeKo-Tech/fabricarea/internal/area"
	"github.com/MeKo-Tech/fabricarea/internal/calibration"
	"github.com/MeKo-Tech/fabricarea/internal/geometry"
)

const (
	rulerHalfWidth = 12
	majorTickHalf  = 12
	minorTickHalf  = 6
	majorTickEvery = 5
)

// OverlayColors are the colours used by RenderOverlay.
type OverlayColors struct {
	Polygon color.Color
	Ruler   color.Color
	Ticks   color.Color
}

// DefaultOverlayColors returns green outline, blue ruler and white ticks.
func DefaultOverlayColors() OverlayColors {
	return OverlayColors{
		Polygon: color.RGBA{R: 0, G: 220, B: 0, A: 255},
		Ruler:   color.RGBA{R: 30, G: 110, B: 255, A: 255},
		Ticks:   color.White,
	}
}

// ParseOverlayColors reads hex colours such as "#00dc00". Empty values keep
// the defaults.
func ParseOverlayColors(polygon, ruler, ticks string) (OverlayColors, error) {
	c := DefaultOverlayColors()
	for _, f := range []struct {
		hex string
		dst *color.Color
	}{{polygon, &c.Polygon}, {ruler, &c.Ruler}, {ticks, &c.Ticks}} {
		if f.hex == "" {
			continue
		}
		col, err := colorful.Hex(f.hex)
		if err != nil {
			return OverlayColors{}, err
		}
		r, g, b := col.RGB255()
		*f.dst = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return c, nil
}

// RenderOverlay draws the measured polygon and the ruler over an RGBA copy
// of img. Either res or ruler may be nil.
func RenderOverlay(img image.Image, res *area.Result, ruler *calibration.Ruler, colors OverlayColors) *image.RGBA {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	if ruler != nil && ruler.Length > 0 {
		drawRuler(dst, *ruler, colors)
	}
	if res != nil && len(res.Polygon) >= 2 {
		geometry.DrawPolygon(dst, res.Polygon, colors.Polygon, 3)
	}
	return dst
}

func drawRuler(dst *image.RGBA, r calibration.Ruler, colors OverlayColors) {
	l := r.Length
	body := []geometry.Point{
		r.World(geometry.Point{X: -rulerHalfWidth, Y: 0}),
		r.World(geometry.Point{X: rulerHalfWidth, Y: 0}),
		r.World(geometry.Point{X: rulerHalfWidth, Y: l}),
		r.World(geometry.Point{X: -rulerHalfWidth, Y: l}),
	}
	geometry.DrawPolygon(dst, body, colors.Ruler, 2)

	step := l / calibration.RulerUnits
	for i := 0; i <= calibration.RulerUnits; i++ {
		y := float64(i) * step
		half, thick := float64(minorTickHalf), 1
		if i%majorTickEvery == 0 {
			half, thick = majorTickHalf, 2
		}
		a := r.World(geometry.Point{X: -half, Y: y})
		c := r.World(geometry.Point{X: half, Y: y})
		geometry.DrawLine(dst, a, c, colors.Ticks, thick)
	}
}
