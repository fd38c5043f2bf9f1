package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/fabricarea/internal/geometry"
)

var (
	// Background is a saturated green cutting mat, outside the default band.
	Background = color.NRGBA{R: 20, G: 90, B: 40, A: 255}
	// Paper is a beige pattern colour, inside the default band.
	Paper = color.NRGBA{R: 190, G: 180, B: 165, A: 255}
	// Ink is the dark colour used for ruler ticks.
	Ink = color.NRGBA{R: 10, G: 10, B: 10, A: 255}
	// White is the ruler body.
	White = color.NRGBA{R: 250, G: 250, B: 250, A: 255}
)

// Scene draws synthetic measurement photos: shapes on a uniform background.
type Scene struct {
	Width      int
	Height     int
	Background color.Color
	Foreground color.Color
}

// NewScene returns a scene with the default mat and paper colours.
func NewScene(w, h int) Scene {
	return Scene{Width: w, Height: h, Background: Background, Foreground: Paper}
}

func (s Scene) canvas() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, s.Width, s.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: s.Background}, image.Point{}, draw.Src)
	return img
}

// Blank returns the background only.
func (s Scene) Blank() *image.NRGBA { return s.canvas() }

// Rects draws filled rectangles in the foreground colour. Rectangles use
// inclusive pixel coordinates on both ends so a rect from 400 to 600
// produces a traced boundary exactly 200 px on a side.
func (s Scene) Rects(rs ...image.Rectangle) *image.NRGBA {
	img := s.canvas()
	for _, r := range rs {
		inclusive := image.Rect(r.Min.X, r.Min.Y, r.Max.X+1, r.Max.Y+1)
		draw.Draw(img, inclusive, &image.Uniform{C: s.Foreground}, image.Point{}, draw.Src)
	}
	return img
}

// Polygon fills pts in the foreground colour using an even-odd test at
// pixel centres.
func (s Scene) Polygon(pts []geometry.Point) *image.NRGBA {
	img := s.canvas()
	FillPolygon(img, pts, s.Foreground)
	return img
}

// FillPolygon fills pts into img with col.
func FillPolygon(img draw.Image, pts []geometry.Point, col color.Color) {
	box := geometry.BoundingBox(pts).ToRect(img.Bounds())
	for y := box.Min.Y; y <= box.Max.Y && y < img.Bounds().Max.Y; y++ {
		for x := box.Min.X; x <= box.Max.X && x < img.Bounds().Max.X; x++ {
			if inside(pts, float64(x), float64(y)) {
				img.Set(x, y, col)
			}
		}
	}
}

func inside(pts []geometry.Point, x, y float64) bool {
	in := false
	n := len(pts)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := pts[i], pts[j]
		if (a.Y > y) != (b.Y > y) && x < (b.X-a.X)*(y-a.Y)/(b.Y-a.Y)+a.X {
			in = !in
		}
	}
	return in
}

// RulerConfig describes a synthetic physical ruler with vertical ticks.
type RulerConfig struct {
	Origin    image.Point // top-left of the first tick
	Spacing   int         // px between tick centres
	Count     int
	TickLen   int
	Thickness int
	// EdgeLine draws a dark edge along the top of the ticks so that every
	// tick touches it, as on most printed rulers.
	EdgeLine bool
}

// DrawRuler paints a white ruler strip across the full width of img with
// dark vertical ticks.
func DrawRuler(img draw.Image, cfg RulerConfig) {
	b := img.Bounds()
	body := image.Rect(b.Min.X, cfg.Origin.Y-10, b.Max.X, cfg.Origin.Y+cfg.TickLen+30)
	draw.Draw(img, body, &image.Uniform{C: White}, image.Point{}, draw.Src)
	if cfg.EdgeLine {
		edge := image.Rect(b.Min.X, cfg.Origin.Y-cfg.Thickness, b.Max.X, cfg.Origin.Y)
		draw.Draw(img, edge, &image.Uniform{C: Ink}, image.Point{}, draw.Src)
	}
	for i := range cfg.Count {
		x := cfg.Origin.X + i*cfg.Spacing
		tick := image.Rect(x, cfg.Origin.Y, x+cfg.Thickness, cfg.Origin.Y+cfg.TickLen)
		draw.Draw(img, tick, &image.Uniform{C: Ink}, image.Point{}, draw.Src)
	}
}

// EncodePNG encodes img as PNG bytes.
func EncodePNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// SaveImage saves an image as PNG at path.
func SaveImage(t testing.TB, img image.Image, path string) {
	t.Helper()

	require.NoError(t, EnsureDir(filepath.Dir(path)))
	require.NoError(t, os.WriteFile(path, EncodePNG(t, img), 0o600))
}
