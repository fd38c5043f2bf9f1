// Package lines detects short straight line segments, such as ruler tick
// marks. Detection runs the LSD line segment detector on the grayscale
// image; an edge blob fitter covers images where LSD finds nothing.
package lines

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/raff/lsd-go"

	"github.com/MeKo-Tech/fabricarea/internal/geometry"
	"github.com/MeKo-Tech/fabricarea/internal/mask"
	"github.com/MeKo-Tech/fabricarea/internal/segment"
)

// Segment is a straight line segment between two points.
type Segment struct {
	A geometry.Point `json:"a"`
	B geometry.Point `json:"b"`
}

// Length returns the Euclidean length of the segment.
func (s Segment) Length() float64 {
	return math.Hypot(s.B.X-s.A.X, s.B.Y-s.A.Y)
}

// Midpoint returns the centre of the segment.
func (s Segment) Midpoint() geometry.Point {
	return geometry.Point{X: (s.A.X + s.B.X) / 2, Y: (s.A.Y + s.B.Y) / 2}
}

// AngleFromVertical returns the unsigned angle to the image y axis in
// degrees, in [0, 90].
func (s Segment) AngleFromVertical() float64 {
	dx, dy := math.Abs(s.B.X-s.A.X), math.Abs(s.B.Y-s.A.Y)
	return math.Atan2(dx, dy) * 180 / math.Pi
}

// Config controls segment detection.
type Config struct {
	// Scale, SigmaScale, Quant, AngleTolerance (degrees), LogEps, Density
	// and Bins are passed to LSD unchanged.
	Scale          float64 `mapstructure:"scale" yaml:"scale" json:"scale"`
	SigmaScale     float64 `mapstructure:"sigma_scale" yaml:"sigma_scale" json:"sigma_scale"`
	Quant          float64 `mapstructure:"quant" yaml:"quant" json:"quant"`
	AngleTolerance float64 `mapstructure:"angle_tolerance" yaml:"angle_tolerance" json:"angle_tolerance"`
	LogEps         float64 `mapstructure:"log_eps" yaml:"log_eps" json:"log_eps"`
	Density        float64 `mapstructure:"density" yaml:"density" json:"density"`
	Bins           int     `mapstructure:"bins" yaml:"bins" json:"bins"`
	// MergeDistance joins near-parallel segments whose midpoints are this
	// close. LSD reports both sides of a thin stroke.
	MergeDistance float64 `mapstructure:"merge_distance" yaml:"merge_distance" json:"merge_distance"`

	// Edge blob fallback.
	BlurRadius    float64 `mapstructure:"blur_radius" yaml:"blur_radius" json:"blur_radius"`
	EdgeThreshold uint8   `mapstructure:"edge_threshold" yaml:"edge_threshold" json:"edge_threshold"`
	// MinPixels drops edge blobs too small to be a line.
	MinPixels int `mapstructure:"min_pixels" yaml:"min_pixels" json:"min_pixels"`
	// MinElongation is the smallest ratio between the spread along the
	// principal axis and across it.
	MinElongation float64 `mapstructure:"min_elongation" yaml:"min_elongation" json:"min_elongation"`
}

// DefaultConfig returns the standard LSD parameters and fallback settings
// tuned for dark ticks on a light ruler.
func DefaultConfig() Config {
	return Config{
		Scale:          0.8,
		SigmaScale:     0.6,
		Quant:          2,
		AngleTolerance: 22.5,
		Density:        0.7,
		Bins:           1024,
		MergeDistance:  4,
		BlurRadius:     1,
		EdgeThreshold:  60,
		MinPixels:      20,
		MinElongation:  3,
	}
}

// Validate checks the LSD parameters.
func (c Config) Validate() error {
	switch {
	case c.Scale <= 0 || c.Scale > 1:
		return fmt.Errorf("lsd scale %.2f outside (0, 1]", c.Scale)
	case c.SigmaScale <= 0:
		return fmt.Errorf("lsd sigma scale must be positive, got %f", c.SigmaScale)
	case c.Quant < 0:
		return fmt.Errorf("lsd quant must be non-negative, got %f", c.Quant)
	case c.AngleTolerance <= 0 || c.AngleTolerance >= 180:
		return fmt.Errorf("lsd angle tolerance %.1f outside (0, 180)", c.AngleTolerance)
	case c.Density < 0 || c.Density > 1:
		return fmt.Errorf("lsd density %.2f outside [0, 1]", c.Density)
	case c.Bins <= 0:
		return errors.New("lsd bins must be positive")
	case c.MergeDistance < 0:
		return fmt.Errorf("merge distance must be non-negative, got %f", c.MergeDistance)
	}
	return nil
}

// Detect returns the line segments found in img.
func Detect(img image.Image, cfg Config) []Segment {
	if img == nil || img.Bounds().Empty() {
		return nil
	}
	if segs := LSD(img, cfg); len(segs) > 0 {
		return segs
	}
	edges := segment.DetectEdges(img, cfg.BlurRadius, cfg.EdgeThreshold)
	defer edges.Release()
	return FromMask(edges, cfg)
}

// LSD runs the line segment detector on the luminance of img and merges
// the paired edges of thin strokes.
func LSD(img image.Image, cfg Config) []Segment {
	gray, w, h := grayBuffer(img)
	if w < 2 || h < 2 {
		return nil
	}
	raw, n := lsd.LineSegmentDetection(gray, w, h,
		cfg.Scale, cfg.SigmaScale, cfg.Quant, cfg.AngleTolerance, cfg.LogEps, cfg.Density,
		0, false, 0, cfg.Bins, false, nil, nil, nil, 0, 0)

	// seven values per segment: x1 y1 x2 y2 width p -log10(NFA)
	segs := make([]Segment, 0, n)
	ox, oy := float64(img.Bounds().Min.X), float64(img.Bounds().Min.Y)
	for i := range n {
		v := raw[i*7 : i*7+7]
		segs = append(segs, Segment{
			A: geometry.Point{X: v[0] + ox, Y: v[1] + oy},
			B: geometry.Point{X: v[2] + ox, Y: v[3] + oy},
		})
	}
	return Merge(segs, cfg.MergeDistance)
}

// grayBuffer returns the row-major luminance of img in [0, 255].
func grayBuffer(img image.Image) ([]float64, int, int) {
	g := imaging.Grayscale(img)
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := make([]float64, w*h)
	for y := range h {
		row := g.Pix[y*g.Stride:]
		for x := range w {
			out[y*w+x] = float64(row[x*4])
		}
	}
	return out, w, h
}

// mergeAngle is the largest direction difference, in degrees, between
// segments that Merge joins.
const mergeAngle = 10

// Merge joins each segment into the first earlier one that runs within
// mergeAngle of it and whose midpoint is within dist. Joined segments are
// averaged end to end. Output order follows the first member of each group.
func Merge(segs []Segment, dist float64) []Segment {
	if dist <= 0 || len(segs) < 2 {
		return segs
	}
	type group struct {
		first Segment
		sumA  geometry.Point
		sumB  geometry.Point
		n     float64
	}
	var groups []*group
	for _, s := range segs {
		var into *group
		for _, g := range groups {
			if midpointDistance(g.first, s) <= dist && angleBetween(g.first, s) <= mergeAngle {
				into = g
				break
			}
		}
		if into == nil {
			groups = append(groups, &group{first: s, sumA: s.A, sumB: s.B, n: 1})
			continue
		}
		// align s with the group's direction before averaging
		if (s.B.X-s.A.X)*(into.first.B.X-into.first.A.X)+(s.B.Y-s.A.Y)*(into.first.B.Y-into.first.A.Y) < 0 {
			s.A, s.B = s.B, s.A
		}
		into.sumA.X += s.A.X
		into.sumA.Y += s.A.Y
		into.sumB.X += s.B.X
		into.sumB.Y += s.B.Y
		into.n++
	}

	out := make([]Segment, len(groups))
	for i, g := range groups {
		out[i] = Segment{
			A: geometry.Point{X: g.sumA.X / g.n, Y: g.sumA.Y / g.n},
			B: geometry.Point{X: g.sumB.X / g.n, Y: g.sumB.Y / g.n},
		}
	}
	return out
}

func midpointDistance(a, b Segment) float64 {
	ma, mb := a.Midpoint(), b.Midpoint()
	return math.Hypot(ma.X-mb.X, ma.Y-mb.Y)
}

// angleBetween returns the undirected angle between a and b in degrees.
func angleBetween(a, b Segment) float64 {
	ta := math.Atan2(a.B.Y-a.A.Y, a.B.X-a.A.X)
	tb := math.Atan2(b.B.Y-b.A.Y, b.B.X-b.A.X)
	d := math.Abs(ta-tb) * 180 / math.Pi
	d = math.Mod(d, 180)
	return math.Min(d, 180-d)
}

// FromMask fits one segment to every elongated 8-connected blob of m. The
// segment lies on the blob's principal axis and spans the extreme
// projections of its pixels.
func FromMask(m *mask.Mask, cfg Config) []Segment {
	labels := mask.Label(m, true)
	defer labels.Release()

	var out []Segment
	for _, st := range labels.Comps {
		if st.Count < max(cfg.MinPixels, 2) {
			continue
		}
		n := float64(st.Count)
		mx, my := st.SumX/n, st.SumY/n
		cxx := st.SumXX/n - mx*mx
		cyy := st.SumYY/n - my*my
		cxy := st.SumXY/n - mx*my

		half := (cxx + cyy) / 2
		root := math.Sqrt((cxx-cyy)*(cxx-cyy)/4 + cxy*cxy)
		major, minor := half+root, max(half-root, 0)
		// A one pixel wide line still has a quarter pixel of spread.
		if math.Sqrt(major) < cfg.MinElongation*math.Max(math.Sqrt(minor), 0.5) {
			continue
		}

		theta := math.Atan2(2*cxy, cxx-cyy) / 2
		ux, uy := math.Cos(theta), math.Sin(theta)
		lo, hi := math.Inf(1), math.Inf(-1)
		for y := st.MinY; y <= st.MaxY; y++ {
			for x := st.MinX; x <= st.MaxX; x++ {
				if labels.At(x, y) != st.Label {
					continue
				}
				t := (float64(x)-mx)*ux + (float64(y)-my)*uy
				lo, hi = math.Min(lo, t), math.Max(hi, t)
			}
		}
		out = append(out, Segment{
			A: geometry.Point{X: mx + lo*ux, Y: my + lo*uy},
			B: geometry.Point{X: mx + hi*ux, Y: my + hi*uy},
		})
	}
	return out
}
