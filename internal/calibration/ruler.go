package calibration

import (
	"math"

	"github.com/MeKo-Tech/fabricarea/internal/geometry"
)

// RulerUnits is the number of centimetre divisions on the virtual ruler.
const RulerUnits = 30

const (
	// MinRulerLength is the shortest ruler the length control allows.
	MinRulerLength = 100
	// RotateStep is the rotation applied by one press of a rotate button.
	RotateStep = 5

	hitHalfWidth = 20
	hitEndSlack  = 10
)

// Ruler is the virtual ruler: anchored at Position, extending Length px
// along its local y axis, rotated clockwise by Angle degrees.
type Ruler struct {
	Position geometry.Point `json:"position" yaml:"position"`
	Length   float64        `json:"length" yaml:"length"`
	Angle    float64        `json:"angle" yaml:"angle"`
}

// Scale returns the pixels per centimetre the ruler represents.
func (r Ruler) Scale() float64 {
	return r.Length / RulerUnits
}

// Local maps an image point into the ruler frame.
func (r Ruler) Local(p geometry.Point) geometry.Point {
	rad := -r.Angle * math.Pi / 180
	d := geometry.Point{X: p.X - r.Position.X, Y: p.Y - r.Position.Y}
	return geometry.Rotate(d, geometry.Point{}, rad)
}

// World maps a point in the ruler frame back to image coordinates.
func (r Ruler) World(local geometry.Point) geometry.Point {
	rad := r.Angle * math.Pi / 180
	p := geometry.Rotate(local, geometry.Point{}, rad)
	return geometry.Point{X: p.X + r.Position.X, Y: p.Y + r.Position.Y}
}

// Hit reports whether p grabs the ruler: within 20 px of its axis and no
// more than 10 px beyond either end.
func (r Ruler) Hit(p geometry.Point) bool {
	l := r.Local(p)
	return math.Abs(l.X) < hitHalfWidth && l.Y >= -hitEndSlack && l.Y <= r.Length+hitEndSlack
}

// End returns the far end of the ruler in image coordinates.
func (r Ruler) End() geometry.Point {
	return r.World(geometry.Point{Y: r.Length})
}

// NormalizeAngle maps any angle in degrees into [0, 360).
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	return a
}
