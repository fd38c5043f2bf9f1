package geometry

// Default simplification parameters.
const (
	DefaultEpsilonFactor = 0.002
	DefaultMinVertices   = 4
)

// Simplifier reduces a traced contour to a compact polygon.
type Simplifier struct {
	// EpsilonFactor multiplies the contour perimeter to get the
	// Douglas–Peucker tolerance.
	EpsilonFactor float64
	// MinVertices is the smallest simplified result accepted before
	// falling back to the convex hull of the raw contour.
	MinVertices int
}

// Simplified is the output of Simplifier.Simplify.
type Simplified struct {
	Points   []Point
	Epsilon  float64
	UsedHull bool
}

// NewSimplifier returns a Simplifier with the default tolerance.
func NewSimplifier() Simplifier {
	return Simplifier{EpsilonFactor: DefaultEpsilonFactor, MinVertices: DefaultMinVertices}
}

// Simplify reduces contour using a tolerance proportional to perimeter.
// Results with fewer than MinVertices vertices are replaced by the convex
// hull of the original contour.
func (s Simplifier) Simplify(contour []Point, perimeter float64) Simplified {
	factor := s.EpsilonFactor
	if factor <= 0 {
		factor = DefaultEpsilonFactor
	}
	minV := s.MinVertices
	if minV <= 0 {
		minV = DefaultMinVertices
	}
	eps := factor * perimeter
	return simplifyWithHull(contour, eps, minV)
}

func simplifyWithHull(contour []Point, eps float64, minV int) Simplified {
	pts := SimplifyClosed(contour, eps)
	if len(pts) >= minV {
		return Simplified{Points: pts, Epsilon: eps}
	}
	return Simplified{Points: ConvexHull(contour), Epsilon: eps, UsedHull: true}
}
