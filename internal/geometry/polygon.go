package geometry

import (
	"cmp"
	"math"
	"slices"
)

// SignedArea returns the shoelace sum over consecutive vertex pairs (with
// wraparound) divided by two. The sign follows the traversal direction.
func SignedArea(pts []Point) float64 {
	n := len(pts)
	if n < 3 {
		return 0
	}
	sum := 0.0
	for i := range n {
		a := pts[i]
		b := pts[(i+1)%n]
		sum += a.X*b.Y - b.X*a.Y
	}
	return sum / 2
}

// Area returns the enclosed area of a simple polygon in any winding order.
func Area(pts []Point) float64 {
	return math.Abs(SignedArea(pts))
}

// Perimeter returns the closed perimeter of pts.
func Perimeter(pts []Point) float64 {
	n := len(pts)
	if n < 2 {
		return 0
	}
	total := 0.0
	for i := range n {
		a := pts[i]
		b := pts[(i+1)%n]
		total += math.Hypot(b.X-a.X, b.Y-a.Y)
	}
	return total
}

// Compactness is 4π·area/perimeter², 1.0 for a perfect circle.
func Compactness(area, perimeter float64) float64 {
	if perimeter <= 0 {
		return 0
	}
	return 4 * math.Pi * area / (perimeter * perimeter)
}

// SimplifyClosed reduces a closed curve with the Douglas–Peucker algorithm.
// The curve is split at the first point and the point farthest from it, and
// each half is reduced independently so the result stays closed.
func SimplifyClosed(pts []Point, epsilon float64) []Point {
	n := len(pts)
	if n <= 3 || epsilon <= 0 {
		return append([]Point(nil), pts...)
	}

	far, farDist := 0, -1.0
	for i := 1; i < n; i++ {
		if d := math.Hypot(pts[i].X-pts[0].X, pts[i].Y-pts[0].Y); d > farDist {
			far, farDist = i, d
		}
	}
	if farDist == 0 {
		return []Point{pts[0]}
	}

	// Ring as an open sequence ending on the first point again.
	ring := make([]Point, n+1)
	copy(ring, pts)
	ring[n] = pts[0]

	keep := make([]bool, n+1)
	keep[0] = true
	keep[far] = true
	dpSimplify(ring, 0, far, epsilon, keep)
	dpSimplify(ring, far, n, epsilon, keep)

	out := make([]Point, 0, n)
	for i := range n {
		if keep[i] {
			out = append(out, ring[i])
		}
	}
	return out
}

func dpSimplify(pts []Point, start, end int, eps float64, keep []bool) {
	if end <= start+1 {
		return
	}
	maxDist := -1.0
	index := -1
	a := pts[start]
	b := pts[end]
	for i := start + 1; i < end; i++ {
		d := perpendicularDistance(pts[i], a, b)
		if d > maxDist {
			maxDist = d
			index = i
		}
	}
	if maxDist > eps {
		keep[index] = true
		dpSimplify(pts, start, index, eps, keep)
		dpSimplify(pts, index, end, eps, keep)
	}
}

func perpendicularDistance(p, a, b Point) float64 {
	vx, vy := b.X-a.X, b.Y-a.Y
	if vx == 0 && vy == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	// Area of parallelogram / base length
	num := math.Abs((p.X-a.X)*vy - (p.Y-a.Y)*vx)
	return num / math.Hypot(vx, vy)
}

// ConvexHull computes the convex hull of a set of points using the
// monotone chain algorithm. Returns the hull without duplicating the first
// point at the end. Collinear boundary points are dropped.
func ConvexHull(pts []Point) []Point {
	n := len(pts)
	if n <= 1 {
		return append([]Point(nil), pts...)
	}
	p := make([]Point, n)
	copy(p, pts)
	slices.SortFunc(p, func(a, b Point) int {
		if c := cmp.Compare(a.X, b.X); c != 0 {
			return c
		}
		return cmp.Compare(a.Y, b.Y)
	})
	p = slices.Compact(p)
	if len(p) <= 2 {
		return p
	}
	lower := halfHull(p, false)
	upper := halfHull(p, true)
	hull := make([]Point, 0, len(lower)+len(upper)-2)
	hull = append(hull, lower[:len(lower)-1]...)
	hull = append(hull, upper[:len(upper)-1]...)
	return hull
}

func halfHull(p []Point, reverse bool) []Point {
	out := make([]Point, 0, len(p))
	for i := range p {
		pt := p[i]
		if reverse {
			pt = p[len(p)-1-i]
		}
		for len(out) >= 2 && cross(out[len(out)-2], out[len(out)-1], pt) <= 0 {
			out = out[:len(out)-1]
		}
		out = append(out, pt)
	}
	return out
}

func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}
