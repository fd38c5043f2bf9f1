package contour

import (
	"github.com/MeKo-Tech/fabricarea/internal/geometry"
	"github.com/MeKo-Tech/fabricarea/internal/mask"
)

// 8-neighbourhood in clockwise order with y pointing down:
// E, SE, S, SW, W, NW, N, NE.
var (
	ndx = [8]int{1, 1, 0, -1, -1, -1, 0, 1}
	ndy = [8]int{0, 1, 1, 1, 0, -1, -1, -1}
)

func dirIndex(dx, dy int) int {
	for i := range 8 {
		if ndx[i] == dx && ndy[i] == dy {
			return i
		}
	}
	return 0
}

// TraceOuter returns the outer boundary of every 8-connected component of
// m, in raster order of each component's first pixel. Components lying in
// the hole of another component are skipped.
func TraceOuter(m *mask.Mask) []Contour {
	labels := mask.Label(m, true)
	defer labels.Release()
	outside := mask.OutsideBackground(m)
	defer outside.Release()

	out := make([]Contour, 0, len(labels.Comps))
	for _, st := range labels.Comps {
		// The raster-first pixel always has background on its left. If
		// that background is enclosed, the whole component is nested.
		if st.StartX > 0 && !outside.At(st.StartX-1, st.StartY) {
			continue
		}
		out = append(out, FromPoints(traceMoore(labels, st)))
	}
	return out
}

// traceMoore follows the boundary of one labelled component clockwise from
// its raster-first pixel. Tracing stops when the first move is about to be
// repeated from the start pixel.
func traceMoore(l *mask.Labels, st mask.ComponentStats) []geometry.Point {
	inside := func(x, y int) bool { return l.At(x, y) == st.Label }

	sx, sy := st.StartX, st.StartY
	pts := appendVertex(make([]geometry.Point, 0, 64), sx, sy)

	nx, ny, bx, by, ok := mooreStep(inside, sx, sy, sx-1, sy)
	if !ok {
		return pts // isolated pixel
	}
	firstX, firstY := nx, ny

	maxSteps := 4*st.Count + 8
	for range maxSteps {
		cx, cy := nx, ny
		pts = appendVertex(pts, cx, cy)
		nx, ny, bx, by, ok = mooreStep(inside, cx, cy, bx, by)
		if !ok || (cx == sx && cy == sy && nx == firstX && ny == firstY) {
			break
		}
	}
	return closeRing(pts)
}

// mooreStep scans the neighbours of c clockwise, starting after the
// backtrack b, and returns the first foreground pixel together with the
// background pixel examined just before it.
func mooreStep(inside func(x, y int) bool, cx, cy, bx, by int) (int, int, int, int, bool) {
	start := dirIndex(bx-cx, by-cy)
	px, py := bx, by
	for k := 1; k <= 8; k++ {
		i := (start + k) % 8
		tx, ty := cx+ndx[i], cy+ndy[i]
		if inside(tx, ty) {
			return tx, ty, px, py, true
		}
		px, py = tx, ty
	}
	return 0, 0, 0, 0, false
}

// appendVertex adds (x, y), dropping the previous vertex when it sits in
// the middle of a straight run. Reversals are kept so spikes survive.
func appendVertex(pts []geometry.Point, x, y int) []geometry.Point {
	p := geometry.Point{X: float64(x), Y: float64(y)}
	n := len(pts)
	if n > 0 && pts[n-1] == p {
		return pts
	}
	if n >= 2 && straight(pts[n-2], pts[n-1], p) {
		pts = pts[:n-1]
	}
	return append(pts, p)
}

func straight(a, b, c geometry.Point) bool {
	v1x, v1y := b.X-a.X, b.Y-a.Y
	v2x, v2y := c.X-b.X, c.Y-b.Y
	return v1x*v2y-v1y*v2x == 0 && v1x*v2x+v1y*v2y > 0
}

// closeRing drops the repeated start vertex and collapses a straight run
// across the wraparound.
func closeRing(pts []geometry.Point) []geometry.Point {
	if n := len(pts); n >= 2 && pts[0] == pts[n-1] {
		pts = pts[:n-1]
	}
	if n := len(pts); n >= 3 && straight(pts[n-2], pts[n-1], pts[0]) {
		pts = pts[:n-1]
	}
	return pts
}
