package mask

import "github.com/MeKo-Tech/fabricarea/internal/mempool"

// ComponentStats holds per-component pixel statistics, accumulated while
// labelling. Sums are kept in float64 for the second moments used by line
// fitting.
type ComponentStats struct {
	Label int32
	Count int
	MinX  int
	MinY  int
	MaxX  int
	MaxY  int
	// Start is the first pixel reached in raster order, which is always on
	// the outer boundary.
	StartX int
	StartY int

	SumX, SumY          float64
	SumXX, SumYY, SumXY float64
}

// Width returns the bounding box width in pixels.
func (c ComponentStats) Width() int { return c.MaxX - c.MinX + 1 }

// Height returns the bounding box height in pixels.
func (c ComponentStats) Height() int { return c.MaxY - c.MinY + 1 }

// Labels is a label image: Pix[i] is 0 for background or the 1-based
// component label. It owns a pooled buffer; call Release when done.
type Labels struct {
	Width  int
	Height int
	Pix    []int32
	Comps  []ComponentStats
}

// Release returns the label buffer to the pool.
func (l *Labels) Release() {
	if l == nil || l.Pix == nil {
		return
	}
	mempool.PutInt32(l.Pix)
	l.Pix = nil
}

// At returns the label at (x, y), 0 when out of range.
func (l *Labels) At(x, y int) int32 {
	if x < 0 || y < 0 || x >= l.Width || y >= l.Height {
		return 0
	}
	return l.Pix[y*l.Width+x]
}

var (
	neighbors4 = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	neighbors8 = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {-1, 1}, {1, -1}, {-1, -1}}
)

// Label finds connected foreground components. eight selects
// 8-connectivity, otherwise 4-connectivity is used. Components are numbered
// in raster order of their first pixel.
func Label(m *Mask, eight bool) *Labels {
	w, h := m.Width, m.Height
	l := &Labels{Width: w, Height: h, Pix: mempool.GetInt32(w * h)}
	dirs := neighbors4
	if eight {
		dirs = neighbors8
	}

	queue := mempool.GetInt32(0)
	defer func() { mempool.PutInt32(queue) }()

	label := int32(1)
	for y := range h {
		for x := range w {
			idx := y*w + x
			if !m.Pix[idx] || l.Pix[idx] != 0 {
				continue
			}
			var st ComponentStats
			st, queue = floodComponent(m, l, queue[:0], dirs, x, y, label)
			l.Comps = append(l.Comps, st)
			label++
		}
	}
	return l
}

// floodComponent performs BFS from a seed pixel, labelling and measuring
// the component. The queue buffer is returned for reuse.
func floodComponent(m *Mask, l *Labels, queue []int32, dirs [][2]int, sx, sy int, label int32) (ComponentStats, []int32) {
	w, h := m.Width, m.Height
	st := ComponentStats{Label: label, MinX: sx, MinY: sy, MaxX: sx, MaxY: sy, StartX: sx, StartY: sy}

	start := int32(sy*w + sx)
	l.Pix[start] = label
	queue = append(queue, start)

	for head := 0; head < len(queue); head++ {
		ci := int(queue[head])
		cx, cy := ci%w, ci/w
		updateStats(&st, cx, cy)
		for _, d := range dirs {
			nx, ny := cx+d[0], cy+d[1]
			if nx < 0 || ny < 0 || nx >= w || ny >= h {
				continue
			}
			ni := ny*w + nx
			if m.Pix[ni] && l.Pix[ni] == 0 {
				l.Pix[ni] = label
				queue = append(queue, int32(ni))
			}
		}
	}
	return st, queue
}

func updateStats(st *ComponentStats, x, y int) {
	st.Count++
	fx, fy := float64(x), float64(y)
	st.SumX += fx
	st.SumY += fy
	st.SumXX += fx * fx
	st.SumYY += fy * fy
	st.SumXY += fx * fy
	st.MinX = min(st.MinX, x)
	st.MinY = min(st.MinY, y)
	st.MaxX = max(st.MaxX, x)
	st.MaxY = max(st.MaxY, y)
}

// OutsideBackground marks background pixels 4-connected to the image
// border. Background not marked lies in a hole of some component.
func OutsideBackground(m *Mask) *Mask {
	w, h := m.Width, m.Height
	out := New(w, h)
	if w == 0 || h == 0 {
		return out
	}
	queue := mempool.GetInt32(0)
	defer func() { mempool.PutInt32(queue) }()

	seed := func(x, y int) {
		i := y*w + x
		if !m.Pix[i] && !out.Pix[i] {
			out.Pix[i] = true
			queue = append(queue, int32(i))
		}
	}
	for x := range w {
		seed(x, 0)
		seed(x, h-1)
	}
	for y := range h {
		seed(0, y)
		seed(w-1, y)
	}
	for head := 0; head < len(queue); head++ {
		ci := int(queue[head])
		cx, cy := ci%w, ci/w
		for _, d := range neighbors4 {
			nx, ny := cx+d[0], cy+d[1]
			if nx >= 0 && ny >= 0 && nx < w && ny < h {
				seed(nx, ny)
			}
		}
	}
	return out
}
