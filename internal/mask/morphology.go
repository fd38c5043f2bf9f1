package mask

import "fmt"

// Op is a morphological operation over a binary mask.
type Op int

const (
	OpNone Op = iota
	OpErode
	OpDilate
	OpOpen  // erode then dilate, removes speckle
	OpClose // dilate then erode, bridges gaps
)

// String returns the operation name used in config files.
func (o Op) String() string {
	switch o {
	case OpNone:
		return "none"
	case OpErode:
		return "erode"
	case OpDilate:
		return "dilate"
	case OpOpen:
		return "open"
	case OpClose:
		return "close"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// ParseOp converts a config name to an Op.
func ParseOp(s string) (Op, error) {
	switch s {
	case "", "none":
		return OpNone, nil
	case "erode":
		return OpErode, nil
	case "dilate":
		return OpDilate, nil
	case "open":
		return OpOpen, nil
	case "close":
		return OpClose, nil
	default:
		return OpNone, fmt.Errorf("unknown morphological operation %q", s)
	}
}

// MorphConfig holds configuration for morphological operations.
type MorphConfig struct {
	Operation  Op
	KernelSize int // side of the square structuring element
	Iterations int
}

// Apply runs cfg over m and returns a new mask; m is left untouched.
// Iterations follow the OpenCV convention: an n-iteration closing is n
// dilations followed by n erosions. Pixels outside the image never
// contribute, so the border neither grows nor erodes the foreground.
func Apply(m *Mask, cfg MorphConfig) *Mask {
	out := m.Clone()
	if cfg.Operation == OpNone || cfg.KernelSize <= 1 || cfg.Iterations <= 0 {
		return out
	}
	scratch := New(m.Width, m.Height)
	defer scratch.Release()

	run := func(dilate bool) {
		for range cfg.Iterations {
			rectPass(out, scratch, cfg.KernelSize, dilate)
		}
	}
	switch cfg.Operation {
	case OpErode:
		run(false)
	case OpDilate:
		run(true)
	case OpOpen:
		run(false)
		run(true)
	case OpClose:
		run(true)
		run(false)
	}
	return out
}

// Dilate is shorthand for a single-kernel dilation.
func Dilate(m *Mask, kernel, iterations int) *Mask {
	return Apply(m, MorphConfig{Operation: OpDilate, KernelSize: kernel, Iterations: iterations})
}

// rectPass applies one erosion or dilation with a k×k rectangle in place on
// m, using tmp as scratch. The rectangle is separable, so it runs as a
// horizontal pass into tmp followed by a vertical pass back into m.
func rectPass(m, tmp *Mask, k int, dilate bool) {
	lo := -(k / 2)
	hi := k - 1 - k/2
	w, h := m.Width, m.Height

	for y := range h {
		row := m.Pix[y*w : (y+1)*w]
		dst := tmp.Pix[y*w : (y+1)*w]
		for x := range w {
			dst[x] = window(row, x+lo, x+hi, dilate)
		}
	}
	for x := range w {
		col := tmp.Pix[x:]
		for y := range h {
			m.Pix[y*w+x] = windowStrided(col, y+lo, y+hi, w, h, dilate)
		}
	}
}

// window evaluates any/all over row[a..b] clipped to the row.
func window(row []bool, a, b int, dilate bool) bool {
	if a < 0 {
		a = 0
	}
	if b >= len(row) {
		b = len(row) - 1
	}
	for i := a; i <= b; i++ {
		if row[i] == dilate {
			return dilate
		}
	}
	return !dilate
}

// windowStrided is window over a column stored with the given stride.
func windowStrided(col []bool, a, b, stride, n int, dilate bool) bool {
	if a < 0 {
		a = 0
	}
	if b >= n {
		b = n - 1
	}
	for i := a; i <= b; i++ {
		if col[i*stride] == dilate {
			return dilate
		}
	}
	return !dilate
}
