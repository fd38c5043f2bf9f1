// Package mask implements the binary foreground buffer produced by
// segmentation, with morphology operators over it.
package mask

import (
	"image"

	"github.com/MeKo-Tech/fabricarea/internal/mempool"
)

// Mask is a binary image of the same dimensions as its source. Pixels are
// stored row-major. A Mask owns a pooled buffer; call Release when done.
type Mask struct {
	Width  int
	Height int
	Pix    []bool
}

// New returns an all-background mask backed by a pooled buffer.
func New(w, h int) *Mask {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return &Mask{Width: w, Height: h, Pix: mempool.GetBool(w * h)}
}

// FromGray marks every pixel whose luminance is >= threshold.
func FromGray(img *image.Gray, threshold uint8) *Mask {
	b := img.Bounds()
	m := New(b.Dx(), b.Dy())
	for y := range m.Height {
		row := img.Pix[y*img.Stride : y*img.Stride+m.Width]
		for x, v := range row {
			m.Pix[y*m.Width+x] = v >= threshold
		}
	}
	return m
}

// Release returns the buffer to the pool. The mask must not be used
// afterwards. Releasing nil or an already released mask is a no-op.
func (m *Mask) Release() {
	if m == nil || m.Pix == nil {
		return
	}
	mempool.PutBool(m.Pix)
	m.Pix = nil
}

// In reports whether (x, y) lies inside the mask.
func (m *Mask) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < m.Width && y < m.Height
}

// At reports whether (x, y) is foreground. Out of range is background.
func (m *Mask) At(x, y int) bool {
	return m.In(x, y) && m.Pix[y*m.Width+x]
}

// Set assigns the pixel at (x, y). Out of range writes are ignored.
func (m *Mask) Set(x, y int, v bool) {
	if m.In(x, y) {
		m.Pix[y*m.Width+x] = v
	}
}

// Count returns the number of foreground pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v {
			n++
		}
	}
	return n
}

// Empty reports whether the mask has no foreground.
func (m *Mask) Empty() bool {
	for _, v := range m.Pix {
		if v {
			return false
		}
	}
	return true
}

// Clone returns an independent copy backed by its own pooled buffer.
func (m *Mask) Clone() *Mask {
	c := New(m.Width, m.Height)
	copy(c.Pix, m.Pix)
	return c
}

// FillRect sets every pixel of r (clipped to the mask) to v.
func (m *Mask) FillRect(r image.Rectangle, v bool) {
	r = r.Intersect(image.Rect(0, 0, m.Width, m.Height))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			m.Pix[y*m.Width+x] = v
		}
	}
}

// ToGray renders the mask as 0/255 grayscale, used for debug output and
// for handing the mask to other image libraries.
func (m *Mask) ToGray() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, v := range m.Pix {
		if v {
			g.Pix[i] = 255
		}
	}
	return g
}
