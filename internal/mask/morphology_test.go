package mask

import (
	"image"
	"testing"

	"github.com/MeKo-Tech/fabricarea/internal/mempool"
	"github.com/stretchr/testify/assert"
)

func TestApply_OpenRemovesSpeckle(t *testing.T) {
	m := New(20, 20)
	defer m.Release()
	m.FillRect(image.Rect(5, 5, 15, 15), true)
	m.Set(1, 1, true)
	m.Set(18, 2, true)

	out := Apply(m, MorphConfig{Operation: OpOpen, KernelSize: 3, Iterations: 1})
	defer out.Release()

	assert.False(t, out.At(1, 1))
	assert.False(t, out.At(18, 2))
	assert.Equal(t, 100, out.Count(), "square survives intact")
}

func TestApply_CloseBridgesGap(t *testing.T) {
	m := New(40, 20)
	defer m.Release()
	m.FillRect(image.Rect(6, 6, 18, 14), true)
	m.FillRect(image.Rect(20, 6, 32, 14), true) // two-pixel seam at x=18,19

	out := Apply(m, MorphConfig{Operation: OpClose, KernelSize: 5, Iterations: 2})
	defer out.Release()

	assert.True(t, out.At(18, 9))
	assert.True(t, out.At(19, 9))
	assert.False(t, out.At(0, 0))
	assert.False(t, out.At(18, 2))
}

func TestApply_RectangleUnchangedByDefaultPipeline(t *testing.T) {
	m := New(100, 100)
	defer m.Release()
	m.FillRect(image.Rect(20, 30, 71, 81), true)

	opened := Apply(m, MorphConfig{Operation: OpOpen, KernelSize: 3, Iterations: 1})
	defer opened.Release()
	closed := Apply(opened, MorphConfig{Operation: OpClose, KernelSize: 5, Iterations: 2})
	defer closed.Release()

	assert.Equal(t, m.Pix, closed.Pix)
}

func TestApply_DilateGrowsByHalfKernel(t *testing.T) {
	m := New(11, 11)
	defer m.Release()
	m.Set(5, 5, true)

	out := Dilate(m, 3, 2)
	defer out.Release()
	assert.Equal(t, 25, out.Count())
	assert.True(t, out.At(3, 3))
	assert.False(t, out.At(2, 5))
}

func TestApply_NoneIsCopy(t *testing.T) {
	m := New(4, 4)
	defer m.Release()
	m.Set(0, 0, true)

	out := Apply(m, MorphConfig{Operation: OpNone})
	defer out.Release()
	assert.Equal(t, m.Pix, out.Pix)
	out.Set(1, 1, true)
	assert.False(t, m.At(1, 1))
}

func TestApply_ReleasesScratch(t *testing.T) {
	m := New(64, 64)
	base := mempool.Outstanding()
	out := Apply(m, MorphConfig{Operation: OpClose, KernelSize: 5, Iterations: 2})
	assert.Equal(t, base+1, mempool.Outstanding())
	out.Release()
	m.Release()
	assert.Equal(t, base-1, mempool.Outstanding())
}

func TestParseOp(t *testing.T) {
	for _, op := range []Op{OpNone, OpErode, OpDilate, OpOpen, OpClose} {
		got, err := ParseOp(op.String())
		assert.NoError(t, err)
		assert.Equal(t, op, got)
	}
	_, err := ParseOp("smooth")
	assert.Error(t, err)
}
