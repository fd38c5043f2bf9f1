package lines

import (
	"cmp"
	"image"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/fabricarea/internal/geometry"
	"github.com/MeKo-Tech/fabricarea/internal/mask"
	"github.com/MeKo-Tech/fabricarea/internal/mempool"
	"github.com/MeKo-Tech/fabricarea/internal/testutil"
)

func TestSegment_Measures(t *testing.T) {
	s := Segment{A: geometry.Point{X: 0, Y: 0}, B: geometry.Point{X: 3, Y: 4}}
	assert.InDelta(t, 5, s.Length(), 1e-9)
	assert.Equal(t, geometry.Point{X: 1.5, Y: 2}, s.Midpoint())

	v := Segment{A: geometry.Point{X: 10, Y: 0}, B: geometry.Point{X: 10, Y: 30}}
	assert.InDelta(t, 0, v.AngleFromVertical(), 1e-9)
	h := Segment{A: geometry.Point{X: 0, Y: 5}, B: geometry.Point{X: 30, Y: 5}}
	assert.InDelta(t, 90, h.AngleFromVertical(), 1e-9)
}

func TestFromMask_FitsBars(t *testing.T) {
	m := mask.New(100, 100)
	defer m.Release()
	m.FillRect(image.Rect(20, 10, 21, 41), true) // vertical, 31 px
	m.FillRect(image.Rect(40, 60, 81, 62), true) // horizontal, 41 px
	m.FillRect(image.Rect(5, 80, 10, 85), true)  // square blob, not a line

	segs := FromMask(m, DefaultConfig())
	require.Len(t, segs, 2)

	assert.InDelta(t, 30, segs[0].Length(), 1e-6)
	assert.InDelta(t, 0, segs[0].AngleFromVertical(), 1e-6)
	assert.InDelta(t, 20, segs[0].Midpoint().X, 1e-6)

	assert.InDelta(t, 40, segs[1].Length(), 1e-6)
	assert.InDelta(t, 90, segs[1].AngleFromVertical(), 1e-6)
}

func verticalTicks(segs []Segment) []Segment {
	var ticks []Segment
	for _, s := range segs {
		if s.AngleFromVertical() <= 15 && s.Length() >= 15 && s.Length() <= 100 {
			ticks = append(ticks, s)
		}
	}
	slices.SortFunc(ticks, func(a, b Segment) int { return cmp.Compare(a.Midpoint().X, b.Midpoint().X) })
	return ticks
}

func TestDetect_RulerTicks(t *testing.T) {
	tests := []struct {
		name string
		edge bool
	}{
		{"free standing ticks", false},
		{"ticks touching the ruler edge", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := testutil.NewScene(400, 120).Blank()
			testutil.DrawRuler(img, testutil.RulerConfig{
				Origin: image.Pt(40, 40), Spacing: 20, Count: 12, TickLen: 30, Thickness: 2, EdgeLine: tt.edge,
			})

			base := mempool.Outstanding()
			ticks := verticalTicks(Detect(img, DefaultConfig()))
			assert.Equal(t, base, mempool.Outstanding())

			require.Len(t, ticks, 12)
			for i, s := range ticks {
				assert.InDelta(t, 40.5+20*float64(i), s.Midpoint().X, 1.5, "tick %d", i)
			}
		})
	}
}

func TestFromMask_CombIsOneBlob(t *testing.T) {
	// ticks joined by an edge line fit as one horizontal blob
	m := mask.New(300, 60)
	defer m.Release()
	m.FillRect(image.Rect(10, 10, 290, 12), true)
	for x := 20; x < 280; x += 20 {
		m.FillRect(image.Rect(x, 12, x+2, 42), true)
	}
	assert.Empty(t, verticalTicks(FromMask(m, DefaultConfig())))
}

func TestMerge(t *testing.T) {
	left := Segment{A: geometry.Point{X: 39.5, Y: 40}, B: geometry.Point{X: 39.5, Y: 70}}
	right := Segment{A: geometry.Point{X: 41.5, Y: 70}, B: geometry.Point{X: 41.5, Y: 40}}
	next := Segment{A: geometry.Point{X: 60, Y: 40}, B: geometry.Point{X: 60, Y: 70}}
	across := Segment{A: geometry.Point{X: 25, Y: 55}, B: geometry.Point{X: 55, Y: 55}}

	out := Merge([]Segment{left, right, next, across}, 4)
	require.Len(t, out, 3)
	assert.InDelta(t, 40.5, out[0].Midpoint().X, 1e-9)
	assert.InDelta(t, 30, out[0].Length(), 1e-9)
	assert.Equal(t, next, out[1])
	assert.Equal(t, across, out[2])

	assert.Len(t, Merge([]Segment{left, right}, 0), 2)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero scale", func(c *Config) { c.Scale = 0 }},
		{"upscale", func(c *Config) { c.Scale = 2 }},
		{"angle tolerance", func(c *Config) { c.AngleTolerance = 0 }},
		{"density", func(c *Config) { c.Density = 1.5 }},
		{"bins", func(c *Config) { c.Bins = 0 }},
		{"merge distance", func(c *Config) { c.MergeDistance = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDetect_Empty(t *testing.T) {
	assert.Empty(t, Detect(nil, DefaultConfig()))
	assert.Empty(t, verticalTicks(Detect(testutil.NewScene(64, 64).Blank(), DefaultConfig())))
}
