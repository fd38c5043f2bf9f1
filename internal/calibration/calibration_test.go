package calibration

import (
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/fabricarea/internal/geometry"
	"github.com/MeKo-Tech/fabricarea/internal/lines"
	"github.com/MeKo-Tech/fabricarea/internal/testutil"
)

func TestController_InitialPlacement(t *testing.T) {
	c := NewController(1000, 800)
	r := c.Ruler()
	assert.Equal(t, geometry.Point{X: 750, Y: 160}, r.Position)
	assert.InDelta(t, 480, r.Length, 1e-9)
	assert.Equal(t, 90.0, r.Angle)
	assert.Equal(t, Idle, c.State())

	small := NewController(200, 50)
	assert.Equal(t, float64(MinRulerLength), small.Ruler().Length)
}

func TestRuler_Hit(t *testing.T) {
	r := Ruler{Position: geometry.Point{X: 100, Y: 100}, Length: 200, Angle: 0}
	tests := []struct {
		name string
		p    geometry.Point
		want bool
	}{
		{"on axis", geometry.Point{X: 100, Y: 200}, true},
		{"inside half width", geometry.Point{X: 119, Y: 150}, true},
		{"at half width", geometry.Point{X: 120, Y: 150}, false},
		{"start slack", geometry.Point{X: 100, Y: 90}, true},
		{"before start slack", geometry.Point{X: 100, Y: 89}, false},
		{"end slack", geometry.Point{X: 100, Y: 310}, true},
		{"past end slack", geometry.Point{X: 100, Y: 311}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Hit(tt.p))
		})
	}

	// Rotated by 90° the ruler runs towards negative x.
	r.Angle = 90
	assert.True(t, r.Hit(geometry.Point{X: 0, Y: 100}))
	assert.False(t, r.Hit(geometry.Point{X: 100, Y: 200}))
	end := r.End()
	assert.InDelta(t, -100, end.X, 1e-9)
	assert.InDelta(t, 100, end.Y, 1e-9)
}

func newTestController() *Controller {
	c := NewController(1000, 1000)
	c.SetPosition(geometry.Point{X: 100, Y: 100})
	c.SetAngle(0)
	c.SetLength(200)
	return c
}

func TestController_Drag(t *testing.T) {
	c := newTestController()

	c.Handle(Event{Kind: PointerDown, X: 105, Y: 150})
	require.Equal(t, Dragging, c.State())
	c.Handle(Event{Kind: PointerMove, X: 305, Y: 250})
	assert.Equal(t, geometry.Point{X: 300, Y: 200}, c.Ruler().Position)

	c.Handle(Event{Kind: PointerUp})
	assert.Equal(t, Idle, c.State())
	c.Handle(Event{Kind: PointerMove, X: 0, Y: 0})
	assert.Equal(t, geometry.Point{X: 300, Y: 200}, c.Ruler().Position)
}

func TestController_MissedGrabDoesNotDrag(t *testing.T) {
	c := newTestController()
	c.Handle(Event{Kind: PointerDown, X: 500, Y: 500})
	c.Handle(Event{Kind: PointerMove, X: 600, Y: 600})
	assert.Equal(t, Idle, c.State())
	assert.Equal(t, geometry.Point{X: 100, Y: 100}, c.Ruler().Position)
}

func TestController_TouchMatchesPointer(t *testing.T) {
	pointer := []Event{{Kind: PointerDown, X: 100, Y: 120}, {Kind: PointerMove, X: 140, Y: 160}, {Kind: PointerUp}}
	touch := []Event{{Kind: TouchStart, X: 100, Y: 120}, {Kind: TouchMove, X: 140, Y: 160}, {Kind: TouchEnd}}
	assert.Equal(t, newTestController().Replay(pointer), newTestController().Replay(touch))
}

func TestController_ViewportScaling(t *testing.T) {
	v := Viewport{Left: 10, Top: 20, DisplayW: 500, DisplayH: 400, BackingW: 1000, BackingH: 800}
	assert.Equal(t, geometry.Point{X: 100, Y: 100}, v.ToBacking(60, 70))
	assert.Equal(t, geometry.Point{X: 3, Y: 4}, Viewport{}.ToBacking(3, 4))

	c := newTestController()
	c.SetViewport(v)
	c.Handle(Event{Kind: PointerDown, X: 60, Y: 95}) // backing (100, 150)
	assert.Equal(t, Dragging, c.State())
}

func TestController_LengthClamp(t *testing.T) {
	c := NewController(800, 600)
	c.Handle(Event{Kind: SliderChanged, Value: 50})
	assert.Equal(t, 100.0, c.Ruler().Length)
	c.Handle(Event{Kind: SliderChanged, Value: 5000})
	assert.Equal(t, 600.0, c.Ruler().Length)
	c.Handle(Event{Kind: SliderChanged, Value: 300})
	assert.Equal(t, 300.0, c.Ruler().Length)
	assert.InDelta(t, 10, c.Confirm().PixelsPerCm, 1e-9)
}

func TestController_Rotation(t *testing.T) {
	c := NewController(800, 600)
	c.Handle(Event{Kind: Rotated, Value: -RotateStep})
	assert.Equal(t, 85.0, c.Ruler().Angle)
	c.Handle(Event{Kind: Snapped, Snap: Horizontal})
	assert.Equal(t, 0.0, c.Ruler().Angle)
	c.Handle(Event{Kind: Rotated, Value: -90})
	assert.Equal(t, 270.0, c.Ruler().Angle)
	c.Handle(Event{Kind: Snapped, Snap: Vertical})
	assert.Equal(t, 90.0, c.Ruler().Angle)

	c.SetAngle(-30)
	assert.Equal(t, 330.0, c.Ruler().Angle)
	c.SetAngle(725)
	assert.Equal(t, 5.0, c.Ruler().Angle)
}

func TestEventKind_Text(t *testing.T) {
	for k := PointerDown; k <= Snapped; k++ {
		b, err := k.MarshalText()
		require.NoError(t, err)
		var back EventKind
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, k, back)
	}
	_, err := ParseEventKind("wiggle")
	assert.Error(t, err)
}

type fakeLines struct {
	segs []lines.Segment
	err  error
}

func (f fakeLines) LineSegments(image.Image, lines.Config) ([]lines.Segment, error) {
	return f.segs, f.err
}

func vertical(x, length float64) lines.Segment {
	return lines.Segment{A: geometry.Point{X: x, Y: 10}, B: geometry.Point{X: x, Y: 10 + length}}
}

func ticksAt(xs ...float64) []lines.Segment {
	out := make([]lines.Segment, len(xs))
	for i, x := range xs {
		out[i] = vertical(x, 30)
	}
	return out
}

func TestTickDetector_RegularTicks(t *testing.T) {
	d := NewTickDetector(DefaultTickConfig(), nil)
	// Unsorted input, one horizontal and one too short segment.
	segs := append(ticksAt(160, 100, 140, 120, 200, 180),
		lines.Segment{A: geometry.Point{X: 0, Y: 50}, B: geometry.Point{X: 60, Y: 50}},
		vertical(110, 5),
	)
	res := d.FromSegments(segs)

	assert.Equal(t, []float64{100, 120, 140, 160, 180, 200}, res.Positions)
	assert.Len(t, res.Gaps, 5)
	assert.InDelta(t, 20, res.Mean, 1e-9)
	assert.InDelta(t, 20, res.Median, 1e-9)
	assert.InDelta(t, 0, res.StdDev, 1e-9)
	assert.InDelta(t, 19.8, res.PixelsPerCm, 1e-9)
	assert.InDelta(t, 1, res.Confidence, 1e-9)
	assert.False(t, res.LowConfidence)
	assert.NoError(t, res.Warning)
}

func TestTickDetector_GapBounds(t *testing.T) {
	res := NewTickDetector(DefaultTickConfig(), nil).FromSegments(ticksAt(100, 103, 123))
	assert.Equal(t, []float64{20}, res.Gaps)
	assert.InDelta(t, 0.2, res.Confidence, 1e-9)
	assert.True(t, res.LowConfidence)
	assert.Error(t, res.Warning)
}

func TestTickDetector_FallbackIsFlagged(t *testing.T) {
	d := NewTickDetector(DefaultTickConfig(), fakeLines{})
	res, err := d.Detect(nil)
	require.NoError(t, err)
	assert.Equal(t, 16.0, res.PixelsPerCm)
	assert.True(t, res.LowConfidence)
	assert.Zero(t, res.Confidence)
	assert.ErrorIs(t, res.Warning, ErrNoTicks)

	s := res.Scale()
	assert.Equal(t, AutomaticTickDetection, s.Method)
	assert.True(t, s.LowConfidence)
	assert.NoError(t, s.Validate())
}

func TestTickDetector_RequireConfident(t *testing.T) {
	cfg := DefaultTickConfig()
	cfg.RequireConfident = true
	_, err := NewTickDetector(cfg, fakeLines{}).Detect(nil)
	assert.ErrorIs(t, err, ErrCalibrationInvalid)
	assert.ErrorIs(t, err, ErrNoTicks)

	_, err = NewTickDetector(cfg, fakeLines{err: errors.New("backend gone")}).Detect(nil)
	assert.ErrorContains(t, err, "backend gone")
}

func TestTickDetector_SyntheticRuler(t *testing.T) {
	for _, edge := range []bool{false, true} {
		t.Run(fmt.Sprintf("edge line %v", edge), func(t *testing.T) {
			img := testutil.NewScene(400, 120).Blank()
			testutil.DrawRuler(img, testutil.RulerConfig{
				Origin: image.Pt(40, 40), Spacing: 20, Count: 12, TickLen: 30, Thickness: 2, EdgeLine: edge,
			})
			res, err := NewTickDetector(DefaultTickConfig(), nil).Detect(img)
			require.NoError(t, err)
			assert.Len(t, res.Positions, 12)
			assert.InDelta(t, 19.8, res.PixelsPerCm, 0.2)
			assert.False(t, res.LowConfidence)
		})
	}
}

func TestTickConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultTickConfig().Validate())
	bad := DefaultTickConfig()
	bad.CorrectionFactor = 0
	assert.Error(t, bad.Validate())
	bad = DefaultTickConfig()
	bad.MinGap = 200
	assert.Error(t, bad.Validate())
	bad = DefaultTickConfig()
	bad.Lines.Bins = 0
	assert.ErrorContains(t, bad.Validate(), "line detection")
}

func TestEngine(t *testing.T) {
	c := newTestController()
	c.SetLength(300)
	s, err := NewManualEngine(c).Calibrate(nil)
	require.NoError(t, err)
	assert.Equal(t, Manual, s.Method)
	assert.InDelta(t, 10, s.PixelsPerCm, 1e-9)

	auto := NewAutomaticEngine(NewTickDetector(DefaultTickConfig(), fakeLines{segs: ticksAt(0, 20, 40, 60, 80, 100)}))
	s, err = auto.Calibrate(nil)
	require.NoError(t, err)
	assert.Equal(t, AutomaticTickDetection, s.Method)
	assert.InDelta(t, 19.8, s.PixelsPerCm, 1e-9)

	assert.ErrorIs(t, Scale{PixelsPerCm: 0}.Validate(), ErrCalibrationInvalid)
	assert.ErrorIs(t, Scale{PixelsPerCm: -3}.Validate(), ErrCalibrationInvalid)
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("auto")
	require.NoError(t, err)
	assert.Equal(t, AutomaticTickDetection, m)
	m, err = ParseMethod("Manual")
	require.NoError(t, err)
	assert.Equal(t, Manual, m)
	_, err = ParseMethod("laser")
	assert.Error(t, err)
}
