package pipeline

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/fabricarea/internal/area"
	"github.com/MeKo-Tech/fabricarea/internal/calibration"
	"github.com/MeKo-Tech/fabricarea/internal/contour"
	"github.com/MeKo-Tech/fabricarea/internal/mempool"
	"github.com/MeKo-Tech/fabricarea/internal/segment"
	"github.com/MeKo-Tech/fabricarea/internal/testutil"
)

// squareScene is a 1000×1000 photo with a 200×200 px pattern piece in the
// middle. At 10 px/cm the piece measures 20×20 cm.
func squareScene() image.Image {
	return testutil.NewScene(1000, 1000).Rects(image.Rect(400, 400, 600, 600))
}

func newTestScanner(t *testing.T) *Scanner {
	t.Helper()
	s, err := NewBuilder().WithAreaFractions(0.02, 0).Build()
	require.NoError(t, err)
	return s
}

func TestScan_EndToEnd(t *testing.T) {
	s := newTestScanner(t)
	base := mempool.Outstanding()

	scale := calibration.Scale{PixelsPerCm: 300.0 / calibration.RulerUnits, Method: calibration.Manual, Confidence: 1}
	m, err := s.Scan(squareScene(), scale)
	require.NoError(t, err)

	assert.InDelta(t, 10.0, m.PixelsPerCm, 1e-9)
	assert.InDelta(t, 40000.0, m.AreaPx, 1e-6)
	assert.InDelta(t, 400.0, m.AreaCm2, 1e-6)
	assert.InDelta(t, 0.04, m.AreaM2, 1e-9)
	assert.Equal(t, 4, m.VertexCount)
	assert.Len(t, m.Polygon, 4)
	assert.False(t, m.Fallback)
	assert.False(t, m.UsedHull)
	assert.Equal(t, 1, m.Candidates)
	assert.Equal(t, 1.0, m.Resized)
	assert.Equal(t, base, mempool.Outstanding())
}

func TestScan_DefaultAreaFractionRejectsSmallPiece(t *testing.T) {
	s, err := NewScanner(DefaultConfig(), nil)
	require.NoError(t, err)
	_, err = s.Scan(squareScene(), calibration.Scale{PixelsPerCm: 10})

	var se *ScanError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageContour, se.Stage)
	assert.ErrorIs(t, err, contour.ErrNoCandidateContour)
}

func TestScan_InvalidScale(t *testing.T) {
	s := newTestScanner(t)
	for _, v := range []float64{0, -3} {
		_, err := s.Scan(squareScene(), calibration.Scale{PixelsPerCm: v})
		var se *ScanError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, StageCalibration, se.Stage)
		assert.ErrorIs(t, err, calibration.ErrCalibrationInvalid)
	}
}

func TestScan_EmptySegmentation(t *testing.T) {
	s := newTestScanner(t)
	base := mempool.Outstanding()
	_, err := s.Scan(testutil.NewScene(300, 300).Blank(), calibration.Scale{PixelsPerCm: 10})

	var se *ScanError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageSegmentation, se.Stage)
	assert.ErrorIs(t, err, segment.ErrSegmentationEmpty)
	assert.Equal(t, base, mempool.Outstanding())
}

func TestScan_TouchingBorderNotFound(t *testing.T) {
	s := newTestScanner(t)
	img := testutil.NewScene(400, 400).Rects(image.Rect(0, 100, 150, 250))
	_, err := s.Scan(img, calibration.Scale{PixelsPerCm: 10})
	assert.ErrorIs(t, err, contour.ErrNoCandidateContour)
}

func TestScan_Downscaled(t *testing.T) {
	s, err := NewBuilder().WithAreaFractions(0.02, 0).WithMaxImageSide(500).Build()
	require.NoError(t, err)

	m, err := s.Scan(squareScene(), calibration.Scale{PixelsPerCm: 10})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, m.Resized, 1e-9)
	assert.InDelta(t, 10.0, m.PixelsPerCm, 1e-9)
	assert.InEpsilon(t, 400.0, m.AreaCm2, 0.05)
	// polygon is reported in original pixels
	for _, p := range m.Polygon {
		assert.InDelta(t, 500, p.X, 110)
		assert.InDelta(t, 500, p.Y, 110)
	}
}

func TestScanError_Message(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{calibration.ErrCalibrationInvalid, "calibrate again"},
		{segment.ErrSegmentationEmpty, "lighting"},
		{contour.ErrNoCandidateContour, "image edges"},
		{area.ErrDegeneratePolygon, "too small"},
		{errors.New("boom"), "try again"},
	}
	for _, tt := range tests {
		se := &ScanError{Stage: StageArea, Err: tt.err}
		assert.Contains(t, se.Message(), tt.want)
		assert.ErrorIs(t, se, tt.err)
		assert.Contains(t, se.Error(), "area")
	}
}

func TestBuilder(t *testing.T) {
	b := NewBuilder().
		WithAreaFractions(0.1, 0.8).
		WithBorderMargin(4).
		WithMaxAspectRatio(8).
		WithTickCalibration(0.98, 12, true).
		WithMaxImageSide(2048)
	cfg := b.Config()
	assert.Equal(t, 0.1, cfg.Filter.MinAreaFraction)
	assert.Equal(t, 0.8, cfg.Filter.MaxAreaFraction)
	assert.Equal(t, 4, cfg.Filter.BorderMargin)
	assert.Equal(t, 8.0, cfg.Filter.MaxAspectRatio)
	assert.Equal(t, 0.98, cfg.Ticks.CorrectionFactor)
	assert.Equal(t, 12.0, cfg.Ticks.FallbackScale)
	assert.True(t, cfg.Ticks.RequireConfident)
	assert.Equal(t, 2048, cfg.MaxImageSide)

	s, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, "native", s.Backend().Name())

	_, err = NewBuilder().WithBandPreset("neon").Build()
	assert.Error(t, err)
	_, err = NewBuilder().WithAreaFractions(0, 0.5).Build()
	assert.Error(t, err, "max area fraction below 0.70")
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	cfg := DefaultConfig()
	cfg.MaxImageSide = -1
	assert.Error(t, cfg.Validate())
	cfg = DefaultConfig()
	cfg.Simplify.EpsilonFactor = -0.1
	assert.Error(t, cfg.Validate())
}

func TestScanner_DetectTicks(t *testing.T) {
	img := rulerScene()
	res, err := newTestScanner(t).DetectTicks(img)
	require.NoError(t, err)
	assert.InDelta(t, 19.8, res.PixelsPerCm, 0.2)
	assert.False(t, res.LowConfidence)
}

func rulerScene() *image.NRGBA {
	img := testutil.NewScene(400, 120).Blank()
	testutil.DrawRuler(img, testutil.RulerConfig{
		Origin: image.Pt(40, 40), Spacing: 20, Count: 12, TickLen: 30, Thickness: 2,
	})
	return img
}
