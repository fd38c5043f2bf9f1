package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/fabricarea/internal/area"
	"github.com/MeKo-Tech/fabricarea/internal/calibration"
	"github.com/MeKo-Tech/fabricarea/internal/contour"
	"github.com/MeKo-Tech/fabricarea/internal/imageio"
	"github.com/MeKo-Tech/fabricarea/internal/segment"
	"github.com/MeKo-Tech/fabricarea/internal/vision"
)

// Stage names a step of the scan.
type Stage string

const (
	StageCalibration  Stage = "calibration"
	StageSegmentation Stage = "segmentation"
	StageContour      Stage = "contour"
	StageArea         Stage = "area"
)

// ScanError is a failed scan stage.
type ScanError struct {
	Stage Stage
	Err   error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan failed at %s: %v", e.Stage, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// Message returns a short explanation suitable for end users.
func (e *ScanError) Message() string {
	switch {
	case errors.Is(e.Err, calibration.ErrCalibrationInvalid):
		return "Calibration is invalid. Please calibrate again."
	case errors.Is(e.Err, segment.ErrSegmentationEmpty):
		return "No pattern-coloured region found. Check the lighting and the background."
	case errors.Is(e.Err, contour.ErrNoCandidateContour):
		return "Pattern not found. Make sure the whole piece is visible and clear of the image edges."
	case errors.Is(e.Err, area.ErrDegeneratePolygon):
		return "The detected outline is too small to measure."
	default:
		return "Scan failed. Please try again."
	}
}

// Measurement is the outcome of one successful scan.
type Measurement struct {
	area.Result
	Scale calibration.Scale `json:"scale" yaml:"scale"`
	// Fallback is set when the contour came from the edge map.
	Fallback   bool          `json:"fallback" yaml:"fallback"`
	UsedHull   bool          `json:"used_hull" yaml:"used_hull"`
	Candidates int           `json:"candidates" yaml:"candidates"`
	Resized    float64       `json:"resize_factor" yaml:"resize_factor"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
}

// Scanner runs the measurement stages in order. It holds no per-scan
// state, so one Scanner may serve concurrent scans of different images.
type Scanner struct {
	cfg     Config
	backend vision.Backend
	seg     *segment.Segmenter
	ext     *contour.Extractor
	ticks   *calibration.TickDetector
	logger  *slog.Logger
}

// NewScanner validates cfg and wires the stages to backend. A nil backend
// uses the native one.
func NewScanner(cfg Config, backend vision.Backend) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if backend == nil {
		var err error
		if backend, err = vision.Native(context.Background()); err != nil {
			return nil, err
		}
	}
	s := &Scanner{
		cfg:     cfg,
		backend: backend,
		seg:     segment.New(cfg.Segment, backend),
		ext:     contour.NewExtractor(cfg.Filter, cfg.Edges, backend),
		ticks:   calibration.NewTickDetector(cfg.Ticks, backend),
	}
	return s.WithLogger(slog.Default()), nil
}

// WithLogger sets the logger for the scanner and its stages.
func (s *Scanner) WithLogger(l *slog.Logger) *Scanner {
	if l == nil {
		return s
	}
	s.logger = l
	s.seg.WithLogger(l)
	s.ext.WithLogger(l)
	s.ticks.WithLogger(l)
	return s
}

// Config returns the scanner configuration.
func (s *Scanner) Config() Config { return s.cfg }

// Backend returns the vision backend in use.
func (s *Scanner) Backend() vision.Backend { return s.backend }

// DetectTicks runs automatic calibration on img.
func (s *Scanner) DetectTicks(img image.Image) (calibration.TickResult, error) {
	return s.ticks.Detect(img)
}

// Scan measures the pattern in img at the given scale. Stage failures are
// returned as *ScanError. Every buffer the scan allocates is released
// before it returns.
func (s *Scanner) Scan(img image.Image, scale calibration.Scale) (*Measurement, error) {
	start := time.Now()
	if err := scale.Validate(); err != nil {
		return nil, &ScanError{Stage: StageCalibration, Err: err}
	}
	if img == nil || img.Bounds().Empty() {
		return nil, &ScanError{Stage: StageSegmentation, Err: segment.ErrSegmentationEmpty}
	}

	work, factor := imageio.Fit(img, s.cfg.MaxImageSide)
	workScale := scale.PixelsPerCm / factor

	m, err := s.seg.Segment(work)
	emptyMask := errors.Is(err, segment.ErrSegmentationEmpty)
	if err != nil && !emptyMask {
		return nil, &ScanError{Stage: StageSegmentation, Err: err}
	}

	// An empty mask still gets the edge fallback.
	sel, err := s.ext.Extract(work, m)
	m.Release()
	if err != nil {
		if emptyMask && errors.Is(err, contour.ErrNoCandidateContour) {
			return nil, &ScanError{Stage: StageSegmentation, Err: segment.ErrSegmentationEmpty}
		}
		return nil, &ScanError{Stage: StageContour, Err: err}
	}

	simplified := s.cfg.Simplify.Simplify(sel.Contour.Points, sel.Contour.Perimeter)
	res, err := area.Calculate(simplified.Points, workScale)
	if err != nil {
		return nil, &ScanError{Stage: StageArea, Err: err}
	}

	out := &Measurement{
		Result:     res.Rescaled(factor),
		Scale:      scale,
		Fallback:   sel.Fallback,
		UsedHull:   simplified.UsedHull,
		Candidates: sel.Candidates,
		Resized:    factor,
		Duration:   time.Since(start),
	}
	s.logger.Info("scan complete", "stage", "scan",
		"scale", scale.PixelsPerCm, "candidates", sel.Candidates, "fallback", sel.Fallback,
		"vertices", out.VertexCount, "area_cm2", out.AreaCm2,
		"duration_ms", out.Duration.Milliseconds())
	return out, nil
}
