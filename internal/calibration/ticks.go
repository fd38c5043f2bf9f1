package calibration

import (
	"fmt"
	"image"
	"log/slog"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/MeKo-Tech/fabricarea/internal/lines"
)

// LineSource finds line segments in an image. The vision backends
// implement it.
type LineSource interface {
	LineSegments(img image.Image, cfg lines.Config) ([]lines.Segment, error)
}

// NativeLines implements LineSource with package lines.
type NativeLines struct{}

// LineSegments implements LineSource.
func (NativeLines) LineSegments(img image.Image, cfg lines.Config) ([]lines.Segment, error) {
	return lines.Detect(img, cfg), nil
}

// TickConfig bounds what counts as a tick mark and how the scale is
// derived from tick spacing.
type TickConfig struct {
	MaxAngle  float64 `mapstructure:"max_angle" yaml:"max_angle" json:"max_angle"`
	MinLength float64 `mapstructure:"min_length" yaml:"min_length" json:"min_length"`
	MaxLength float64 `mapstructure:"max_length" yaml:"max_length" json:"max_length"`
	MinGap    float64 `mapstructure:"min_gap" yaml:"min_gap" json:"min_gap"`
	MaxGap    float64 `mapstructure:"max_gap" yaml:"max_gap" json:"max_gap"`
	// CorrectionFactor and FallbackScale were fit to one camera; treat
	// them as per-deployment settings.
	CorrectionFactor float64 `mapstructure:"correction_factor" yaml:"correction_factor" json:"correction_factor"`
	FallbackScale    float64 `mapstructure:"fallback_scale" yaml:"fallback_scale" json:"fallback_scale"`
	// MinGaps is the gap count needed for full confidence.
	MinGaps int `mapstructure:"min_gaps" yaml:"min_gaps" json:"min_gaps"`
	// MinConfidence marks results below it as low confidence.
	MinConfidence    float64      `mapstructure:"min_confidence" yaml:"min_confidence" json:"min_confidence"`
	RequireConfident bool         `mapstructure:"require_confident" yaml:"require_confident" json:"require_confident"`
	Lines            lines.Config `mapstructure:"lines" yaml:"lines" json:"lines"`
}

// DefaultTickConfig returns the near-vertical tick bounds.
func DefaultTickConfig() TickConfig {
	return TickConfig{
		MaxAngle:         15,
		MinLength:        15,
		MaxLength:        100,
		MinGap:           5,
		MaxGap:           100,
		CorrectionFactor: 0.99,
		FallbackScale:    16,
		MinGaps:          5,
		MinConfidence:    0.5,
		Lines:            lines.DefaultConfig(),
	}
}

// Validate checks the bounds are ordered and the constants positive.
func (c TickConfig) Validate() error {
	switch {
	case c.MaxAngle <= 0 || c.MaxAngle > 90:
		return fmt.Errorf("tick max angle %.1f outside (0, 90]", c.MaxAngle)
	case c.MinLength <= 0 || c.MinLength > c.MaxLength:
		return fmt.Errorf("tick length bounds [%.1f, %.1f] invalid", c.MinLength, c.MaxLength)
	case c.MinGap <= 0 || c.MinGap > c.MaxGap:
		return fmt.Errorf("tick gap bounds [%.1f, %.1f] invalid", c.MinGap, c.MaxGap)
	case c.CorrectionFactor <= 0:
		return fmt.Errorf("correction factor must be positive, got %f", c.CorrectionFactor)
	case c.FallbackScale <= 0:
		return fmt.Errorf("fallback scale must be positive, got %f", c.FallbackScale)
	case c.MinConfidence < 0 || c.MinConfidence > 1:
		return fmt.Errorf("min confidence %.2f outside [0, 1]", c.MinConfidence)
	}
	if err := c.Lines.Validate(); err != nil {
		return fmt.Errorf("line detection: %w", err)
	}
	return nil
}

// TickResult is the outcome of automatic tick calibration.
type TickResult struct {
	Positions     []float64 `json:"positions" yaml:"positions"`
	Gaps          []float64 `json:"gaps" yaml:"gaps"`
	Mean          float64   `json:"mean_gap" yaml:"mean_gap"`
	StdDev        float64   `json:"stddev_gap" yaml:"stddev_gap"`
	Median        float64   `json:"median_gap" yaml:"median_gap"`
	RawScale      float64   `json:"raw_scale" yaml:"raw_scale"`
	PixelsPerCm   float64   `json:"pixels_per_cm" yaml:"pixels_per_cm"`
	Confidence    float64   `json:"confidence" yaml:"confidence"`
	LowConfidence bool      `json:"low_confidence" yaml:"low_confidence"`
	Warning       error     `json:"-" yaml:"-"`
}

// Scale converts the result into a calibration scale.
func (r TickResult) Scale() Scale {
	return Scale{
		PixelsPerCm:   r.PixelsPerCm,
		Method:        AutomaticTickDetection,
		Confidence:    r.Confidence,
		LowConfidence: r.LowConfidence,
		Warning:       r.Warning,
	}
}

// TickDetector derives the scale from the spacing of ruler ticks.
type TickDetector struct {
	cfg    TickConfig
	source LineSource
	logger *slog.Logger
}

// NewTickDetector creates a detector. A nil source uses NativeLines.
func NewTickDetector(cfg TickConfig, source LineSource) *TickDetector {
	if source == nil {
		source = NativeLines{}
	}
	return &TickDetector{cfg: cfg, source: source, logger: slog.Default()}
}

// WithLogger sets the logger used for tick diagnostics.
func (d *TickDetector) WithLogger(l *slog.Logger) *TickDetector {
	if l != nil {
		d.logger = l
	}
	return d
}

// Detect finds tick marks in img and returns the derived scale. Without
// plausible ticks the fallback scale is returned flagged as low
// confidence, unless RequireConfident is set.
func (d *TickDetector) Detect(img image.Image) (TickResult, error) {
	segs, err := d.source.LineSegments(img, d.cfg.Lines)
	if err != nil {
		return TickResult{}, fmt.Errorf("line segments: %w", err)
	}
	res := d.FromSegments(segs)
	d.logger.Debug("tick calibration", "stage", "calibration",
		"segments", len(segs), "ticks", len(res.Positions), "gaps", len(res.Gaps),
		"scale", res.PixelsPerCm, "confidence", res.Confidence)
	if res.LowConfidence && d.cfg.RequireConfident {
		return res, fmt.Errorf("%w: %w", ErrCalibrationInvalid, res.Warning)
	}
	return res, nil
}

// FromSegments computes the calibration from already detected segments.
func (d *TickDetector) FromSegments(segs []lines.Segment) TickResult {
	cfg := d.cfg
	var res TickResult
	for _, s := range segs {
		l := s.Length()
		if s.AngleFromVertical() <= cfg.MaxAngle && l >= cfg.MinLength && l <= cfg.MaxLength {
			res.Positions = append(res.Positions, s.Midpoint().X)
		}
	}
	slices.Sort(res.Positions)

	for i := 1; i < len(res.Positions); i++ {
		g := res.Positions[i] - res.Positions[i-1]
		if g >= cfg.MinGap && g <= cfg.MaxGap {
			res.Gaps = append(res.Gaps, g)
		}
	}

	if len(res.Gaps) == 0 {
		res.PixelsPerCm = cfg.FallbackScale
		res.LowConfidence = true
		res.Warning = fmt.Errorf("%w: using fallback %.2f px/cm", ErrNoTicks, cfg.FallbackScale)
		return res
	}

	res.Mean, res.StdDev = stat.MeanStdDev(res.Gaps, nil)
	if len(res.Gaps) < 2 {
		res.StdDev = 0
	}
	sorted := slices.Clone(res.Gaps)
	slices.Sort(sorted)
	res.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)

	res.RawScale = res.Mean
	res.PixelsPerCm = res.RawScale * cfg.CorrectionFactor

	cv := res.StdDev / res.Mean
	coverage := 1.0
	if cfg.MinGaps > 0 {
		coverage = math.Min(1, float64(len(res.Gaps))/float64(cfg.MinGaps))
	}
	res.Confidence = coverage / (1 + cv)
	if res.Confidence < cfg.MinConfidence {
		res.LowConfidence = true
		res.Warning = fmt.Errorf("tick spacing confidence %.2f below %.2f", res.Confidence, cfg.MinConfidence)
	}
	return res
}
