// Package pipeline runs a measurement scan and tracks the per-photo
// session from upload through calibration to result.
package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/fabricarea/internal/calibration"
	"github.com/MeKo-Tech/fabricarea/internal/contour"
	"github.com/MeKo-Tech/fabricarea/internal/geometry"
	"github.com/MeKo-Tech/fabricarea/internal/segment"
	"github.com/MeKo-Tech/fabricarea/internal/vision"
)

// Config holds the settings of every scan stage.
type Config struct {
	Segment  segment.Config
	Edges    segment.EdgeConfig
	Filter   contour.Filter
	Simplify geometry.Simplifier
	Ticks    calibration.TickConfig
	// MaxImageSide downscales larger photos before processing; 0 keeps
	// the original size. Results are reported in original pixels.
	MaxImageSide int
}

// DefaultConfig returns the default stage settings.
func DefaultConfig() Config {
	return Config{
		Segment:  segment.DefaultConfig(),
		Edges:    segment.DefaultEdgeConfig(),
		Filter:   contour.DefaultFilter(),
		Simplify: geometry.NewSimplifier(),
		Ticks:    calibration.DefaultTickConfig(),
	}
}

// Validate checks every stage configuration.
func (c Config) Validate() error {
	if err := c.Segment.Validate(); err != nil {
		return fmt.Errorf("segment: %w", err)
	}
	if err := c.Filter.Validate(); err != nil {
		return fmt.Errorf("contour: %w", err)
	}
	if err := c.Ticks.Validate(); err != nil {
		return fmt.Errorf("calibration: %w", err)
	}
	if c.Simplify.EpsilonFactor < 0 {
		return fmt.Errorf("simplify: epsilon factor must be non-negative, got %f", c.Simplify.EpsilonFactor)
	}
	if c.MaxImageSide < 0 {
		return fmt.Errorf("max image side must be non-negative, got %d", c.MaxImageSide)
	}
	return nil
}

// Builder constructs a Scanner with fluent configuration.
type Builder struct {
	cfg     Config
	backend vision.Backend
	logger  *slog.Logger
	err     error
}

// NewBuilder creates a builder with defaults and the native backend.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithBand sets the segmentation colour band.
func (b *Builder) WithBand(band segment.Band) *Builder {
	b.cfg.Segment.Band = band
	return b
}

// WithBandPreset selects a named colour band.
func (b *Builder) WithBandPreset(name string) *Builder {
	band, err := segment.BandPreset(name)
	if err != nil {
		b.err = err
		return b
	}
	b.cfg.Segment.Band = band
	return b
}

// WithAreaFractions sets the accepted candidate area as fractions of the
// image area.
func (b *Builder) WithAreaFractions(minFrac, maxFrac float64) *Builder {
	if minFrac > 0 {
		b.cfg.Filter.MinAreaFraction = minFrac
	}
	if maxFrac > 0 {
		b.cfg.Filter.MaxAreaFraction = maxFrac
	}
	return b
}

// WithBorderMargin sets the distance candidates must keep from the edges.
func (b *Builder) WithBorderMargin(px int) *Builder {
	if px >= 0 {
		b.cfg.Filter.BorderMargin = px
	}
	return b
}

// WithMaxAspectRatio sets the aspect ratio limit for candidates.
func (b *Builder) WithMaxAspectRatio(r float64) *Builder {
	if r > 0 {
		b.cfg.Filter.MaxAspectRatio = r
	}
	return b
}

// WithTickCalibration sets the correction factor and fallback scale of
// automatic calibration.
func (b *Builder) WithTickCalibration(correction, fallback float64, requireConfident bool) *Builder {
	if correction > 0 {
		b.cfg.Ticks.CorrectionFactor = correction
	}
	if fallback > 0 {
		b.cfg.Ticks.FallbackScale = fallback
	}
	b.cfg.Ticks.RequireConfident = requireConfident
	return b
}

// WithMaxImageSide enables downscaling of large photos.
func (b *Builder) WithMaxImageSide(px int) *Builder {
	if px >= 0 {
		b.cfg.MaxImageSide = px
	}
	return b
}

// WithBackend sets the vision backend. Nil keeps the native backend.
func (b *Builder) WithBackend(be vision.Backend) *Builder {
	b.backend = be
	return b
}

// WithLogger sets the logger passed to every stage.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// Config returns the configuration built so far.
func (b *Builder) Config() Config { return b.cfg }

// Build validates the configuration and creates the Scanner.
func (b *Builder) Build() (*Scanner, error) {
	if b.err != nil {
		return nil, b.err
	}
	s, err := NewScanner(b.cfg, b.backend)
	if err != nil {
		return nil, err
	}
	return s.WithLogger(b.logger), nil
}
