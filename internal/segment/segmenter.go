package segment

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/MeKo-Tech/fabricarea/internal/mask"
)

// ErrSegmentationEmpty is returned when no pixel falls inside the band
// after morphology.
var ErrSegmentationEmpty = errors.New("segmentation produced an empty mask")

// Ops are the pixel operations a Segmenter delegates to. The vision
// backends implement them; NativeOps is the pure Go version.
type Ops interface {
	Threshold(img image.Image, band Band) (*mask.Mask, error)
	Morph(m *mask.Mask, cfg mask.MorphConfig) (*mask.Mask, error)
}

// NativeOps implements Ops with this package and package mask.
type NativeOps struct{}

// Threshold implements Ops.
func (NativeOps) Threshold(img image.Image, band Band) (*mask.Mask, error) {
	return Threshold(img, band), nil
}

// Morph implements Ops.
func (NativeOps) Morph(m *mask.Mask, cfg mask.MorphConfig) (*mask.Mask, error) {
	return mask.Apply(m, cfg), nil
}

// Config holds the segmentation settings.
type Config struct {
	Band  Band
	Open  mask.MorphConfig
	Close mask.MorphConfig
}

// DefaultConfig returns the grey/beige band with a 3x3 opening and a
// two-iteration 5x5 closing.
func DefaultConfig() Config {
	return Config{
		Band:  DefaultBand(),
		Open:  mask.MorphConfig{Operation: mask.OpOpen, KernelSize: 3, Iterations: 1},
		Close: mask.MorphConfig{Operation: mask.OpClose, KernelSize: 5, Iterations: 2},
	}
}

// Validate checks the band and kernel sizes.
func (c Config) Validate() error {
	if err := c.Band.Validate(); err != nil {
		return err
	}
	for _, mc := range []mask.MorphConfig{c.Open, c.Close} {
		if mc.KernelSize < 0 || mc.Iterations < 0 {
			return fmt.Errorf("invalid %s morphology: kernel %d iterations %d", mc.Operation, mc.KernelSize, mc.Iterations)
		}
	}
	return nil
}

// Segmenter thresholds an image into a cleaned foreground mask.
type Segmenter struct {
	cfg    Config
	ops    Ops
	logger *slog.Logger
}

// New creates a Segmenter. A nil ops uses NativeOps.
func New(cfg Config, ops Ops) *Segmenter {
	if ops == nil {
		ops = NativeOps{}
	}
	return &Segmenter{cfg: cfg, ops: ops, logger: slog.Default()}
}

// WithLogger sets the logger used for stage diagnostics.
func (s *Segmenter) WithLogger(l *slog.Logger) *Segmenter {
	if l != nil {
		s.logger = l
	}
	return s
}

// Config returns the segmenter configuration.
func (s *Segmenter) Config() Config { return s.cfg }

// Segment returns the cleaned mask. The caller owns the returned mask and
// must Release it. On error no mask is left checked out.
func (s *Segmenter) Segment(img image.Image) (*mask.Mask, error) {
	raw, err := s.ops.Threshold(img, s.cfg.Band)
	if err != nil {
		return nil, fmt.Errorf("threshold: %w", err)
	}
	opened, err := s.ops.Morph(raw, s.cfg.Open)
	raw.Release()
	if err != nil {
		return nil, fmt.Errorf("opening: %w", err)
	}
	closed, err := s.ops.Morph(opened, s.cfg.Close)
	opened.Release()
	if err != nil {
		return nil, fmt.Errorf("closing: %w", err)
	}

	fg := closed.Count()
	s.logger.Debug("segmentation complete", "stage", "segment",
		"width", closed.Width, "height", closed.Height, "foreground_px", fg)
	if fg == 0 {
		closed.Release()
		return nil, ErrSegmentationEmpty
	}
	return closed, nil
}
