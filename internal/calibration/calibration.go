// Package calibration establishes the pixels-per-centimetre scale, either
// from a virtual ruler placed by the user or from tick marks on a physical
// ruler in the photo.
package calibration

import (
	"errors"
	"fmt"
	"image"
	"strings"
)

var (
	// ErrCalibrationInvalid reports a scale that must not be used for
	// measurement.
	ErrCalibrationInvalid = errors.New("calibration invalid")
	// ErrNoTicks reports that no plausible tick spacing was found.
	ErrNoTicks = errors.New("no ruler ticks detected")
)

// Method selects the calibration strategy.
type Method int

const (
	Manual Method = iota
	AutomaticTickDetection
)

// String returns the config name of m.
func (m Method) String() string {
	switch m {
	case Manual:
		return "manual"
	case AutomaticTickDetection:
		return "auto"
	default:
		return fmt.Sprintf("method(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(b []byte) error {
	v, err := ParseMethod(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseMethod converts a config name to a Method.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "manual", "ruler":
		return Manual, nil
	case "auto", "automatic", "ticks":
		return AutomaticTickDetection, nil
	default:
		return Manual, fmt.Errorf("unknown calibration method %q", s)
	}
}

// Scale is a confirmed calibration.
type Scale struct {
	PixelsPerCm   float64 `json:"pixels_per_cm" yaml:"pixels_per_cm"`
	Method        Method  `json:"method" yaml:"method"`
	Confidence    float64 `json:"confidence" yaml:"confidence"`
	LowConfidence bool    `json:"low_confidence" yaml:"low_confidence"`
	// Warning explains a low-confidence result. It is never fatal.
	Warning error `json:"-" yaml:"-"`
}

// Validate rejects non-positive scales.
func (s Scale) Validate() error {
	if !(s.PixelsPerCm > 0) {
		return fmt.Errorf("%w: scale %.4f px/cm", ErrCalibrationInvalid, s.PixelsPerCm)
	}
	return nil
}

// Engine produces a Scale with one of the two strategies.
type Engine struct {
	method Method
	ruler  *Controller
	ticks  *TickDetector
}

// NewManualEngine calibrates from the ruler held by c.
func NewManualEngine(c *Controller) *Engine {
	return &Engine{method: Manual, ruler: c}
}

// NewAutomaticEngine calibrates by detecting ruler ticks with d.
func NewAutomaticEngine(d *TickDetector) *Engine {
	return &Engine{method: AutomaticTickDetection, ticks: d}
}

// Method returns the strategy in use.
func (e *Engine) Method() Method { return e.method }

// Calibrate returns the scale for img. The manual strategy ignores img.
func (e *Engine) Calibrate(img image.Image) (Scale, error) {
	switch e.method {
	case Manual:
		if e.ruler == nil {
			return Scale{}, fmt.Errorf("%w: no ruler", ErrCalibrationInvalid)
		}
		return e.ruler.Confirm(), nil
	case AutomaticTickDetection:
		if e.ticks == nil {
			return Scale{}, fmt.Errorf("%w: no tick detector", ErrCalibrationInvalid)
		}
		res, err := e.ticks.Detect(img)
		if err != nil {
			return Scale{}, err
		}
		return res.Scale(), nil
	default:
		return Scale{}, fmt.Errorf("%w: unknown method %s", ErrCalibrationInvalid, e.method)
	}
}
