package pipeline

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/MeKo-Tech/fabricarea/internal/calibration"
)

// Step is the position of a session in the measurement flow.
type Step int

const (
	StepUpload Step = iota
	StepCalibrate
	StepScan
	StepResult
)

func (s Step) String() string {
	switch s {
	case StepUpload:
		return "upload"
	case StepCalibrate:
		return "calibrate"
	case StepScan:
		return "scan"
	case StepResult:
		return "result"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// MarshalText encodes the step by name.
func (s Step) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ScanState tracks the last scan of a session.
type ScanState int

const (
	ScanIdle ScanState = iota
	Scanning
	ScanSucceeded
	ScanFailed
)

func (s ScanState) String() string {
	switch s {
	case Scanning:
		return "scanning"
	case ScanSucceeded:
		return "result"
	case ScanFailed:
		return "failed"
	default:
		return "idle"
	}
}

// MarshalText encodes the scan state by name.
func (s ScanState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

var (
	// ErrBusy is returned when a scan is already running in the session.
	ErrBusy = errors.New("scan already in progress")
	// ErrWrongStep is returned for an operation the current step does not allow.
	ErrWrongStep = errors.New("operation not allowed in current step")
	// ErrNoImage is returned when no photo has been loaded.
	ErrNoImage = errors.New("no image loaded")
)

// State is a point-in-time copy of a session.
type State struct {
	Step      Step               `json:"step"`
	ScanState ScanState          `json:"scan_state"`
	Busy      bool               `json:"busy"`
	Width     int                `json:"width,omitempty"`
	Height    int                `json:"height,omitempty"`
	Ruler     *calibration.Ruler `json:"ruler,omitempty"`
	Scale     *calibration.Scale `json:"scale,omitempty"`
	Result    *Measurement       `json:"result,omitempty"`
	LastError error              `json:"-"`
}

// Session walks one photo through upload, calibration, scan and result.
// Only one scan or tick detection runs at a time. While it runs, requests
// that would change the photo, the step or the scale fail with ErrBusy.
type Session struct {
	mu sync.Mutex
	// busy is claimed and released under mu together with the step checks.
	busy      bool
	scanner   *Scanner
	img       image.Image
	ruler     *calibration.Controller
	step      Step
	scanState ScanState
	scale     *calibration.Scale
	result    *Measurement
	lastErr   error
	logger    *slog.Logger
}

// NewSession creates a session that scans with s.
func NewSession(s *Scanner) *Session {
	return &Session{scanner: s, logger: slog.Default()}
}

// WithLogger sets the session logger.
func (s *Session) WithLogger(l *slog.Logger) *Session {
	if l != nil {
		s.logger = l
	}
	return s
}

// Load starts over with img and places the ruler on it.
func (s *Session) Load(img image.Image) error {
	if img == nil || img.Bounds().Empty() {
		return ErrNoImage
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	b := img.Bounds()
	s.clear()
	s.img = img
	s.ruler = calibration.NewController(b.Dx(), b.Dy()).WithLogger(s.logger)
	s.setStep(StepCalibrate)
	return nil
}

// Image returns the loaded photo, or nil.
func (s *Session) Image() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img
}

// Calibrate feeds one interaction event to the virtual ruler.
func (s *Session) Calibrate(ev calibration.Event) (calibration.Ruler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.require(StepCalibrate); err != nil {
		return calibration.Ruler{}, err
	}
	return s.ruler.Handle(ev), nil
}

// SetViewport sets the display geometry used to map pointer coordinates.
func (s *Session) SetViewport(v calibration.Viewport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ruler == nil {
		return ErrNoImage
	}
	s.ruler.SetViewport(v)
	return nil
}

// ConfirmCalibration fixes the scale from the current ruler.
func (s *Session) ConfirmCalibration() (calibration.Scale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return calibration.Scale{}, ErrBusy
	}
	if err := s.require(StepCalibrate); err != nil {
		return calibration.Scale{}, err
	}
	sc := s.ruler.Confirm()
	if err := sc.Validate(); err != nil {
		return calibration.Scale{}, err
	}
	s.scale = &sc
	s.setStep(StepScan)
	return sc, nil
}

// AutoCalibrate fixes the scale from ruler ticks detected in the photo.
// A low-confidence result is accepted and flagged on the scale.
func (s *Session) AutoCalibrate() (calibration.TickResult, error) {
	s.mu.Lock()
	if err := s.claim(StepCalibrate); err != nil {
		s.mu.Unlock()
		return calibration.TickResult{}, err
	}
	img := s.img
	s.mu.Unlock()

	res, err := s.scanner.DetectTicks(img)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if err != nil {
		return res, err
	}
	sc := res.Scale()
	if err := sc.Validate(); err != nil {
		return res, err
	}
	s.scale = &sc
	s.setStep(StepScan)
	return res, nil
}

// Scan measures the loaded photo with the confirmed scale. On failure the
// session stays ready to scan again with the same calibration.
func (s *Session) Scan() (*Measurement, error) {
	s.mu.Lock()
	if err := s.claim(StepScan); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	img, scale := s.img, *s.scale
	s.scanState = Scanning
	s.mu.Unlock()

	m, err := s.scanner.Scan(img, scale)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if err != nil {
		s.scanState = ScanFailed
		s.lastErr = err
		s.logger.Warn("scan failed", "stage", "session", "error", err)
		return nil, err
	}
	s.scanState = ScanSucceeded
	s.lastErr = nil
	s.result = m
	s.setStep(StepResult)
	return m, nil
}

// Rescan discards the result and keeps the calibration.
func (s *Session) Rescan() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.require(StepResult); err != nil {
		return err
	}
	s.result = nil
	s.scanState = ScanIdle
	s.setStep(StepScan)
	return nil
}

// Recalibrate discards the scale and any result. The ruler keeps its
// last position.
func (s *Session) Recalibrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	if s.step != StepScan && s.step != StepResult {
		return fmt.Errorf("%w: recalibrate from %s", ErrWrongStep, s.step)
	}
	s.scale = nil
	s.result = nil
	s.lastErr = nil
	s.scanState = ScanIdle
	s.setStep(StepCalibrate)
	return nil
}

// Reset clears the photo, calibration and result.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	s.clear()
	s.setStep(StepUpload)
	return nil
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Step:      s.step,
		ScanState: s.scanState,
		Busy:      s.busy,
		Result:    s.result,
		LastError: s.lastErr,
	}
	if s.img != nil {
		st.Width, st.Height = s.img.Bounds().Dx(), s.img.Bounds().Dy()
	}
	if s.ruler != nil {
		r := s.ruler.Ruler()
		st.Ruler = &r
	}
	if s.scale != nil {
		sc := *s.scale
		st.Scale = &sc
	}
	return st
}

// claim checks the step and marks the session busy. Callers hold mu and
// clear busy under mu when the work is done.
func (s *Session) claim(step Step) error {
	if s.busy {
		return ErrBusy
	}
	if err := s.require(step); err != nil {
		return err
	}
	s.busy = true
	return nil
}

func (s *Session) require(step Step) error {
	if s.img == nil {
		return ErrNoImage
	}
	if s.step != step {
		return fmt.Errorf("%w: %s requires %s", ErrWrongStep, s.step, step)
	}
	return nil
}

func (s *Session) clear() {
	s.img = nil
	s.ruler = nil
	s.scale = nil
	s.result = nil
	s.lastErr = nil
	s.scanState = ScanIdle
}

func (s *Session) setStep(next Step) {
	if next != s.step {
		s.logger.Debug("session step", "from", s.step.String(), "to", next.String())
	}
	s.step = next
}
