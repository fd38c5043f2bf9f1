// Package server exposes measurement over HTTP: one-shot upload endpoints
// and a websocket that drives a full calibration session.
package server

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/fabricarea/internal/calibration"
	"github.com/MeKo-Tech/fabricarea/internal/geometry"
	"github.com/MeKo-Tech/fabricarea/internal/pipeline"
	"github.com/MeKo-Tech/fabricarea/internal/report"
	"github.com/MeKo-Tech/fabricarea/internal/vision"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	cfg    Config
	vision *vision.Handle

	mu      sync.Mutex
	scanner *pipeline.Scanner
}

// Config holds server configuration.
type Config struct {
	Host           string
	Port           int
	CORSOrigin     string
	MaxUploadMB    int64
	TimeoutSec     int
	Pipeline       pipeline.Config
	OverlayEnabled bool
	OverlayColors  pipeline.OverlayColors
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Backend string `json:"backend,omitempty"`
	Ready   bool   `json:"ready"`
	Time    string `json:"time"`
}

// CalibrationInfo describes the scale a measurement used.
type CalibrationInfo struct {
	PixelsPerCm   float64 `json:"pixels_per_cm"`
	Method        string  `json:"method"`
	Confidence    float64 `json:"confidence"`
	LowConfidence bool    `json:"low_confidence"`
	Warning       string  `json:"warning,omitempty"`
}

// MeasureResult is the JSON form of a measurement.
type MeasureResult struct {
	AreaCm2      float64          `json:"area_cm2"`
	AreaM2       float64          `json:"area_m2"`
	AreaPx       float64          `json:"area_px"`
	Display      string           `json:"display"`
	VertexCount  int              `json:"vertex_count"`
	Polygon      []geometry.Point `json:"polygon"`
	Calibration  CalibrationInfo  `json:"calibration"`
	Fallback     bool             `json:"fallback"`
	UsedHull     bool             `json:"used_hull"`
	Candidates   int              `json:"candidates"`
	Width        int              `json:"width"`
	Height       int              `json:"height"`
	ProcessingMs int64            `json:"processing_ms"`
}

// MeasurementResponse is returned by /measure.
type MeasurementResponse struct {
	Success bool           `json:"success"`
	Result  *MeasureResult `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
	Stage   string         `json:"stage,omitempty"`
}

// TickCalibration is the JSON form of an automatic calibration.
type TickCalibration struct {
	PixelsPerCm   float64 `json:"pixels_per_cm"`
	RawScale      float64 `json:"raw_scale"`
	Confidence    float64 `json:"confidence"`
	LowConfidence bool    `json:"low_confidence"`
	Warning       string  `json:"warning,omitempty"`
	Ticks         int     `json:"ticks"`
	MeanGap       float64 `json:"mean_gap"`
	StdDevGap     float64 `json:"stddev_gap"`
	MedianGap     float64 `json:"median_gap"`
}

// CalibrationResponse is returned by /calibrate/auto.
type CalibrationResponse struct {
	Success     bool             `json:"success"`
	Calibration *TickCalibration `json:"calibration,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// NewServer creates a server. Scans wait for h to become ready; until
// then measurement endpoints answer 503.
func NewServer(config Config, h *vision.Handle) (*Server, error) {
	if err := config.Pipeline.Validate(); err != nil {
		return nil, err
	}
	if config.OverlayColors == (pipeline.OverlayColors{}) {
		config.OverlayColors = pipeline.DefaultOverlayColors()
	}
	return &Server{cfg: config, vision: h}, nil
}

// Close releases the vision backend.
func (s *Server) Close() error {
	if s.vision != nil {
		return s.vision.Close()
	}
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/measure", s.corsMiddleware(s.measureHandler))
	mux.HandleFunc("/calibrate/auto", s.corsMiddleware(s.calibrateAutoHandler))
	mux.Handle("/metrics", promhttp.Handler())
	// upgraded connections bypass the response-wrapping middleware
	mux.HandleFunc("/ws/session", s.sessionWebSocketHandler)
}

// getScanner builds the scanner on first use once the backend is ready.
func (s *Server) getScanner() (*pipeline.Scanner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanner != nil {
		return s.scanner, nil
	}
	if s.vision == nil {
		return nil, vision.ErrNotReady
	}
	be, err := s.vision.Backend()
	if err != nil {
		return nil, err
	}
	sc, err := pipeline.NewScanner(s.cfg.Pipeline, be)
	if err != nil {
		return nil, err
	}
	s.scanner = sc
	return sc, nil
}

func toCalibrationInfo(sc calibration.Scale) CalibrationInfo {
	info := CalibrationInfo{
		PixelsPerCm:   sc.PixelsPerCm,
		Method:        sc.Method.String(),
		Confidence:    sc.Confidence,
		LowConfidence: sc.LowConfidence,
	}
	if sc.Warning != nil {
		info.Warning = sc.Warning.Error()
	}
	return info
}

func toMeasureResult(m *pipeline.Measurement, w, h int) *MeasureResult {
	return &MeasureResult{
		AreaCm2:      m.AreaCm2,
		AreaM2:       m.AreaM2,
		AreaPx:       m.AreaPx,
		Display:      report.FormatArea(m.AreaCm2, 2),
		VertexCount:  m.VertexCount,
		Polygon:      m.Polygon,
		Calibration:  toCalibrationInfo(m.Scale),
		Fallback:     m.Fallback,
		UsedHull:     m.UsedHull,
		Candidates:   m.Candidates,
		Width:        w,
		Height:       h,
		ProcessingMs: m.Duration.Milliseconds(),
	}
}

func toTickCalibration(r calibration.TickResult) *TickCalibration {
	tc := &TickCalibration{
		PixelsPerCm:   r.PixelsPerCm,
		RawScale:      r.RawScale,
		Confidence:    r.Confidence,
		LowConfidence: r.LowConfidence,
		Ticks:         len(r.Positions),
		MeanGap:       r.Mean,
		StdDevGap:     r.StdDev,
		MedianGap:     r.Median,
	}
	if r.Warning != nil {
		tc.Warning = r.Warning.Error()
	}
	return tc
}
