package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/MeKo-Tech/fabricarea/internal/calibration"
	"github.com/MeKo-Tech/fabricarea/internal/imageio"
	"github.com/MeKo-Tech/fabricarea/internal/pipeline"
	"github.com/MeKo-Tech/fabricarea/internal/version"
	"github.com/MeKo-Tech/fabricarea/internal/vision"
)

const (
	formatJSON    = "json"
	formatOverlay = "overlay"
)

var (
	errBadRequest = errors.New("bad request")
	errTooLarge   = errors.New("upload too large")
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	if s.vision != nil {
		be, err := s.vision.Backend()
		switch {
		case err == nil:
			response.Ready = true
			response.Backend = be.Name()
		case errors.Is(err, vision.ErrNotReady):
			response.Status = "initializing"
		default:
			response.Status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// measureHandler measures an uploaded photo. The scale comes from
// pixels_per_cm, from ruler_length (pixels spanned by the 30 cm ruler) or,
// with auto=true, from ruler ticks in the photo.
func (s *Server) measureHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sc, err := s.getScanner()
	if err != nil {
		s.writeMeasureError(w, err)
		return
	}

	img, err := s.readImage(w, r)
	if err != nil {
		s.writeMeasureError(w, err)
		return
	}

	format := r.FormValue("format")
	if format == "" {
		format = formatJSON
	}
	if format != formatJSON && format != formatOverlay {
		s.writeMeasureError(w, fmt.Errorf("%w: unsupported format %q", errBadRequest, format))
		return
	}
	if format == formatOverlay && !s.cfg.OverlayEnabled {
		s.writeMeasureError(w, fmt.Errorf("%w: overlay output is disabled", errBadRequest))
		return
	}

	scale, err := requestScale(r, sc, img)
	if err != nil {
		s.writeMeasureError(w, err)
		return
	}

	start := time.Now()
	m, err := sc.Scan(img, scale)
	scanDuration.WithLabelValues("http").Observe(time.Since(start).Seconds())
	if err != nil {
		scansTotal.WithLabelValues("http", "error").Inc()
		s.writeMeasureError(w, err)
		return
	}
	recordMeasurement("http", m)

	if format == formatOverlay {
		out := pipeline.RenderOverlay(img, &m.Result, nil, s.cfg.OverlayColors)
		w.Header().Set("Content-Type", "image/png")
		if err := png.Encode(w, out); err != nil {
			slog.Error("Error encoding overlay", "error", err)
		}
		return
	}

	b := img.Bounds()
	writeJSON(w, http.StatusOK, MeasurementResponse{
		Success: true,
		Result:  toMeasureResult(m, b.Dx(), b.Dy()),
	})
}

// calibrateAutoHandler detects ruler ticks in an uploaded photo.
func (s *Server) calibrateAutoHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sc, err := s.getScanner()
	if err != nil {
		s.writeCalibrationError(w, err)
		return
	}
	img, err := s.readImage(w, r)
	if err != nil {
		s.writeCalibrationError(w, err)
		return
	}
	res, err := sc.DetectTicks(img)
	if err != nil {
		s.writeCalibrationError(w, err)
		return
	}
	calibrationConfidence.WithLabelValues(calibration.AutomaticTickDetection.String()).Observe(res.Confidence)

	writeJSON(w, http.StatusOK, CalibrationResponse{
		Success:     true,
		Calibration: toTickCalibration(res),
	})
}

// readImage decodes the multipart "image" field within the upload limit.
func (s *Server) readImage(w http.ResponseWriter, r *http.Request) (image.Image, error) {
	limit := s.cfg.MaxUploadMB * 1024 * 1024
	if r.ContentLength > limit {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d MB", errTooLarge, r.ContentLength, s.cfg.MaxUploadMB)
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		return nil, fmt.Errorf("%w: failed to parse form: %w", errBadRequest, err)
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		return nil, fmt.Errorf("%w: no image file provided", errBadRequest)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("Error closing uploaded file", "error", err)
		}
	}()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read image: %w", errBadRequest, err)
	}
	uploadSizeBytes.Observe(float64(len(data)))

	img, _, err := imageio.DecodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return img, nil
}

// requestScale resolves the calibration parameters of a measure request.
func requestScale(r *http.Request, sc *pipeline.Scanner, img image.Image) (calibration.Scale, error) {
	if auto, _ := strconv.ParseBool(r.FormValue("auto")); auto {
		res, err := sc.DetectTicks(img)
		if err != nil {
			return calibration.Scale{}, err
		}
		calibrationConfidence.WithLabelValues(calibration.AutomaticTickDetection.String()).Observe(res.Confidence)
		return res.Scale(), nil
	}

	if v := r.FormValue("pixels_per_cm"); v != "" {
		ppcm, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return calibration.Scale{}, fmt.Errorf("%w: invalid pixels_per_cm %q", errBadRequest, v)
		}
		return calibration.Scale{PixelsPerCm: ppcm, Method: calibration.Manual, Confidence: 1}, nil
	}

	if v := r.FormValue("ruler_length"); v != "" {
		px, err := strconv.ParseFloat(v, 64)
		if err != nil || px <= 0 || math.IsInf(px, 0) {
			return calibration.Scale{}, fmt.Errorf("%w: invalid ruler_length %q", errBadRequest, v)
		}
		// the same bounded control as the interactive ruler
		b := img.Bounds()
		ctrl := calibration.NewController(b.Dx(), b.Dy())
		ctrl.SetLength(px)
		calibrationConfidence.WithLabelValues(calibration.Manual.String()).Observe(1)
		return ctrl.Confirm(), nil
	}

	return calibration.Scale{}, fmt.Errorf("%w: one of pixels_per_cm, ruler_length or auto is required", errBadRequest)
}

func recordMeasurement(source string, m *pipeline.Measurement) {
	scansTotal.WithLabelValues(source, "success").Inc()
	measuredArea.Observe(m.AreaCm2)
	if m.Fallback {
		contourFallbacks.Inc()
	}
}

// statusFor maps an error to an HTTP status code.
func statusFor(err error) int {
	var scanErr *pipeline.ScanError
	switch {
	case errors.Is(err, errTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest):
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadRequest
	case errors.Is(err, vision.ErrNotReady), errors.Is(err, vision.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &scanErr),
		errors.Is(err, calibration.ErrCalibrationInvalid),
		errors.Is(err, calibration.ErrNoTicks):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeMeasureError(w http.ResponseWriter, err error) {
	resp := MeasurementResponse{Error: err.Error()}
	var scanErr *pipeline.ScanError
	if errors.As(err, &scanErr) {
		resp.Error = scanErr.Message()
		resp.Stage = string(scanErr.Stage)
	}
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		slog.Error("Measurement failed", "error", err)
	}
	writeJSON(w, code, resp)
}

func (s *Server) writeCalibrationError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), CalibrationResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}
