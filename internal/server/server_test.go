package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/fabricarea/internal/pipeline"
	"github.com/MeKo-Tech/fabricarea/internal/testutil"
	"github.com/MeKo-Tech/fabricarea/internal/vision"
)

func squarePNG(t *testing.T) []byte {
	t.Helper()
	return testutil.EncodePNG(t, testutil.NewScene(1000, 1000).Rects(image.Rect(400, 400, 600, 600)))
}

func testConfig() Config {
	return Config{
		Host:        "localhost",
		Port:        8080,
		CORSOrigin:  "*",
		MaxUploadMB: 25,
		TimeoutSec:  30,
		Pipeline:    pipeline.NewBuilder().WithAreaFractions(0.02, 0).Config(),
	}
}

func newTestServer(t *testing.T, cfg Config) (*Server, *http.ServeMux) {
	t.Helper()
	h := vision.Open(context.Background(), vision.Native)
	_, err := h.Wait(context.Background())
	require.NoError(t, err)
	s, err := NewServer(cfg, h)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return s, mux
}

// uploadRequest builds a multipart POST with the image and form fields.
func uploadRequest(t *testing.T, path string, img []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if img != nil {
		fw, err := mw.CreateFormFile("image", "pattern.png")
		require.NoError(t, err)
		_, err = fw.Write(img)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealthHandler(t *testing.T) {
	_, mux := newTestServer(t, testConfig())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.True(t, resp.Ready)
	assert.Equal(t, vision.NameNative, resp.Backend)
	assert.NotEmpty(t, resp.Time)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthHandler_MethodNotAllowed(t *testing.T) {
	_, mux := newTestServer(t, testConfig())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	cfg := testConfig()
	cfg.CORSOrigin = "https://atelier.example"
	_, mux := newTestServer(t, cfg)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/measure", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://atelier.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestMeasureHandler_RulerLength(t *testing.T) {
	_, mux := newTestServer(t, testConfig())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, uploadRequest(t, "/measure", squarePNG(t), map[string]string{"ruler_length": "300"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp MeasurementResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NotNil(t, resp.Result)
	assert.InDelta(t, 400.0, resp.Result.AreaCm2, 1e-6)
	assert.InDelta(t, 0.04, resp.Result.AreaM2, 1e-9)
	assert.Equal(t, 4, resp.Result.VertexCount)
	assert.Len(t, resp.Result.Polygon, 4)
	assert.InDelta(t, 10.0, resp.Result.Calibration.PixelsPerCm, 1e-9)
	assert.Equal(t, "manual", resp.Result.Calibration.Method)
	assert.Equal(t, "400.00 cm² (0.0400 m²)", resp.Result.Display)
	assert.Equal(t, 1000, resp.Result.Width)
}

func TestMeasureHandler_RulerLengthClamped(t *testing.T) {
	_, mux := newTestServer(t, testConfig())

	tests := []struct {
		name   string
		length string
		want   float64
	}{
		{"below minimum", "50", 100.0 / 30},
		{"beyond photo height", "5000", 1000.0 / 30},
		{"in range", "300", 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, uploadRequest(t, "/measure", squarePNG(t), map[string]string{"ruler_length": tt.length}))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp MeasurementResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.NotNil(t, resp.Result)
			assert.InDelta(t, tt.want, resp.Result.Calibration.PixelsPerCm, 1e-9)
			assert.InDelta(t, 40000/(tt.want*tt.want), resp.Result.AreaCm2, 1e-6)
		})
	}
}

func TestMeasureHandler_PixelsPerCm(t *testing.T) {
	_, mux := newTestServer(t, testConfig())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, uploadRequest(t, "/measure", squarePNG(t), map[string]string{"pixels_per_cm": "20"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp MeasurementResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 100.0, resp.Result.AreaCm2, 1e-6)
}

func TestMeasureHandler_Errors(t *testing.T) {
	_, mux := newTestServer(t, testConfig())
	blank := testutil.EncodePNG(t, testutil.NewScene(200, 200).Blank())

	tests := []struct {
		name   string
		img    []byte
		fields map[string]string
		code   int
		stage  string
	}{
		{"no image", nil, map[string]string{"ruler_length": "300"}, http.StatusBadRequest, ""},
		{"no scale", squarePNG(t), nil, http.StatusBadRequest, ""},
		{"bad ruler length", squarePNG(t), map[string]string{"ruler_length": "long"}, http.StatusBadRequest, ""},
		{"negative ruler length", squarePNG(t), map[string]string{"ruler_length": "-300"}, http.StatusBadRequest, ""},
		{"zero scale", squarePNG(t), map[string]string{"pixels_per_cm": "0"}, http.StatusUnprocessableEntity, "calibration"},
		{"not an image", []byte("definitely not a png"), map[string]string{"ruler_length": "300"}, http.StatusBadRequest, ""},
		{"nothing to find", blank, map[string]string{"ruler_length": "300"}, http.StatusUnprocessableEntity, "segmentation"},
		{"overlay disabled", squarePNG(t), map[string]string{"ruler_length": "300", "format": "overlay"}, http.StatusBadRequest, ""},
		{"unknown format", squarePNG(t), map[string]string{"ruler_length": "300", "format": "svg"}, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, uploadRequest(t, "/measure", tt.img, tt.fields))
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())

			var resp MeasurementResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
			assert.Equal(t, tt.stage, resp.Stage)
		})
	}
}

func TestMeasureHandler_Overlay(t *testing.T) {
	cfg := testConfig()
	cfg.OverlayEnabled = true
	_, mux := newTestServer(t, cfg)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, uploadRequest(t, "/measure", squarePNG(t), map[string]string{"ruler_length": "300", "format": "overlay"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 1000, img.Bounds().Dx())
}

func TestMeasureHandler_NotReady(t *testing.T) {
	release := make(chan struct{})
	h := vision.Open(context.Background(), func(ctx context.Context) (vision.Backend, error) {
		<-release
		return vision.Native(ctx)
	})
	s, err := NewServer(testConfig(), h)
	require.NoError(t, err)
	t.Cleanup(func() {
		close(release)
		_ = s.Close()
	})
	mux := http.NewServeMux()
	s.SetupRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, uploadRequest(t, "/measure", squarePNG(t), map[string]string{"ruler_length": "300"}))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.False(t, health.Ready)
	assert.Equal(t, "initializing", health.Status)
}

func TestMeasureHandler_UploadTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.MaxUploadMB = 0
	_, mux := newTestServer(t, cfg)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, uploadRequest(t, "/measure", squarePNG(t), map[string]string{"ruler_length": "300"}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestCalibrateAutoHandler(t *testing.T) {
	_, mux := newTestServer(t, testConfig())
	scene := testutil.NewScene(400, 120).Blank()
	testutil.DrawRuler(scene, testutil.RulerConfig{
		Origin: image.Pt(40, 40), Spacing: 20, Count: 12, TickLen: 30, Thickness: 2,
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, uploadRequest(t, "/calibrate/auto", testutil.EncodePNG(t, scene), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp CalibrationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	assert.InDelta(t, 19.8, resp.Calibration.PixelsPerCm, 0.2)
	assert.False(t, resp.Calibration.LowConfidence)
	assert.GreaterOrEqual(t, resp.Calibration.Ticks, 10)
}

func TestMetricsEndpoint(t *testing.T) {
	_, mux := newTestServer(t, testConfig())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fabricarea_http_requests_total")
}
