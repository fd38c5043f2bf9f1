package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/fabricarea/internal/calibration"
	"github.com/MeKo-Tech/fabricarea/internal/pipeline"
	"github.com/MeKo-Tech/fabricarea/internal/segment"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, calibration.Manual, cfg.CalibrationMethod())
}

func TestDefaultConfig_MatchesPipelineDefaults(t *testing.T) {
	cfg := DefaultConfig()
	pc, err := cfg.ToPipelineConfig()
	require.NoError(t, err)
	assert.Equal(t, pipeline.DefaultConfig(), pc)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "invalid log level"},
		{"format", func(c *Config) { c.Output.Format = "xml" }, "invalid output format"},
		{"precision", func(c *Config) { c.Output.Precision = 9 }, "invalid output precision"},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"upload", func(c *Config) { c.Server.MaxUploadMB = 0 }, "invalid max upload size"},
		{"timeout", func(c *Config) { c.Server.TimeoutSec = 0 }, "invalid timeout"},
		{"backend", func(c *Config) { c.Vision.Backend = "cuda" }, "invalid vision backend"},
		{"method", func(c *Config) { c.Calibration.Method = "guess" }, "invalid calibration method"},
		{"preset", func(c *Config) { c.Segmentation.BandPreset = "neon" }, "unknown band preset"},
		{"max area", func(c *Config) { c.Contour.MaxAreaFraction = 0.95 }, "contour"},
		{"band", func(c *Config) { c.Segmentation.Band.ValMin = 300 }, "segment"},
		{"ticks", func(c *Config) { c.Calibration.Ticks.CorrectionFactor = 0 }, "calibration"},
		{"image side", func(c *Config) { c.Image.MaxSide = -5 }, "max image side"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestToPipelineConfig_BandPreset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Segmentation.BandPreset = segment.PresetLight
	cfg.Image.MaxSide = 1600
	cfg.Contour.MinAreaFraction = 0.02
	pc, err := cfg.ToPipelineConfig()
	require.NoError(t, err)
	assert.Equal(t, segment.LightBand(), pc.Segment.Band)
	assert.Equal(t, 1600, pc.MaxImageSide)
	assert.Equal(t, 0.02, pc.Filter.MinAreaFraction)
}

func TestCalibrationMethod(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Calibration.Method = "auto"
	assert.Equal(t, calibration.AutomaticTickDetection, cfg.CalibrationMethod())
	cfg.Calibration.Method = "nonsense"
	assert.Equal(t, calibration.Manual, cfg.CalibrationMethod())
}

func TestOverlayColors(t *testing.T) {
	cfg := DefaultConfig()
	_, err := cfg.OverlayColors()
	require.NoError(t, err)
	cfg.Output.RulerColor = "blue"
	_, err = cfg.OverlayColors()
	assert.Error(t, err)
}
