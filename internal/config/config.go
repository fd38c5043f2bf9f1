// Package config loads fabricarea settings from files, environment and
// flags, and converts them into pipeline settings.
package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/MeKo-Tech/fabricarea/internal/calibration"
	"github.com/MeKo-Tech/fabricarea/internal/contour"
	"github.com/MeKo-Tech/fabricarea/internal/geometry"
	"github.com/MeKo-Tech/fabricarea/internal/mask"
	"github.com/MeKo-Tech/fabricarea/internal/pipeline"
	"github.com/MeKo-Tech/fabricarea/internal/segment"
	"github.com/MeKo-Tech/fabricarea/internal/vision"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatCSV  = "csv"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	seg := segment.DefaultConfig()
	return Config{
		LogLevel: "info",
		Image:    ImageConfig{MaxSide: 0},
		Segmentation: SegmentationConfig{
			Band:            seg.Band,
			OpenKernel:      seg.Open.KernelSize,
			OpenIterations:  seg.Open.Iterations,
			CloseKernel:     seg.Close.KernelSize,
			CloseIterations: seg.Close.Iterations,
		},
		Edges:   segment.DefaultEdgeConfig(),
		Contour: contour.DefaultFilter(),
		Simplify: SimplifyConfig{
			EpsilonFactor: geometry.DefaultEpsilonFactor,
			MinVertices:   geometry.DefaultMinVertices,
		},
		Calibration: CalibrationConfig{
			Method: calibration.Manual.String(),
			Ticks:  calibration.DefaultTickConfig(),
		},
		Vision: VisionConfig{
			Backend:        vision.NameNative,
			InitTimeoutSec: 10,
		},
		Output: OutputConfig{
			Format:       FormatText,
			Precision:    2,
			PolygonColor: "#00DC00",
			RulerColor:   "#1E6EFF",
			TickColor:    "#FFFFFF",
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     25,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
			OverlayEnabled:  false,
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{FormatText, FormatJSON, FormatYAML, FormatCSV}
	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}
	if c.Output.Precision < 0 || c.Output.Precision > 6 {
		return fmt.Errorf("invalid output precision: %d (must be between 0 and 6)", c.Output.Precision)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}

	if _, err := vision.FactoryFor(c.Vision.Backend); err != nil {
		return fmt.Errorf("invalid vision backend: %w", err)
	}
	if c.Vision.InitTimeoutSec < 0 {
		return fmt.Errorf("invalid vision init timeout: %d (must be non-negative)", c.Vision.InitTimeoutSec)
	}
	if _, err := calibration.ParseMethod(c.Calibration.Method); err != nil {
		return fmt.Errorf("invalid calibration method: %w", err)
	}

	pc, err := c.ToPipelineConfig()
	if err != nil {
		return err
	}
	return pc.Validate()
}

// CalibrationMethod returns the parsed calibration method.
func (c *Config) CalibrationMethod() calibration.Method {
	m, err := calibration.ParseMethod(c.Calibration.Method)
	if err != nil {
		return calibration.Manual
	}
	return m
}

// ToPipelineConfig converts the config to the pipeline configuration.
func (c *Config) ToPipelineConfig() (pipeline.Config, error) {
	band := c.Segmentation.Band
	if c.Segmentation.BandPreset != "" {
		preset, err := segment.BandPreset(c.Segmentation.BandPreset)
		if err != nil {
			return pipeline.Config{}, err
		}
		band = preset
	}
	return pipeline.Config{
		Segment: segment.Config{
			Band: band,
			Open: mask.MorphConfig{
				Operation:  mask.OpOpen,
				KernelSize: c.Segmentation.OpenKernel,
				Iterations: c.Segmentation.OpenIterations,
			},
			Close: mask.MorphConfig{
				Operation:  mask.OpClose,
				KernelSize: c.Segmentation.CloseKernel,
				Iterations: c.Segmentation.CloseIterations,
			},
		},
		Edges:  c.Edges,
		Filter: c.Contour,
		Simplify: geometry.Simplifier{
			EpsilonFactor: c.Simplify.EpsilonFactor,
			MinVertices:   c.Simplify.MinVertices,
		},
		Ticks:        c.Calibration.Ticks,
		MaxImageSide: c.Image.MaxSide,
	}, nil
}

// OverlayColors parses the configured overlay colours.
func (c *Config) OverlayColors() (pipeline.OverlayColors, error) {
	return pipeline.ParseOverlayColors(c.Output.PolygonColor, c.Output.RulerColor, c.Output.TickColor)
}
