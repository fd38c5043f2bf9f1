//nolint:lll
package config

import (
	"github.com/MeKo-Tech/fabricarea/internal/calibration"
	"github.com/MeKo-Tech/fabricarea/internal/contour"
	"github.com/MeKo-Tech/fabricarea/internal/segment"
)

// Config represents the complete configuration for the fabricarea tool.
// It covers every command (measure, calibrate, serve) and supports loading
// from configuration files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Image        ImageConfig        `mapstructure:"image" yaml:"image" json:"image"`
	Segmentation SegmentationConfig `mapstructure:"segmentation" yaml:"segmentation" json:"segmentation"`
	Edges        segment.EdgeConfig `mapstructure:"edges" yaml:"edges" json:"edges"`
	Contour      contour.Filter     `mapstructure:"contour" yaml:"contour" json:"contour"`
	Simplify     SimplifyConfig     `mapstructure:"simplify" yaml:"simplify" json:"simplify"`
	Calibration  CalibrationConfig  `mapstructure:"calibration" yaml:"calibration" json:"calibration"`
	Vision       VisionConfig       `mapstructure:"vision" yaml:"vision" json:"vision"`
	Output       OutputConfig       `mapstructure:"output" yaml:"output" json:"output"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
}

// ImageConfig contains input image handling.
type ImageConfig struct {
	// MaxSide downscales larger photos before processing; 0 disables.
	MaxSide int `mapstructure:"max_side" yaml:"max_side" json:"max_side"`
}

// SegmentationConfig contains the colour band and mask clean-up.
type SegmentationConfig struct {
	// BandPreset overrides Band when set ("gray-beige" or "light").
	BandPreset      string       `mapstructure:"band_preset" yaml:"band_preset" json:"band_preset"`
	Band            segment.Band `mapstructure:"band" yaml:"band" json:"band"`
	OpenKernel      int          `mapstructure:"open_kernel" yaml:"open_kernel" json:"open_kernel"`
	OpenIterations  int          `mapstructure:"open_iterations" yaml:"open_iterations" json:"open_iterations"`
	CloseKernel     int          `mapstructure:"close_kernel" yaml:"close_kernel" json:"close_kernel"`
	CloseIterations int          `mapstructure:"close_iterations" yaml:"close_iterations" json:"close_iterations"`
}

// SimplifyConfig contains polygon simplification settings.
type SimplifyConfig struct {
	EpsilonFactor float64 `mapstructure:"epsilon_factor" yaml:"epsilon_factor" json:"epsilon_factor"`
	MinVertices   int     `mapstructure:"min_vertices" yaml:"min_vertices" json:"min_vertices"`
}

// CalibrationConfig selects the calibration strategy.
type CalibrationConfig struct {
	Method string                 `mapstructure:"method" yaml:"method" json:"method"`
	Ticks  calibration.TickConfig `mapstructure:"ticks" yaml:"ticks" json:"ticks"`
}

// VisionConfig selects the image processing backend.
type VisionConfig struct {
	Backend        string `mapstructure:"backend" yaml:"backend" json:"backend"`
	InitTimeoutSec int    `mapstructure:"init_timeout_sec" yaml:"init_timeout_sec" json:"init_timeout_sec"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format       string `mapstructure:"format" yaml:"format" json:"format"`
	Precision    int    `mapstructure:"precision" yaml:"precision" json:"precision"`
	PolygonColor string `mapstructure:"polygon_color" yaml:"polygon_color" json:"polygon_color"`
	RulerColor   string `mapstructure:"ruler_color" yaml:"ruler_color" json:"ruler_color"`
	TickColor    string `mapstructure:"tick_color" yaml:"tick_color" json:"tick_color"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	OverlayEnabled  bool   `mapstructure:"overlay_enabled" yaml:"overlay_enabled" json:"overlay_enabled"`
}
