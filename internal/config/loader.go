package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "fabricarea"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "FABRICAREA"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance so cobra flag
// bindings apply.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWith creates a loader on v.
func NewLoaderWith(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load reads the first config file found in the search paths, then
// environment variables, over the defaults. A missing file is not an error.
func (l *Loader) Load() (*Config, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")
	l.addConfigPaths()
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return l.decode(true)
}

// LoadWithFile loads configuration from a specific file path. An empty
// path falls back to Load.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	if configFile == "" {
		return l.Load()
	}
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configFile)
	}

	l.v.SetConfigFile(configFile)
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}
	return l.decode(true)
}

// LoadWithoutValidation is Load without the final Validate, for
// `config show` on a broken file.
func (l *Loader) LoadWithoutValidation(configFile string) (*Config, error) {
	if configFile != "" {
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}
	l.setupEnvironmentVariables()
	l.setDefaults()
	if err := l.v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return l.decode(false)
}

func (l *Loader) decode(validate bool) (*Config, error) {
	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if validate {
		if err := config.Validate(); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}
	return &config, nil
}

// ConfigFileUsed returns the path of the config file used.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Viper returns the underlying viper instance.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	// FABRICAREA_SERVER_PORT maps to server.port
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key so environment overrides resolve.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)
	l.v.SetDefault("image.max_side", d.Image.MaxSide)

	l.v.SetDefault("segmentation.band_preset", d.Segmentation.BandPreset)
	l.v.SetDefault("segmentation.band.hue_min", d.Segmentation.Band.HueMin)
	l.v.SetDefault("segmentation.band.hue_max", d.Segmentation.Band.HueMax)
	l.v.SetDefault("segmentation.band.sat_min", d.Segmentation.Band.SatMin)
	l.v.SetDefault("segmentation.band.sat_max", d.Segmentation.Band.SatMax)
	l.v.SetDefault("segmentation.band.val_min", d.Segmentation.Band.ValMin)
	l.v.SetDefault("segmentation.band.val_max", d.Segmentation.Band.ValMax)
	l.v.SetDefault("segmentation.open_kernel", d.Segmentation.OpenKernel)
	l.v.SetDefault("segmentation.open_iterations", d.Segmentation.OpenIterations)
	l.v.SetDefault("segmentation.close_kernel", d.Segmentation.CloseKernel)
	l.v.SetDefault("segmentation.close_iterations", d.Segmentation.CloseIterations)

	l.v.SetDefault("edges.blur_radius", d.Edges.BlurRadius)
	l.v.SetDefault("edges.threshold", d.Edges.Threshold)
	l.v.SetDefault("edges.dilate_kernel", d.Edges.DilateKernel)
	l.v.SetDefault("edges.dilate_iterations", d.Edges.DilateIterations)
	l.v.SetDefault("edges.close_kernel", d.Edges.CloseKernel)
	l.v.SetDefault("edges.close_iterations", d.Edges.CloseIterations)

	l.v.SetDefault("contour.min_area_fraction", d.Contour.MinAreaFraction)
	l.v.SetDefault("contour.max_area_fraction", d.Contour.MaxAreaFraction)
	l.v.SetDefault("contour.border_margin", d.Contour.BorderMargin)
	l.v.SetDefault("contour.max_aspect_ratio", d.Contour.MaxAspectRatio)

	l.v.SetDefault("simplify.epsilon_factor", d.Simplify.EpsilonFactor)
	l.v.SetDefault("simplify.min_vertices", d.Simplify.MinVertices)

	t := d.Calibration.Ticks
	l.v.SetDefault("calibration.method", d.Calibration.Method)
	l.v.SetDefault("calibration.ticks.max_angle", t.MaxAngle)
	l.v.SetDefault("calibration.ticks.min_length", t.MinLength)
	l.v.SetDefault("calibration.ticks.max_length", t.MaxLength)
	l.v.SetDefault("calibration.ticks.min_gap", t.MinGap)
	l.v.SetDefault("calibration.ticks.max_gap", t.MaxGap)
	l.v.SetDefault("calibration.ticks.correction_factor", t.CorrectionFactor)
	l.v.SetDefault("calibration.ticks.fallback_scale", t.FallbackScale)
	l.v.SetDefault("calibration.ticks.min_gaps", t.MinGaps)
	l.v.SetDefault("calibration.ticks.min_confidence", t.MinConfidence)
	l.v.SetDefault("calibration.ticks.require_confident", t.RequireConfident)
	l.v.SetDefault("calibration.ticks.lines.scale", t.Lines.Scale)
	l.v.SetDefault("calibration.ticks.lines.sigma_scale", t.Lines.SigmaScale)
	l.v.SetDefault("calibration.ticks.lines.quant", t.Lines.Quant)
	l.v.SetDefault("calibration.ticks.lines.angle_tolerance", t.Lines.AngleTolerance)
	l.v.SetDefault("calibration.ticks.lines.log_eps", t.Lines.LogEps)
	l.v.SetDefault("calibration.ticks.lines.density", t.Lines.Density)
	l.v.SetDefault("calibration.ticks.lines.bins", t.Lines.Bins)
	l.v.SetDefault("calibration.ticks.lines.merge_distance", t.Lines.MergeDistance)
	l.v.SetDefault("calibration.ticks.lines.blur_radius", t.Lines.BlurRadius)
	l.v.SetDefault("calibration.ticks.lines.edge_threshold", t.Lines.EdgeThreshold)
	l.v.SetDefault("calibration.ticks.lines.min_pixels", t.Lines.MinPixels)
	l.v.SetDefault("calibration.ticks.lines.min_elongation", t.Lines.MinElongation)

	l.v.SetDefault("vision.backend", d.Vision.Backend)
	l.v.SetDefault("vision.init_timeout_sec", d.Vision.InitTimeoutSec)

	l.v.SetDefault("output.format", d.Output.Format)
	l.v.SetDefault("output.precision", d.Output.Precision)
	l.v.SetDefault("output.polygon_color", d.Output.PolygonColor)
	l.v.SetDefault("output.ruler_color", d.Output.RulerColor)
	l.v.SetDefault("output.tick_color", d.Output.TickColor)

	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	l.v.SetDefault("server.overlay_enabled", d.Server.OverlayEnabled)
}

// GenerateDefaultConfigFile writes the defaults to filename
// (fabricarea.yaml when empty).
func GenerateDefaultConfigFile(filename string) error {
	loader := NewLoaderWith(viper.New())
	loader.setDefaults()
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	return loader.v.WriteConfigAs(filename)
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}

	return append(paths, "/etc/"+ConfigFileName)
}
