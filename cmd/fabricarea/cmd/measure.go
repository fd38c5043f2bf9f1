package cmd

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/fabricarea/internal/calibration"
	"github.com/MeKo-Tech/fabricarea/internal/config"
	"github.com/MeKo-Tech/fabricarea/internal/contour"
	"github.com/MeKo-Tech/fabricarea/internal/imageio"
	"github.com/MeKo-Tech/fabricarea/internal/pipeline"
	"github.com/MeKo-Tech/fabricarea/internal/report"
)

// measureCmd represents the measure command.
var measureCmd = &cobra.Command{
	Use:   "measure <image>...",
	Short: "Measure the area of pattern pieces in photos",
	Long: `Measure the pattern piece in one or more photos.

The scale is taken, in order of precedence, from --pixels-per-cm, from
--ruler-length (pixels spanned by the 30 cm virtual ruler), or from the
calibration method: "automatic" detects the ticks of a physical ruler,
"manual" uses the virtual ruler at its default placement after replaying
the events in --events.

Supported formats: JPEG, PNG, BMP, TIFF, WebP

Examples:
  fabricarea measure piece.jpg --ruler-length 412
  fabricarea measure piece.jpg --auto --format json
  fabricarea measure *.png --pixels-per-cm 12.5 --format csv
  fabricarea measure piece.jpg --events ruler.yaml --overlay out.png`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		bindFlags(cmd.Flags(), []flagBinding{
			{"output.format", "format"},
			{"output.precision", "precision"},
			{"image.max_side", "max-side"},
			{"segmentation.band_preset", "band-preset"},
			{"contour.min_area_fraction", "min-area-fraction"},
			{"contour.max_area_fraction", "max-area-fraction"},
		})
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		opts, err := measureOptionsFromFlags(cmd, cfg)
		if err != nil {
			return err
		}
		return runMeasure(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, opts, args)
	},
}

// measureOptions are the per-run settings that are not part of config.Config.
type measureOptions struct {
	PixelsPerCm float64
	RulerLength float64
	Method      calibration.Method
	Events      []calibration.Event
	Output      string
	Overlay     string
}

func measureOptionsFromFlags(cmd *cobra.Command, cfg *config.Config) (measureOptions, error) {
	opts := measureOptions{Method: cfg.CalibrationMethod()}
	opts.PixelsPerCm, _ = cmd.Flags().GetFloat64("pixels-per-cm")
	opts.RulerLength, _ = cmd.Flags().GetFloat64("ruler-length")
	opts.Output, _ = cmd.Flags().GetString("output")
	opts.Overlay, _ = cmd.Flags().GetString("overlay")
	if auto, _ := cmd.Flags().GetBool("auto"); auto {
		opts.Method = calibration.AutomaticTickDetection
	}
	if opts.PixelsPerCm < 0 || opts.RulerLength < 0 {
		return opts, errors.New("scale flags must not be negative")
	}
	if path, _ := cmd.Flags().GetString("events"); path != "" {
		evs, err := loadEvents(path)
		if err != nil {
			return opts, err
		}
		opts.Events = evs
	}
	return opts, nil
}

// loadEvents reads a YAML (or JSON) list of ruler events.
func loadEvents(path string) ([]calibration.Event, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: user-provided events file
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	var evs []calibration.Event
	if err := yaml.Unmarshal(data, &evs); err != nil {
		return nil, fmt.Errorf("failed to parse events %s: %w", path, err)
	}
	return evs, nil
}

func runMeasure(ctx context.Context, stdout, stderr io.Writer, cfg *config.Config, opts measureOptions, paths []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	pc, err := cfg.ToPipelineConfig()
	if err != nil {
		return err
	}
	colors, err := cfg.OverlayColors()
	if err != nil {
		return err
	}
	h, be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = h.Close() }()

	scanner, err := pipeline.NewScanner(pc, be)
	if err != nil {
		return err
	}

	out := stdout
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() {
			if err := f.Close(); err != nil {
				slog.Error("Error closing output file", "error", err)
			}
		}()
		out = f
	}

	var failed int
	for i, path := range paths {
		res, ruler, img, err := measureOne(scanner, path, opts)
		if err != nil {
			failed++
			slog.Error("measurement failed", "file", path, "error", err)
			var scanErr *pipeline.ScanError
			if errors.As(err, &scanErr) {
				_, _ = fmt.Fprintf(stderr, "%s: %s\n", path, scanErr.Message())
			}
			continue
		}

		text, err := report.Format(res, cfg.Output.Format, cfg.Output.Precision)
		if err != nil {
			return err
		}
		if len(paths) > 1 && cfg.Output.Format == config.FormatText {
			text = fmt.Sprintf("== %s ==\n%s", filepath.Base(path), text)
		}
		if _, err := io.WriteString(out, ensureNewline(text)); err != nil {
			return err
		}

		if opts.Overlay != "" {
			target := overlayPath(opts.Overlay, path, i, len(paths))
			if err := imaging.Save(pipeline.RenderOverlay(img, &res.Result, ruler, colors), target); err != nil {
				return fmt.Errorf("failed to write overlay: %w", err)
			}
			slog.Info("overlay written", "file", target)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d measurements failed", failed, len(paths))
	}
	return nil
}

// measureOne resolves the scale for one photo and scans it. The returned
// ruler is nil unless the virtual ruler set the scale.
func measureOne(scanner *pipeline.Scanner, path string, opts measureOptions) (*pipeline.Measurement, *calibration.Ruler, image.Image, error) {
	img, meta, err := imageio.Load(path)
	if err != nil {
		return nil, nil, nil, err
	}
	slog.Debug("image loaded", "file", path, "format", meta.Format, "width", meta.Width, "height", meta.Height)

	if opts.PixelsPerCm > 0 {
		m, err := scanner.Scan(img, calibration.Scale{
			PixelsPerCm: opts.PixelsPerCm,
			Method:      calibration.Manual,
			Confidence:  1,
		})
		return m, nil, img, err
	}

	session := pipeline.NewSession(scanner)
	if err := session.Load(img); err != nil {
		return nil, nil, nil, err
	}

	if opts.RulerLength == 0 && opts.Method == calibration.AutomaticTickDetection {
		res, err := session.AutoCalibrate()
		if err != nil {
			return nil, nil, nil, err
		}
		if res.LowConfidence {
			slog.Warn("low confidence calibration", "file", path, "warning", res.Warning)
		}
		m, err := session.Scan()
		return m, nil, img, err
	}

	for _, ev := range opts.Events {
		if _, err := session.Calibrate(ev); err != nil {
			return nil, nil, nil, err
		}
	}
	if opts.RulerLength > 0 {
		ev := calibration.Event{Kind: calibration.SliderChanged, Value: opts.RulerLength}
		if _, err := session.Calibrate(ev); err != nil {
			return nil, nil, nil, err
		}
	}
	if _, err := session.ConfirmCalibration(); err != nil {
		return nil, nil, nil, err
	}
	m, err := session.Scan()
	if err != nil {
		return nil, nil, nil, err
	}
	return m, session.Snapshot().Ruler, img, nil
}

// overlayPath numbers overlay files when several photos are measured.
func overlayPath(base, input string, i, n int) string {
	if n == 1 {
		return base
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return fmt.Sprintf("%s_%02d_%s%s", stem, i+1, name, ext)
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

func init() {
	rootCmd.AddCommand(measureCmd)
	filter := contour.DefaultFilter()

	measureCmd.Flags().StringP("format", "f", config.FormatText, "output format (text, json, yaml, csv)")
	measureCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	measureCmd.Flags().Int("precision", 2, "decimal places for the area in text output")
	measureCmd.Flags().Float64("pixels-per-cm", 0, "use this scale directly")
	measureCmd.Flags().Float64("ruler-length", 0, "pixels spanned by the 30 cm virtual ruler")
	measureCmd.Flags().Bool("auto", false, "calibrate from the ticks of a physical ruler in the photo")
	measureCmd.Flags().String("events", "", "YAML file of virtual ruler events to replay before confirming")
	measureCmd.Flags().String("overlay", "", "write a PNG with the outline and ruler drawn over the photo")
	measureCmd.Flags().Int("max-side", 0, "downscale photos whose longer side exceeds this (0 = off)")
	measureCmd.Flags().String("band-preset", "", "colour band preset (gray-beige, light)")
	measureCmd.Flags().Float64("min-area-fraction", filter.MinAreaFraction, "smallest accepted piece as a fraction of the photo")
	measureCmd.Flags().Float64("max-area-fraction", filter.MaxAreaFraction, "largest accepted piece as a fraction of the photo")
}
