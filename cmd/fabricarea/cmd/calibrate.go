package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/fabricarea/internal/config"
	"github.com/MeKo-Tech/fabricarea/internal/imageio"
	"github.com/MeKo-Tech/fabricarea/internal/pipeline"
	"github.com/MeKo-Tech/fabricarea/internal/report"
)

// calibrateCmd represents the calibrate command.
var calibrateCmd = &cobra.Command{
	Use:   "calibrate <image>",
	Short: "Detect the scale from a physical ruler in a photo",
	Long: `Detect the tick marks of a physical ruler in the photo and report the
pixels-per-centimetre scale they imply, with a confidence figure.

Examples:
  fabricarea calibrate ruler.jpg
  fabricarea calibrate ruler.jpg --format json
  fabricarea calibrate ruler.jpg --require-confident`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		bindFlags(cmd.Flags(), []flagBinding{
			{"output.format", "format"},
			{"calibration.ticks.require_confident", "require-confident"},
		})
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		pc, err := cfg.ToPipelineConfig()
		if err != nil {
			return err
		}

		h, be, err := openBackend(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() { _ = h.Close() }()

		scanner, err := pipeline.NewScanner(pc, be)
		if err != nil {
			return err
		}
		img, _, err := imageio.Load(args[0])
		if err != nil {
			return err
		}
		res, err := scanner.DetectTicks(img)
		if err != nil {
			return err
		}

		var out string
		switch cfg.Output.Format {
		case config.FormatJSON:
			b, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			out = string(b) + "\n"
		case config.FormatYAML:
			b, err := yaml.Marshal(res)
			if err != nil {
				return err
			}
			out = string(b)
		default:
			out = report.TicksText(res)
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(calibrateCmd)
	calibrateCmd.Flags().StringP("format", "f", config.FormatText, "output format (text, json, yaml)")
	calibrateCmd.Flags().Bool("require-confident", false, "fail instead of falling back on a low-confidence result")
}
