package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/fabricarea/internal/config"
	"github.com/MeKo-Tech/fabricarea/internal/version"
	"github.com/MeKo-Tech/fabricarea/internal/vision"
)

var (
	// Global configuration loader.
	configLoader *config.Loader
	// Global configuration.
	globalConfig *config.Config
	// Configuration file path.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "fabricarea",
	Short: "Measure the area of garment pattern pieces from photos",
	Long: `fabricarea measures the surface area of a garment pattern piece photographed
on a contrasting background.

The scale comes from a virtual 30 cm ruler placed over the photo, or from the
tick marks of a physical ruler lying next to the piece. The piece is segmented
by colour, its outline traced and simplified, and the enclosed area reported in
square centimetres and square metres.

Examples:
  fabricarea measure piece.jpg --ruler-length 412
  fabricarea measure piece.jpg --auto --format json
  fabricarea calibrate ruler.jpg
  fabricarea serve --port 8080`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, _ := cmd.Flags().GetBool("version")
		if v {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return nil
		}
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetRootCommand returns the root command for testing purposes.
func GetRootCommand() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is search in ., $HOME/.config/fabricarea, $HOME, /etc/fabricarea)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("backend", vision.NameNative, "vision backend (native, gocv)")
	rootCmd.Flags().Bool("version", false, "print version information and exit")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		bindFlags(cmd.Root().PersistentFlags(), []flagBinding{
			{"verbose", "verbose"},
			{"log_level", "log-level"},
			{"vision.backend", "backend"},
		})
		if err := initConfig(); err != nil {
			return err
		}
		setupLogging(globalConfig)
		return nil
	}
}

// setupLogging installs a JSON slog handler on stderr so stdout stays
// free for results.
func setupLogging(cfg *config.Config) {
	var logLevel slog.Level
	if cfg.Verbose {
		logLevel = slog.LevelDebug
	} else {
		switch cfg.LogLevel {
		case "debug":
			logLevel = slog.LevelDebug
		case "warn":
			logLevel = slog.LevelWarn
		case "error":
			logLevel = slog.LevelError
		default:
			logLevel = slog.LevelInfo
		}
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() error {
	configLoader = config.NewLoader()

	var err error
	if cfgFile != "" {
		globalConfig, err = configLoader.LoadWithFile(cfgFile)
	} else {
		globalConfig, err = configLoader.Load()
	}
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	return nil
}

// GetConfig returns the configuration including flags bound after the
// initial load.
func GetConfig() (*config.Config, error) {
	if globalConfig == nil {
		if err := initConfig(); err != nil {
			return nil, err
		}
	}

	var cfg config.Config
	if err := GetConfigLoader().Viper().Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling updated configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// GetConfigLoader returns the global configuration loader.
func GetConfigLoader() *config.Loader {
	if configLoader == nil {
		configLoader = config.NewLoader()
	}
	return configLoader
}

type flagBinding struct {
	key  string
	flag string
}

// bindFlags binds flags to viper keys. Binding happens when a command runs
// so commands sharing a key do not override each other.
func bindFlags(flags *pflag.FlagSet, bindings []flagBinding) {
	for _, b := range bindings {
		if err := viper.BindPFlag(b.key, flags.Lookup(b.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", b.flag, err))
		}
	}
}

// openBackend starts the configured vision backend and waits for it.
func openBackend(ctx context.Context, cfg *config.Config) (*vision.Handle, vision.Backend, error) {
	factory, err := vision.FactoryFor(cfg.Vision.Backend)
	if err != nil {
		return nil, nil, err
	}
	h := vision.Open(ctx, factory)
	waitCtx := ctx
	if cfg.Vision.InitTimeoutSec > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Vision.InitTimeoutSec)*time.Second)
		defer cancel()
	}
	be, err := h.Wait(waitCtx)
	if err != nil {
		return nil, nil, fmt.Errorf("vision backend %q: %w", cfg.Vision.Backend, err)
	}
	slog.Debug("vision backend ready", "backend", be.Name())
	return h, be, nil
}
