package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/fabricarea/internal/server"
	"github.com/MeKo-Tech/fabricarea/internal/vision"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the measurement API",
	Long: `Start an HTTP server that measures uploaded photos.

The server provides the following endpoints:
  POST /measure        - Measure an uploaded photo
  POST /calibrate/auto - Detect the scale from ruler ticks
  GET  /ws/session     - Interactive calibration and scan session
  GET  /health         - Health check endpoint
  GET  /metrics        - Prometheus metrics

The vision backend starts in the background; measurement endpoints answer
503 until it is ready.

Examples:
  fabricarea serve
  fabricarea serve --port 8080
  fabricarea serve --host 0.0.0.0 --port 3000 --overlay-enable`,
	SilenceUsage: true,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		bindFlags(cmd.Flags(), []flagBinding{
			{"server.host", "host"},
			{"server.port", "port"},
			{"server.cors_origin", "cors-origin"},
			{"server.max_upload_mb", "max-upload-size"},
			{"server.timeout_sec", "timeout"},
			{"server.shutdown_timeout", "shutdown-timeout"},
			{"server.overlay_enabled", "overlay-enable"},
			{"output.polygon_color", "overlay-polygon-color"},
		})
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		pCfg, err := cfg.ToPipelineConfig()
		if err != nil {
			return err
		}
		colors, err := cfg.OverlayColors()
		if err != nil {
			return err
		}
		factory, err := vision.FactoryFor(cfg.Vision.Backend)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		serverConfig := server.Config{
			Host:           cfg.Server.Host,
			Port:           cfg.Server.Port,
			CORSOrigin:     cfg.Server.CORSOrigin,
			MaxUploadMB:    int64(cfg.Server.MaxUploadMB),
			TimeoutSec:     cfg.Server.TimeoutSec,
			Pipeline:       pCfg,
			OverlayEnabled: cfg.Server.OverlayEnabled,
			OverlayColors:  colors,
		}

		// Measurement endpoints report 503 until the backend is up.
		handle := vision.Open(ctx, factory)
		go func() {
			<-handle.Ready()
			if err := handle.Err(); err != nil {
				slog.Error("Vision backend failed to start", "backend", cfg.Vision.Backend, "error", err)
				return
			}
			slog.Info("Vision backend ready", "backend", cfg.Vision.Backend)
		}()

		measureServer, err := server.NewServer(serverConfig, handle)
		if err != nil {
			return fmt.Errorf("failed to initialize server: %w", err)
		}

		mux := http.NewServeMux()
		measureServer.SetupRoutes(mux)

		timeout := time.Duration(cfg.Server.TimeoutSec) * time.Second
		httpServer := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       timeout,
			WriteTimeout:      timeout,
		}

		go func() {
			slog.Info("Starting measurement server", "host", cfg.Server.Host, "port", cfg.Server.Port)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Server error", "error", err)
				cancel()
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			slog.Info("Received shutdown signal", "signal", sig.String())
		case <-ctx.Done():
			slog.Info("Context cancelled, initiating shutdown")
		}

		shutdownTimeout := cfg.Server.ShutdownTimeout
		slog.Info("Starting graceful shutdown", "timeout", fmt.Sprintf("%ds", shutdownTimeout))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(shutdownTimeout)*time.Second)
		defer shutdownCancel()

		slog.Info("Shutting down HTTP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		} else {
			slog.Info("HTTP server shutdown completed")
		}

		slog.Info("Cleaning up server resources")
		if err := measureServer.Close(); err != nil {
			slog.Error("Server cleanup error", "error", err)
		} else {
			slog.Info("Server cleanup completed")
		}

		slog.Info("Graceful shutdown completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("max-upload-size", 25, "maximum upload size in MB")
	serveCmd.Flags().Int("timeout", 30, "request timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	serveCmd.Flags().Bool("overlay-enable", false, "enable overlay image responses")
	serveCmd.Flags().String("overlay-polygon-color", "#00DC00", "overlay polygon color (hex)")
}
