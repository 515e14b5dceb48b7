package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ezvizswitch/internal/api"
	"ezvizswitch/internal/config"
	"ezvizswitch/internal/coordinator"
	"ezvizswitch/internal/ezviz"
	"ezvizswitch/internal/host"
	"ezvizswitch/internal/switches"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var flagLegacy bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll the EZVIZ cloud and serve the switch API",
	Long: `Run the bridge: log in, fetch the device inventory, create one toggle
entity per switchable capability and keep them current. The HTTP API and
the WebSocket stream listen on the configured port.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&flagLegacy, "legacy", false, "One entity per device keyed by serial (env: EZVIZ_LEGACY_MODE)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, _, logger, err := setup(true)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cmd.Flags().Changed("legacy") {
		cfg.LegacyMode = flagLegacy
	}
	mode := switches.PerCapability
	if cfg.LegacyMode {
		mode = switches.Legacy
	}

	logger.Info("Starting EZVIZ switch bridge",
		zap.String("api_url", cfg.APIURL()),
		zap.String("mode", mode.String()),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Int("port", cfg.Port))

	client := ezviz.NewClient(cfg.ClientOptions(), logger)
	defer client.Close()

	coord := coordinator.New(client, coordinatorOptions(cfg), logger)

	h := host.New(client, coord, host.Options{
		Mode:         mode,
		ScanInterval: cfg.ScanInterval,
		Store:        host.NewStateStore(cfg.StateFile, logger),
	}, logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := h.Setup(ctx); err != nil {
		logger.Error("Setup failed", zap.Error(err))
		return err
	}

	server := api.NewServer(h, ezviz.NewDoorbellClient(client), coord, logger, cfg.Port, cfg.Timeout)
	if err := server.Start(); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Run(ctx)
	}()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Bridge running. Press Ctrl+C to exit.",
		zap.Int("entities", h.Registry().Len()))

	<-sigChan
	logger.Info("Shutting down gracefully...")

	if err := server.Stop(); err != nil {
		logger.Error("Failed to stop API server", zap.Error(err))
	}
	cancel()
	<-done

	logger.Info("Shutdown complete")
	return nil
}

// coordinatorOptions bounds each poll by the coordinator's own timeout; the
// configured timeout applies to single HTTP calls
func coordinatorOptions(cfg *config.Config) coordinator.Options {
	return coordinator.Options{
		Interval: cfg.PollInterval,
		Timeout:  coordinator.DefaultTimeout,
	}
}
