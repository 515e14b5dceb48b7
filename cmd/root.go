package main

import (
	"context"
	"fmt"

	"ezvizswitch/internal/config"
	"ezvizswitch/internal/ezviz"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Flags
	flagConfig   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "ezviz-switch",
	Short: "EZVIZ cloud switch bridge",
	Long: `ezviz-switch logs in to the EZVIZ cloud, polls the switchable devices of
the account and exposes every capability (plug, light, alarm tone, ...) as a
toggle entity over HTTP. It also answers one-off commands from the shell.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", config.DefaultFile, "Config file path")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (env: EZVIZ_LOG_LEVEL)")
}

// newLogger builds the production logger at the configured level
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	level, err := cfg.Level()
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

// setup loads the configuration and builds the logger. The loader is
// returned so commands can write the config back.
func setup(validate bool) (*config.Config, *config.Loader, *zap.Logger, error) {
	loader := config.NewLoader(flagConfig, zap.NewNop())
	load := loader.LoadUnvalidated
	if validate {
		load = loader.Load
	}
	cfg, err := load()
	if err != nil {
		return nil, nil, nil, err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, config.NewLoader(flagConfig, logger), logger, nil
}

// connect creates a client and logs in unless the config already carries a
// session
func connect(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*ezviz.Client, error) {
	client := ezviz.NewClient(cfg.ClientOptions(), logger)
	if client.Session().Valid() {
		return client, nil
	}
	if _, err := client.Login(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("login failed: %w", err)
	}
	return client, nil
}
