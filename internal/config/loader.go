package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file
const (
	EnvEmail     = "EZVIZ_EMAIL"
	EnvPassword  = "EZVIZ_PASSWORD"
	EnvURL       = "EZVIZ_URL"
	EnvRegion    = "EZVIZ_REGION"
	EnvTimeout   = "EZVIZ_TIMEOUT"
	EnvLegacy    = "EZVIZ_LEGACY_MODE"
	EnvStateFile = "EZVIZ_STATE_FILE"
	EnvPort      = "EZVIZ_PORT"
	EnvLogLevel  = "EZVIZ_LOG_LEVEL"
)

// Loader manages configuration file loading
type Loader struct {
	path   string
	logger *zap.Logger
	getenv func(string) string
	config *Config
}

// NewLoader creates a new configuration loader for the file at path
func NewLoader(path string, logger *zap.Logger) *Loader {
	if path == "" {
		path = DefaultFile
	}
	return &Loader{
		path:   path,
		logger: logger,
		getenv: os.Getenv,
	}
}

// Load reads defaults, then the YAML file, then environment overrides, and
// validates the result. A missing file is not an error.
func (l *Loader) Load() (*Config, error) {
	cfg, err := l.LoadUnvalidated()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadUnvalidated is Load without the final Validate. Commands that do not
// talk to the cloud use it.
func (l *Loader) LoadUnvalidated() (*Config, error) {
	cfg := Default()

	l.logger.Debug("Loading config", zap.String("path", l.path))
	data, err := os.ReadFile(l.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		l.logger.Debug("Config file not found, using defaults and environment", zap.String("path", l.path))
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.Region = strings.ToLower(cfg.Region)
	l.config = cfg
	l.logger.Info("Config loaded",
		zap.String("api_url", cfg.APIURL()),
		zap.Duration("timeout", cfg.Timeout),
		zap.Bool("legacy_mode", cfg.LegacyMode))
	return cfg, nil
}

func (l *Loader) applyEnv(cfg *Config) error {
	if v := l.getenv(EnvEmail); v != "" {
		cfg.Email = v
	}
	if v := l.getenv(EnvPassword); v != "" {
		cfg.Password = v
	}
	if v := l.getenv(EnvRegion); v != "" {
		cfg.Region = v
	}
	if v := l.getenv(EnvURL); v != "" {
		cfg.URL = v
	}
	if v := l.getenv(EnvTimeout); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvTimeout, err)
		}
		cfg.Timeout = d
	}
	if v := l.getenv(EnvLegacy); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvLegacy, err)
		}
		cfg.LegacyMode = b
	}
	if v := l.getenv(EnvStateFile); v != "" {
		cfg.StateFile = v
	}
	if v := l.getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		cfg.Port = port
	}
	if v := l.getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	return nil
}

// parseDuration accepts Go durations ("45s") and plain seconds ("45")
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

// Save writes cfg back to the loader's file
func (l *Loader) Save(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	l.logger.Info("Config saved", zap.String("path", l.path))
	return nil
}

// Path returns the config file path
func (l *Loader) Path() string {
	return l.path
}

// Config returns the last loaded configuration
func (l *Loader) Config() *Config {
	return l.config
}
