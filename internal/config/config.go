package config

import (
	"fmt"
	"time"

	"ezvizswitch/internal/ezviz"

	"go.uber.org/zap/zapcore"
)

// Regions accepted in the region field
const (
	RegionEU     = "eu"
	RegionRussia = "ru"
	RegionCustom = "custom"
)

// Defaults applied before the file and the environment are read
const (
	DefaultFile         = "ezviz.yaml"
	DefaultPollInterval = 30 * time.Second
	DefaultScanInterval = 5 * time.Second
	DefaultStateFile    = "ezviz_states.json"
	DefaultPort         = 8081
	DefaultLogLevel     = "info"
)

// Config represents the ezviz.yaml structure
type Config struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	// Region selects the API host: eu, ru or custom (uses URL)
	Region string `yaml:"region"`
	URL    string `yaml:"url"`

	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	ScanInterval time.Duration `yaml:"scan_interval"`

	// LegacyMode creates one entity per device instead of one per capability
	LegacyMode bool   `yaml:"legacy_mode"`
	StateFile  string `yaml:"state_file"`
	Port       int    `yaml:"port"`
	LogLevel   string `yaml:"log_level"`

	// Tokens from an earlier login, written by the login command
	SessionID   string `yaml:"session_id,omitempty"`
	RfSessionID string `yaml:"rf_session_id,omitempty"`
}

// Default returns a Config with every default filled in
func Default() *Config {
	return &Config{
		Region:       RegionEU,
		Timeout:      ezviz.DefaultTimeout,
		PollInterval: DefaultPollInterval,
		ScanInterval: DefaultScanInterval,
		StateFile:    DefaultStateFile,
		Port:         DefaultPort,
		LogLevel:     DefaultLogLevel,
	}
}

// APIURL resolves the region to an API host. An explicit URL always wins.
func (c *Config) APIURL() string {
	if c.URL != "" {
		return c.URL
	}
	if c.Region == RegionRussia {
		return ezviz.RussiaURL
	}
	return ezviz.EUURL
}

// Session returns the stored session tokens
func (c *Config) Session() ezviz.Session {
	return ezviz.Session{SessionID: c.SessionID, RfSessionID: c.RfSessionID}
}

// ClientOptions builds the EZVIZ client options
func (c *Config) ClientOptions() ezviz.Options {
	return ezviz.Options{
		Email:    c.Email,
		Password: c.Password,
		APIURL:   c.APIURL(),
		Timeout:  c.Timeout,
		Session:  c.Session(),
	}
}

// Level parses LogLevel
func (c *Config) Level() (zapcore.Level, error) {
	return zapcore.ParseLevel(c.LogLevel)
}

// Validate checks the loaded configuration
func (c *Config) Validate() error {
	if c.Email == "" {
		return fmt.Errorf("email is required")
	}
	if c.Password == "" {
		return fmt.Errorf("password is required")
	}

	switch c.Region {
	case RegionEU, RegionRussia:
	case RegionCustom:
		if c.URL == "" {
			return fmt.Errorf("region %q requires url", RegionCustom)
		}
	default:
		return fmt.Errorf("unknown region %q (want %s, %s or %s)", c.Region, RegionEU, RegionRussia, RegionCustom)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.ScanInterval <= 0 {
		return fmt.Errorf("scan_interval must be positive, got %s", c.ScanInterval)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if _, err := c.Level(); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	return nil
}
