package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// MaxDeviceNameLen is the longest name that fits a scan response AD structure.
const MaxDeviceNameLen = 29

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds application configuration
type Config struct {
	LogLevel            string        `yaml:"log_level" default:"info"`
	DeviceName          string        `yaml:"device_name" default:"periferico"`
	HCIDevice           int           `yaml:"hci_device" default:"0"`
	StrictOffset        bool          `yaml:"strict_offset" default:"false"`
	AdvertiseStartGrace time.Duration `yaml:"advertise_start_grace" default:"250ms"`
	EventBuffer         int           `yaml:"event_buffer" default:"64"`
	Samples             SamplesConfig `yaml:"samples"`
}

// SamplesConfig controls the simulated sample sources.
type SamplesConfig struct {
	Enabled  bool          `yaml:"enabled" default:"false"`
	Interval time.Duration `yaml:"interval" default:"1s"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.DeviceName == "" {
		errs = append(errs, errors.New("device_name: must not be empty"))
	}
	if len(c.DeviceName) > MaxDeviceNameLen {
		errs = append(errs, fmt.Errorf("device_name: %d bytes exceeds %d", len(c.DeviceName), MaxDeviceNameLen))
	}
	if c.HCIDevice < 0 {
		errs = append(errs, fmt.Errorf("hci_device: %d is negative", c.HCIDevice))
	}
	if c.AdvertiseStartGrace <= 0 {
		errs = append(errs, fmt.Errorf("advertise_start_grace: %s must be positive", c.AdvertiseStartGrace))
	}
	if c.EventBuffer <= 0 {
		errs = append(errs, fmt.Errorf("event_buffer: %d must be positive", c.EventBuffer))
	}
	if c.Samples.Enabled && c.Samples.Interval <= 0 {
		errs = append(errs, fmt.Errorf("samples.interval: %s must be positive", c.Samples.Interval))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
