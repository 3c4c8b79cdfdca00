// Package config loads the bluelink YAML configuration: scan and connect
// tuning, the known-device roster, and scheduled blind movements.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Device is a named blind in the configuration roster.
type Device struct {
	Address string `yaml:"address"`
	Name    string `yaml:"name"`
}

// Schedule moves one blind to a position on a cron schedule. Position uses
// the device scale (0 = open, 100 = closed).
type Schedule struct {
	Cron     string `yaml:"cron"`
	Address  string `yaml:"address"`
	Position int    `yaml:"position"`
}

// Config holds application configuration.
type Config struct {
	LogLevel       string        `yaml:"log_level" default:"info"`
	ScanDuration   time.Duration `yaml:"scan_duration"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PresenceTTL    time.Duration `yaml:"presence_ttl"`
	Devices        []Device      `yaml:"devices"`
	Schedules      []Schedule    `yaml:"schedules"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	c := &Config{}
	defaults.SetDefaults(c)
	c.applyFallbacks()
	return c
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	c := &Config{}
	defaults.SetDefaults(c)
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.applyFallbacks()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return c, nil
}

// applyFallbacks fills duration fields the defaults tag cannot express.
func (c *Config) applyFallbacks() {
	if c.ScanDuration <= 0 {
		c.ScanDuration = 10 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 15 * time.Second
	}
	if c.PresenceTTL <= 0 {
		c.PresenceTTL = 90 * time.Second
	}
}

// Validate checks device and schedule entries.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}

	for i, d := range c.Devices {
		if d.Address == "" {
			return fmt.Errorf("devices[%d]: address is required", i)
		}
	}

	for i, s := range c.Schedules {
		if s.Address == "" {
			return fmt.Errorf("schedules[%d]: address is required", i)
		}
		if s.Position < 0 || s.Position > 100 {
			return fmt.Errorf("schedules[%d]: position=%d outside [0,100]", i, s.Position)
		}
		if _, err := cron.ParseStandard(s.Cron); err != nil {
			return fmt.Errorf("schedules[%d]: invalid cron spec %q: %w", i, s.Cron, err)
		}
	}
	return nil
}

// Addresses returns the configured device addresses.
func (c *Config) Addresses() []string {
	addrs := make([]string, 0, len(c.Devices))
	for _, d := range c.Devices {
		addrs = append(addrs, d.Address)
	}
	return addrs
}
