// Package config loads the daemon and CLI configuration from a YAML file
// and maps it onto the blink policy and the controller admission filter.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/sigreer/ledgod/internal/device"
	"github.com/sigreer/ledgod/internal/engine"
)

const (
	// DefaultScanInterval paces the monitor loop when no interval is
	// configured.
	DefaultScanInterval = 10 * time.Second

	// MinScanInterval is the floor applied to configured intervals; a
	// tighter loop hammers sysfs for no gain.
	MinScanInterval = 5 * time.Second
)

// Config is the on-disk configuration. Durations are whole seconds in the
// file.
type Config struct {
	// ScanInterval is the pause between monitor passes, in seconds.
	ScanInterval int `yaml:"scan_interval"`

	// LogLevel is a logrus level name ("debug", "info", ...).
	LogLevel string `yaml:"log_level,omitempty"`

	// BlinkOnInit blinks rebuild during resync, check and repair passes.
	BlinkOnInit bool `yaml:"blink_on_init"`

	// BlinkOnMigration blinks rebuild while an array reshapes.
	BlinkOnMigration bool `yaml:"blink_on_migration"`

	// RebuildBlinkOnAll blinks every member during a recovery, not just
	// the drive being rebuilt.
	RebuildBlinkOnAll bool `yaml:"rebuild_blink_on_all"`

	// RaidMembersOnly restricts monitoring to drives inside md arrays.
	RaidMembersOnly bool `yaml:"raid_members_only"`

	// Allowlist admits exactly the listed controller sysfs paths. When
	// non-empty it takes precedence over the excludelist.
	Allowlist []string `yaml:"allowlist,omitempty"`

	// Excludelist rejects the listed controller sysfs paths.
	Excludelist []string `yaml:"excludelist,omitempty"`

	// Database is the path of the event history database.
	Database string `yaml:"database,omitempty"`
}

var defaultConfig = Config{
	ScanInterval:      int(DefaultScanInterval / time.Second),
	LogLevel:          "warning",
	BlinkOnInit:       true,
	BlinkOnMigration:  true,
	RebuildBlinkOnAll: true,
	RaidMembersOnly:   false,
	Database:          "/var/lib/ledgod/ledgod.db",
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := defaultConfig
	return &cfg
}

func candidatePaths() []string {
	return []string{
		"/etc/ledgod/ledgod.conf",
		filepath.Join(os.Getenv("HOME"), ".config/ledgod/ledgod.conf"),
	}
}

// Load reads the configuration at path, or the first default location that
// exists when path is empty. A missing file yields the built-in defaults; a
// malformed file is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		for _, c := range candidatePaths() {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}

	cfg := defaultConfig
	if path == "" {
		log.Debug("no config file found, using built-in defaults")
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	if c.ScanInterval <= 0 {
		c.ScanInterval = int(DefaultScanInterval / time.Second)
	} else if time.Duration(c.ScanInterval)*time.Second < MinScanInterval {
		log.WithField("scan_interval", c.ScanInterval).
			Warn("scan interval below minimum, clamping")
		c.ScanInterval = int(MinScanInterval / time.Second)
	}
	if len(c.Allowlist) > 0 && len(c.Excludelist) > 0 {
		log.Warn("both allowlist and excludelist configured, allowlist takes precedence")
	}
	if c.Database == "" {
		c.Database = defaultConfig.Database
	}
}

// Interval returns the monitor pause as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.ScanInterval) * time.Second
}

// Policy maps the blink flags onto the derivation policy.
func (c *Config) Policy() engine.Policy {
	return engine.Policy{
		BlinkOnInit:       c.BlinkOnInit,
		BlinkOnMigration:  c.BlinkOnMigration,
		RebuildBlinkOnAll: c.RebuildBlinkOnAll,
		RaidMembersOnly:   c.RaidMembersOnly,
	}
}

// Filter maps the path lists onto the controller admission filter.
func (c *Config) Filter() device.Filter {
	return device.Filter{
		Allowlist:   c.Allowlist,
		Excludelist: c.Excludelist,
	}
}

// ApplyLogLevel sets the global log level from the configured name. An
// unknown name is reported and leaves the level untouched.
func (c *Config) ApplyLogLevel() error {
	if c.LogLevel == "" {
		return nil
	}
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	log.SetLevel(level)
	return nil
}
