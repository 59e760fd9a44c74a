// Package config loads gearsim settings from a YAML file. Every field has a
// default, so a missing file or an empty one is valid. Secrets come from the
// environment only.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/gearworks/internal/scene"
)

// Environment variables holding secrets.
const (
	AdminKeyEnv     = "GEARSIM_ADMIN_KEY"
	RandomOrgKeyEnv = "RANDOM_ORG_API_KEY"
)

// Config is the full gearsim configuration.
type Config struct {
	Seed           int64         `yaml:"seed"`            // 0 draws a random seed
	DBPath         string        `yaml:"db_path"`         // Empty disables persistence
	Port           int           `yaml:"port"`            // HTTP API port
	LogLevel       string        `yaml:"log_level"`       // debug, info, warn or error
	FrameInterval  time.Duration `yaml:"frame_interval"`  // Wall-clock time between frames
	Speed          float64       `yaml:"speed"`           // Initial time multiplier
	SnapshotEvery  time.Duration `yaml:"snapshot_every"`  // 0 disables periodic snapshots
	RestoreLatest  bool          `yaml:"restore_latest"`  // Resume the newest saved scene on start
	Aspect         float64       `yaml:"aspect"`          // Viewport width / height
	PlacementLimit int           `yaml:"placement_limit"` // Gear placements per client per minute
	Params         scene.Params  `yaml:"params"`

	AdminKey     string `yaml:"-"`
	RandomOrgKey string `yaml:"-"` // Enables random.org seeds
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DBPath:         "data/gears.db",
		Port:           8080,
		LogLevel:       "info",
		FrameInterval:  time.Second / 60,
		Speed:          1,
		SnapshotEvery:  5 * time.Minute,
		RestoreLatest:  true,
		Aspect:         1,
		PlacementLimit: 60,
		Params:         scene.DefaultParams(),
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
		defer f.Close()
		if err := Decode(f, &cfg); err != nil {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if key := os.Getenv(AdminKeyEnv); key != "" {
		cfg.AdminKey = key
	}
	if key := os.Getenv(RandomOrgKeyEnv); key != "" {
		cfg.RandomOrgKey = key
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Decode overlays YAML from r onto cfg. Unknown keys are rejected.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate rejects values the simulation cannot run with.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.FrameInterval <= 0 {
		return fmt.Errorf("frame_interval must be positive, got %s", c.FrameInterval)
	}
	if c.Speed < 0 {
		return fmt.Errorf("speed must not be negative, got %g", c.Speed)
	}
	if c.SnapshotEvery < 0 {
		return fmt.Errorf("snapshot_every must not be negative, got %s", c.SnapshotEvery)
	}
	if !(c.Aspect > 0) {
		return fmt.Errorf("aspect must be positive, got %g", c.Aspect)
	}
	if c.PlacementLimit <= 0 {
		return fmt.Errorf("placement_limit must be positive, got %d", c.PlacementLimit)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return c.Params.Validate()
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return l, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}
