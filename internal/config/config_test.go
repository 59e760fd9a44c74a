package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/gearworks/internal/scene"
)

func TestDefault(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestDecode(t *testing.T) {
	cfg := Default()
	err := Decode(strings.NewReader(`
seed: 99
port: 9000
frame_interval: 20ms
snapshot_every: 0s
params:
  shape: heart
  show_teeth: true
`), &cfg)
	require.NoError(t, err)

	want := Default()
	want.Seed = 99
	want.Port = 9000
	want.FrameInterval = 20 * time.Millisecond
	want.SnapshotEvery = 0
	want.Params.Shape = scene.ShapeHeart
	want.Params.ShowTeeth = true
	if d := cmp.Diff(want, cfg); d != "" {
		t.Error(d)
	}
}

func TestDecodeEmpty(t *testing.T) {
	cfg := Default()
	require.NoError(t, Decode(strings.NewReader(""), &cfg))
	assert.Equal(t, Default(), cfg)
}

func TestDecodeUnknownField(t *testing.T) {
	cfg := Default()
	assert.Error(t, Decode(strings.NewReader("colour: red\n"), &cfg))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"port", func(c *Config) { c.Port = 0 }},
		{"interval", func(c *Config) { c.FrameInterval = 0 }},
		{"speed", func(c *Config) { c.Speed = -1 }},
		{"snapshot", func(c *Config) { c.SnapshotEvery = -time.Second }},
		{"aspect", func(c *Config) { c.Aspect = 0 }},
		{"limit", func(c *Config) { c.PlacementLimit = 0 }},
		{"level", func(c *Config) { c.LogLevel = "loud" }},
		{"shape", func(c *Config) { c.Params.Shape = "blob" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gearsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\nport: 7000\n"), 0o644))
	t.Setenv(AdminKeyEnv, "token")
	t.Setenv(RandomOrgKeyEnv, "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "token", cfg.AdminKey)
	assert.Empty(t, cfg.RandomOrgKey)
	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("port: -1\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}
