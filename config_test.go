package nativeinference

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 20*time.Second, cfg.PrerollTimeout)
	assert.Equal(t, 10*time.Second, cfg.PlayTimeout)
	assert.Equal(t, 10*time.Second, cfg.PauseTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.DrainWindow)
	assert.Equal(t, "videotestsrc", cfg.TestSourceType)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative preroll timeout", func(c *Config) { c.PrerollTimeout = -time.Second }},
		{"negative drain window", func(c *Config) { c.DrainWindow = -time.Millisecond }},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }},
		{"poll interval too long", func(c *Config) { c.PollInterval = 2 * time.Second }},
		{"zero width", func(c *Config) { c.FrameWidth = 0 }},
		{"huge height", func(c *Config) { c.FrameHeight = 10000 }},
		{"empty test source", func(c *Config) { c.TestSourceType = " " }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfig_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, "pipelinectl.yaml", `
preroll_timeout: 5s
poll_interval: 50ms
frame_width: 1280
frame_height: 720
placeholder:
  r: 255
  a: 128
diagnose_plugins: [coreelements, app]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	want := DefaultConfig()
	want.PrerollTimeout = 5 * time.Second
	want.PollInterval = 50 * time.Millisecond
	want.FrameWidth = 1280
	want.FrameHeight = 720
	want.Placeholder = ColorConfig{R: 255, A: 128}
	want.DiagnosePlugins = []string{"coreelements", "app"}

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "pipelinectl.yml", "play_timeout: 3s\ntest_source_type: videotestsrc\n")

	t.Setenv("PIPELINECTL_PLAY_TIMEOUT", "7s")
	t.Setenv("PIPELINECTL_TEST_SOURCE_TYPE", "gltestsrc")
	t.Setenv("PIPELINECTL_PLACEHOLDER_G", "200")
	t.Setenv("PIPELINECTL_DIAGNOSE_ELEMENTS", "appsink,glimagesink")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 7*time.Second, cfg.PlayTimeout)
	assert.Equal(t, "gltestsrc", cfg.TestSourceType)
	assert.Equal(t, uint8(200), cfg.Placeholder.G)
	assert.Equal(t, uint8(255), cfg.Placeholder.A, "unset fields keep their value")
	assert.Equal(t, []string{"appsink", "glimagesink"}, cfg.DiagnoseElements)
	assert.Equal(t, DefaultConfig().DiagnosePlugins, cfg.DiagnosePlugins)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"unknown field", func(t *testing.T) string {
			return writeConfig(t, "c.yaml", "no_such_key: 1\n")
		}},
		{"unsupported extension", func(t *testing.T) string {
			return writeConfig(t, "c.json", "{}")
		}},
		{"missing file", func(t *testing.T) string {
			return filepath.Join(t.TempDir(), "absent.yaml")
		}},
		{"invalid value", func(t *testing.T) string {
			return writeConfig(t, "c.yaml", "poll_interval: 0s\n")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(tt.path(t))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_EmptyFileKeepsDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "empty.yaml", ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().FrameWidth, cfg.FrameWidth)
}
