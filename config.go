package nativeinference

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/diagnostics"
	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/transition"
)

// EnvPrefix prefixes every environment override (PIPELINECTL_PREROLL_TIMEOUT, ...).
const EnvPrefix = "PIPELINECTL"

// Config holds the controller configuration.
//
// Zero timeouts mean "use the hard ceiling" (preroll 20s, play 10s,
// pause 10s); larger values are clamped to the ceiling at use.
type Config struct {
	PrerollTimeout time.Duration `yaml:"preroll_timeout" envconfig:"PREROLL_TIMEOUT"`
	PlayTimeout    time.Duration `yaml:"play_timeout" envconfig:"PLAY_TIMEOUT"`
	PauseTimeout   time.Duration `yaml:"pause_timeout" envconfig:"PAUSE_TIMEOUT"`

	// PollInterval is the wait between two state queries of an
	// asynchronous transition.
	PollInterval time.Duration `yaml:"poll_interval" envconfig:"POLL_INTERVAL"`

	// DrainWindow bounds each bus drain after a failure (clamped to 100-500ms).
	DrainWindow time.Duration `yaml:"drain_window" envconfig:"DRAIN_WINDOW"`

	// Frame bridge buffer size and placeholder fill.
	FrameWidth  int         `yaml:"frame_width" envconfig:"FRAME_WIDTH"`
	FrameHeight int         `yaml:"frame_height" envconfig:"FRAME_HEIGHT"`
	Placeholder ColorConfig `yaml:"placeholder" envconfig:"PLACEHOLDER"`

	// TestSourceType is the element type SetForegroundColor looks up.
	TestSourceType string `yaml:"test_source_type" envconfig:"TEST_SOURCE_TYPE"`

	// Names reported by Diagnose.
	DiagnoseElements []string `yaml:"diagnose_elements" envconfig:"DIAGNOSE_ELEMENTS"`
	DiagnosePlugins  []string `yaml:"diagnose_plugins" envconfig:"DIAGNOSE_PLUGINS"`
}

// ColorConfig is an RGBA colour.
type ColorConfig struct {
	R uint8 `yaml:"r" envconfig:"R"`
	G uint8 `yaml:"g" envconfig:"G"`
	B uint8 `yaml:"b" envconfig:"B"`
	A uint8 `yaml:"a" envconfig:"A"`
}

// Color converts the colour for image consumers.
func (c ColorConfig) Color() color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: c.A}
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		PrerollTimeout: transition.PrerollCeiling,
		PlayTimeout:    transition.PlayCeiling,
		PauseTimeout:   transition.PauseCeiling,
		PollInterval:   transition.DefaultPollInterval,
		DrainWindow:    diagnostics.DefaultWindow,
		FrameWidth:     640,
		FrameHeight:    480,
		Placeholder:    ColorConfig{R: 0, G: 0, B: 0, A: 255},
		TestSourceType: "videotestsrc",
		DiagnoseElements: []string{
			"videotestsrc", "videoconvert", "videoscale", "appsink", "autovideosink",
			"glimagesink", "xvimagesink", "v4l2src", "ahcsrc", "decodebin",
		},
		DiagnosePlugins: []string{
			"coreelements", "videotestsrc", "videoconvertscale", "app", "playback",
			"autodetect", "opengl", "video4linux2", "androidmedia",
		},
	}
}

// Validate checks the configuration (fail-fast, at construction).
func (c Config) Validate() error {
	for name, d := range map[string]time.Duration{
		"preroll_timeout": c.PrerollTimeout,
		"play_timeout":    c.PlayTimeout,
		"pause_timeout":   c.PauseTimeout,
		"drain_window":    c.DrainWindow,
	} {
		if d < 0 {
			return fmt.Errorf("invalid %s %s (must not be negative)", name, d)
		}
	}

	if c.PollInterval <= 0 || c.PollInterval > time.Second {
		return fmt.Errorf("invalid poll_interval %s (must be within (0, 1s])", c.PollInterval)
	}
	if c.FrameWidth <= 0 || c.FrameHeight <= 0 || c.FrameWidth > 8192 || c.FrameHeight > 8192 {
		return fmt.Errorf("invalid frame size %dx%d (must be within 1-8192)", c.FrameWidth, c.FrameHeight)
	}
	if strings.TrimSpace(c.TestSourceType) == "" {
		return errors.New("test_source_type is required")
	}
	return nil
}

// LoadConfig builds a configuration from defaults, an optional YAML file
// and PIPELINECTL_* environment overrides, in that order, then validates it.
// An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile decodes a YAML file over cfg with strict parsing: unknown
// fields are rejected.
func loadFile(path string, cfg *Config) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	return nil
}
