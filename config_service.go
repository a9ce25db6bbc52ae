package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// appDirName is the per-user directory holding config and the download cache.
const appDirName = ".oscilloscope-player"

// Config holds persistent user preferences.
// Stored as YAML at ~/.oscilloscope-player/config.yaml.
type Config struct {
	Timebase           int     `yaml:"timebase"`       // look-back window in frames
	VectorSamples      int     `yaml:"vector_samples"` // points per vectorscope frame
	HistorySize        int     `yaml:"history_size"`   // ring capacity in samples (all channels)
	BlockSize          int     `yaml:"block_size"`     // frames per audio callback
	SampleRate         float64 `yaml:"sample_rate"`
	GuardOffset        int     `yaml:"guard_offset"` // frames
	Margin             float64 `yaml:"margin"`       // pixels
	FPS                int     `yaml:"fps"`
	MaxExtrapolationMs int     `yaml:"max_extrapolation_ms"`
	Vectorscope        *bool   `yaml:"vectorscope"` // nil means default (on)
	Hotkey             string  `yaml:"hotkey"`      // e.g. "ctrl+shift+p"
	LogLevel           string  `yaml:"log_level"`
	MetricsAddr        string  `yaml:"metrics_addr"` // empty disables /metrics
	LaunchAtLogin      bool    `yaml:"launch_at_login"`
	Tracks             []Track `yaml:"tracks"`
}

// defaultConfig returns factory defaults.
func defaultConfig() Config {
	on := true
	return Config{
		Timebase:           6000,
		VectorSamples:      1024,
		HistorySize:        4194304,
		BlockSize:          128,
		SampleRate:         44100,
		GuardOffset:        2,
		Margin:             10,
		FPS:                60,
		MaxExtrapolationMs: 250,
		Vectorscope:        &on,
		Hotkey:             "ctrl+shift+p",
		LogLevel:           "info",
	}
}

// VectorscopeEnabled resolves the optional flag.
func (c Config) VectorscopeEnabled() bool { return c.Vectorscope == nil || *c.Vectorscope }

// MaxExtrapolation is MaxExtrapolationMs as a duration.
func (c Config) MaxExtrapolation() time.Duration {
	return time.Duration(c.MaxExtrapolationMs) * time.Millisecond
}

// HistoryFrames is the ring length in stereo frames.
func (c Config) HistoryFrames() int {
	return nextPow2(c.HistorySize) / engineChannels
}

// ConfigService loads and saves user configuration.
type ConfigService struct {
	path string
	log  zerolog.Logger
}

// NewConfigService creates a ConfigService. An empty path selects the standard
// location under the home directory.
func NewConfigService(path string, log zerolog.Logger) *ConfigService {
	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, appDirName, "config.yaml")
	}
	return &ConfigService{path: path, log: log}
}

// newConfigServiceAt creates a ConfigService with a custom path (tests only).
func newConfigServiceAt(path string) *ConfigService {
	return &ConfigService{path: path, log: zerolog.Nop()}
}

// Path is the config file location.
func (c *ConfigService) Path() string { return c.path }

// Load reads config from disk. Returns defaults if the file doesn't exist.
// If the file is corrupt it logs the error and writes fresh defaults.
func (c *ConfigService) Load() Config {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return defaultConfig()
	}
	if err != nil {
		c.log.Warn().Err(err).Str("path", c.path).Msg("read error, using defaults")
		return defaultConfig()
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		c.log.Warn().Err(err).Str("path", c.path).Msg("parse error, resetting to defaults")
		defaults := defaultConfig()
		if err := c.Save(defaults); err != nil {
			c.log.Error().Err(err).Msg("could not overwrite corrupt config")
		}
		return defaults
	}
	return cfg.withDefaults()
}

// withDefaults fills zero-valued fields from defaultConfig.
func (cfg Config) withDefaults() Config {
	d := defaultConfig()
	if cfg.Timebase <= 0 {
		cfg.Timebase = d.Timebase
	}
	if cfg.VectorSamples <= 0 {
		cfg.VectorSamples = d.VectorSamples
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = d.HistorySize
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = d.BlockSize
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = d.SampleRate
	}
	if cfg.GuardOffset <= 0 {
		cfg.GuardOffset = d.GuardOffset
	}
	if cfg.Margin <= 0 {
		cfg.Margin = d.Margin
	}
	if cfg.FPS <= 0 {
		cfg.FPS = d.FPS
	}
	if cfg.MaxExtrapolationMs <= 0 {
		cfg.MaxExtrapolationMs = d.MaxExtrapolationMs
	}
	if cfg.Vectorscope == nil {
		cfg.Vectorscope = d.Vectorscope
	}
	if cfg.Hotkey == "" {
		cfg.Hotkey = d.Hotkey
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = d.LogLevel
	}
	return cfg
}

// Save writes the config to disk atomically (write to temp, then rename).
func (c *ConfigService) Save(cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("config: rename: %w", err)
	}
	return nil
}

// Update loads the file, applies fn and saves the result.
func (c *ConfigService) Update(fn func(*Config)) error {
	cfg := c.Load()
	fn(&cfg)
	return c.Save(cfg)
}
