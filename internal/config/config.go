package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance for config validation.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
}

type Config struct {
	LogLevel string         `json:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
	Capture  CaptureConfig  `json:"capture"`
	Analysis AnalysisConfig `json:"analysis"`
	Spectrum SpectrumConfig `json:"spectrum"`
	Server   ServerConfig   `json:"server"`
}

// CaptureConfig holds the lifecycle timing knobs for the capture orchestrator.
type CaptureConfig struct {
	StartRetries   int `json:"start_retries" validate:"min=1,max=10"`
	RetryDelayMs   int `json:"retry_delay_ms" validate:"min=0,max=10000"`
	PollIntervalMs int `json:"poll_interval_ms" validate:"min=50,max=10000"`
	SettleDelayMs  int `json:"settle_delay_ms" validate:"min=0,max=10000"`
	StopTimeoutMs  int `json:"stop_timeout_ms" validate:"min=100,max=30000"`
}

// AnalysisConfig holds parameters forwarded to the analysis transform.
// Window, scale and downmix are passed through, not interpreted here.
type AnalysisConfig struct {
	FFTSize int    `json:"fft_size" validate:"min=64,max=32768"`
	Window  string `json:"window" validate:"oneof=hann hamming blackman bartlett none"`
	Scale   string `json:"scale" validate:"oneof=linear sqrt log"`
	Downmix string `json:"downmix" validate:"omitempty,oneof=average left"`
}

type SpectrumConfig struct {
	Bars                   int     `json:"bars" validate:"min=1,max=1024"`
	SmoothingFactor        float64 `json:"smoothing_factor" validate:"min=0,max=1"`
	OverlaySmoothingFactor float64 `json:"overlay_smoothing_factor" validate:"min=0,max=1"`
}

// ServerConfig holds the optional spectrum broadcast endpoint settings.
type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Listen  string `json:"listen" validate:"omitempty,hostname_port"`
}

// Load reads the config from disk or returns defaults
func Load() (*Config, error) {
	path := configPath()

	cfg := Default()

	// Load existing config if it exists
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Capture: CaptureConfig{
			StartRetries:   3,
			RetryDelayMs:   500,
			PollIntervalMs: 500,
			SettleDelayMs:  500,
			StopTimeoutMs:  3000,
		},
		Analysis: AnalysisConfig{
			FFTSize: 4096,
			Window:  "hann",
			Scale:   "log",
			Downmix: "average",
		},
		Spectrum: SpectrumConfig{
			Bars:                   64,
			SmoothingFactor:        0.3,
			OverlaySmoothingFactor: 0.5,
		},
		Server: ServerConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8174",
		},
	}
}

// Validate checks the config against its struct tags plus the
// constraints the tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Analysis.FFTSize&(c.Analysis.FFTSize-1) != 0 {
		return fmt.Errorf("invalid config: fft_size %d is not a power of two", c.Analysis.FFTSize)
	}
	return nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path := configPath()

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "spectro-tray", "config.json")
}
