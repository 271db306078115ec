// Package config loads wlrfbd's layered configuration: compiled-in
// defaults, then an optional YAML file, then environment variables, with
// CLI flags (bound in cmd/wlrfbd) taking final precedence.
package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config mirrors the configuration record the core accepts, plus the
// ambient fields (listener address, logging) a standalone daemon needs that
// the core itself doesn't care about.
type Config struct {
	// Capture/keymap parameters the core consumes directly.
	Layout               string  `yaml:"layout" envconfig:"LAYOUT"`
	Variant              string  `yaml:"variant" envconfig:"VARIANT"`
	RateLimitHz          float64 `yaml:"rate_limit_hz" envconfig:"RATE_LIMIT_HZ"`
	SmootherTimeConstant float64 `yaml:"smoother_time_constant_seconds" envconfig:"SMOOTHER_TIME_CONSTANT_SECONDS"`
	PreferDmabuf         bool    `yaml:"prefer_dmabuf" envconfig:"PREFER_DMABUF"`
	OverlayCursor        bool    `yaml:"overlay_cursor" envconfig:"OVERLAY_CURSOR"`

	// PixelFormat is the byte order captured frames are assumed to arrive
	// in ("bgra" or "rgba"). The capture protocols advertise a wire format
	// but not reliably enough to trust for channel order, so this stays an
	// operator knob rather than autodetection.
	PixelFormat string `yaml:"pixel_format" envconfig:"PIXEL_FORMAT"`

	// Ambient daemon concerns.
	ListenAddr    string `yaml:"listen_addr" envconfig:"LISTEN_ADDR"`
	WebSocketAddr string `yaml:"websocket_addr" envconfig:"WEBSOCKET_ADDR"`
	PreSharedKey  string `yaml:"preshared_key" envconfig:"PRESHARED_KEY"`
	LogLevel      string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogFormat     string `yaml:"log_format" envconfig:"LOG_FORMAT"`
}

// envPrefix is the variable prefix envconfig binds against, e.g.
// WLRFB_RATE_LIMIT_HZ.
const envPrefix = "WLRFB"

// Default returns the compiled-in baseline configuration.
func Default() *Config {
	return &Config{
		Layout:               "us",
		RateLimitHz:          20,
		SmootherTimeConstant: 0.5,
		PreferDmabuf:         true,
		OverlayCursor:        false,
		PixelFormat:          "bgra",
		ListenAddr:           ":5900",
		WebSocketAddr:        ":5901",
		LogLevel:             "info",
		LogFormat:            "text",
	}
}

// Load builds the layered configuration: defaults, then an optional YAML
// file at path (skipped entirely if path is empty), then environment
// variables prefixed WLRFB_. CLI flags are applied by the caller afterward
// since cobra owns flag parsing in cmd/wlrfbd.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("config: environment overlay: %w", err)
	}

	return cfg, nil
}

// Validate reports a descriptive error for configuration values the core
// cannot run with, rather than letting a zero rate limit surface as a
// confusing downstream panic. An empty pre-shared key is valid: the RFB
// handshake then offers no authentication.
func (c *Config) Validate() error {
	if c.RateLimitHz <= 0 {
		return fmt.Errorf("config: rate_limit_hz must be positive, got %v", c.RateLimitHz)
	}
	if c.SmootherTimeConstant <= 0 {
		return fmt.Errorf("config: smoother_time_constant_seconds must be positive, got %v", c.SmootherTimeConstant)
	}
	if c.Layout == "" {
		return fmt.Errorf("config: layout must not be empty")
	}
	if c.PixelFormat != "bgra" && c.PixelFormat != "rgba" {
		return fmt.Errorf("config: pixel_format must be bgra or rgba, got %q", c.PixelFormat)
	}
	return nil
}
