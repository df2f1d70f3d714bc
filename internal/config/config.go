// Package config loads the repcounter configuration: YAML file, then
// environment overrides, then validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/repcounter/internal/counter"
	"github.com/ayusman/repcounter/internal/emitter"
	"github.com/ayusman/repcounter/internal/pose"
	"github.com/ayusman/repcounter/internal/session"
	"github.com/ayusman/repcounter/internal/video"
)

// Config represents the complete repcounter configuration
type Config struct {
	DataDir string             `yaml:"data_dir"`
	Server  ServerConfig       `yaml:"server"`
	Pose    pose.Config        `yaml:"pose"`
	Counter counter.Thresholds `yaml:"counter"`
	Video   video.Config       `yaml:"video"`
	Session session.Config     `yaml:"session"`
	MQTT    emitter.Config     `yaml:"mqtt"`
	Kiosk   KioskConfig        `yaml:"kiosk"`
}

// ServerConfig contains HTTP settings
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
	// ShutdownTimeoutS is the graceful shutdown timeout in seconds.
	ShutdownTimeoutS int `yaml:"shutdown_timeout_s"`
}

// KioskConfig contains settings for the local camera loop
type KioskConfig struct {
	CameraID    int `yaml:"camera_id"`
	FPS         int `yaml:"fps"`
	JPEGQuality int `yaml:"jpeg_quality"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return &Config{
		DataDir: filepath.Join(home, ".repcounter"),
		Server: ServerConfig{
			Addr:             ":8080",
			ShutdownTimeoutS: 5,
		},
		Pose:    pose.DefaultConfig(),
		Counter: counter.DefaultThresholds(),
		Video:   video.DefaultConfig(),
		MQTT:    emitter.DefaultConfig(),
		Kiosk: KioskConfig{
			FPS:         15,
			JPEGQuality: 80,
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DBPath returns the SQLite database location.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "repcounter.db")
}

// OutputDir returns where API video jobs write their results.
func (c *Config) OutputDir() string {
	if c.Video.OutputDir != "" {
		return c.Video.OutputDir
	}
	return filepath.Join(c.DataDir, "videos")
}

func (c *Config) applyEnv() error {
	c.Server.Addr = getEnv("REPCOUNTER_ADDR", c.Server.Addr)
	c.DataDir = getEnv("REPCOUNTER_DATA_DIR", c.DataDir)
	c.MQTT.Broker = getEnv("REPCOUNTER_MQTT_BROKER", c.MQTT.Broker)

	if v := os.Getenv("REPCOUNTER_SHARED_COUNTER"); v != "" {
		shared, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("REPCOUNTER_SHARED_COUNTER: %w", err)
		}
		c.Session.Shared = shared
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
