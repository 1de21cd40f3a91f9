package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Detector DetectorConfig `yaml:"detector"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port          int   `yaml:"port"`
	MaxUploadSize int64 `yaml:"max_upload_size"`
}

// StorageConfig holds upload spool settings.
type StorageConfig struct {
	UploadDir string `yaml:"upload_dir"`
}

// DatabaseConfig holds SQLite settings for the results store. An empty
// path disables persistence.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// DetectorConfig locates the remote detection service. The base URL is
// deployment configuration, never business logic.
type DetectorConfig struct {
	BaseURL             string `yaml:"base_url"`
	ImageTimeoutSeconds int    `yaml:"image_timeout_seconds"`
	VideoTimeoutSeconds int    `yaml:"video_timeout_seconds"`
}

// AnalysisConfig holds default video sampling settings, used when a run
// does not override them.
type AnalysisConfig struct {
	FrameInterval int `yaml:"frame_interval"`
	MaxFrames     int `yaml:"max_frames"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          8080,
			MaxUploadSize: 104857600,
		},
		Storage: StorageConfig{
			UploadDir: "./uploads",
		},
		Database: DatabaseConfig{
			Path: "./geolocator.db",
		},
		Detector: DetectorConfig{
			BaseURL:             "http://localhost:5000",
			ImageTimeoutSeconds: 120,
			VideoTimeoutSeconds: 300,
		},
		Analysis: AnalysisConfig{
			FrameInterval: 3,
			MaxFrames:     10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("MAX_UPLOAD_SIZE"); v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Server.MaxUploadSize = size
		}
	}
	if v := os.Getenv("UPLOAD_DIR"); v != "" {
		c.Storage.UploadDir = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("DETECTOR_URL"); v != "" {
		c.Detector.BaseURL = v
	}
	if v := os.Getenv("FRAME_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Analysis.FrameInterval = n
		}
	}
	if v := os.Getenv("MAX_FRAMES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Analysis.MaxFrames = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Detector.BaseURL == "" {
		return fmt.Errorf("detector base URL is required")
	}
	if c.Analysis.FrameInterval < 1 {
		return fmt.Errorf("frame interval must be positive: %d", c.Analysis.FrameInterval)
	}
	if c.Analysis.MaxFrames < 1 {
		return fmt.Errorf("max frames must be positive: %d", c.Analysis.MaxFrames)
	}
	return nil
}
