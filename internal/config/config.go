// Package config holds the complete application configuration. Defaults are
// applied first, then an optional YAML file, then environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Playback PlaybackConfig `yaml:"playback" json:"playback"`
	Party    PartyConfig    `yaml:"party" json:"party"`
	Timeline TimelineConfig `yaml:"timeline" json:"timeline"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host         string        `yaml:"host" json:"host" env:"WATCHPARTY_HOST"`
	Port         int           `yaml:"port" json:"port" env:"WATCHPARTY_PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	EnableCORS   bool          `yaml:"enable_cors" json:"enable_cors"`
}

// DatabaseConfig selects and parameterizes the gorm backend
type DatabaseConfig struct {
	Type         string `yaml:"type" json:"type" env:"DATABASE_TYPE"`
	DatabasePath string `yaml:"database_path" json:"database_path" env:"WATCHPARTY_DATABASE_PATH"`
	Host         string `yaml:"host" json:"host" env:"POSTGRES_HOST"`
	Port         int    `yaml:"port" json:"port" env:"POSTGRES_PORT"`
	Username     string `yaml:"username" json:"username" env:"POSTGRES_USER"`
	Password     string `yaml:"password" json:"password" env:"POSTGRES_PASSWORD"`
	Database     string `yaml:"database" json:"database" env:"POSTGRES_DB"`
	LogQueries   bool   `yaml:"log_queries" json:"log_queries"`
}

// PlaybackConfig holds stream session tuning
type PlaybackConfig struct {
	// Resolution cap applied when the planner decides to transcode under
	// automatic quality.
	TranscodeCapResolution string `yaml:"transcode_cap_resolution" json:"transcode_cap_resolution"`
	// Resolution forced by the one-shot error escalation.
	DegradedResolution string `yaml:"degraded_resolution" json:"degraded_resolution"`
}

// PartyConfig holds sync protocol tuning. All thresholds that govern the
// follower drift loop and channel reconnects live here, not in the code.
type PartyConfig struct {
	SyncInterval     time.Duration `yaml:"sync_interval" json:"sync_interval"`
	DriftInterval    time.Duration `yaml:"drift_interval" json:"drift_interval"`
	DriftHardLimitMs int64         `yaml:"drift_hard_limit_ms" json:"drift_hard_limit_ms"`
	DriftSoftLimitMs int64         `yaml:"drift_soft_limit_ms" json:"drift_soft_limit_ms"`
	SlowRate         float64       `yaml:"slow_rate" json:"slow_rate"`
	FastRate         float64       `yaml:"fast_rate" json:"fast_rate"`
	ReconnectBase    time.Duration `yaml:"reconnect_base" json:"reconnect_base"`
	ReconnectCap     time.Duration `yaml:"reconnect_cap" json:"reconnect_cap"`
	PingInterval     time.Duration `yaml:"ping_interval" json:"ping_interval"`
}

// TimelineConfig holds position reporting tuning
type TimelineConfig struct {
	Endpoint       string        `yaml:"endpoint" json:"endpoint" env:"WATCHPARTY_TIMELINE_ENDPOINT"`
	ReportInterval time.Duration `yaml:"report_interval" json:"report_interval"`
	SuppressWindow time.Duration `yaml:"suppress_window" json:"suppress_window"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level" env:"LOG_LEVEL"`
	JSON  bool   `yaml:"json" json:"json"`
}

var (
	mu      sync.RWMutex
	current = Default()
)

// Default returns a configuration with all default values set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			EnableCORS:   true,
		},
		Database: DatabaseConfig{
			Type:         "sqlite",
			DatabasePath: "./watchparty-data/watchparty.db",
			Host:         "localhost",
			Port:         5432,
			Username:     "watchparty",
			Database:     "watchparty",
		},
		Playback: PlaybackConfig{
			TranscodeCapResolution: "1080p",
			DegradedResolution:     "720p",
		},
		Party: PartyConfig{
			SyncInterval:     3 * time.Second,
			DriftInterval:    2 * time.Second,
			DriftHardLimitMs: 5000,
			DriftSoftLimitMs: 1500,
			SlowRate:         0.95,
			FastRate:         1.05,
			ReconnectBase:    time.Second,
			ReconnectCap:     30 * time.Second,
			PingInterval:     30 * time.Second,
		},
		Timeline: TimelineConfig{
			Endpoint:       "http://localhost:8080/api/v1/timeline/",
			ReportInterval: 10 * time.Second,
			SuppressWindow: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from an optional YAML file and the environment.
// A missing path is not an error; defaults are used.
func Load(path string) error {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	mu.Lock()
	current = cfg
	mu.Unlock()
	return nil
}

// Get returns the active configuration.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Set replaces the active configuration (tests only).
func Set(cfg *Config) {
	mu.Lock()
	current = cfg
	mu.Unlock()
}

func applyEnv(cfg *Config) {
	envString(&cfg.Server.Host, "WATCHPARTY_HOST")
	envInt(&cfg.Server.Port, "WATCHPARTY_PORT")
	envString(&cfg.Database.Type, "DATABASE_TYPE")
	envString(&cfg.Database.DatabasePath, "WATCHPARTY_DATABASE_PATH")
	envString(&cfg.Database.Host, "POSTGRES_HOST")
	envInt(&cfg.Database.Port, "POSTGRES_PORT")
	envString(&cfg.Database.Username, "POSTGRES_USER")
	envString(&cfg.Database.Password, "POSTGRES_PASSWORD")
	envString(&cfg.Database.Database, "POSTGRES_DB")
	envString(&cfg.Timeline.Endpoint, "WATCHPARTY_TIMELINE_ENDPOINT")
	envString(&cfg.Logging.Level, "LOG_LEVEL")
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &ValidationError{Field: "server.port", Message: "must be between 1 and 65535"}
	}
	if c.Database.Type != "sqlite" && c.Database.Type != "postgres" {
		return &ValidationError{Field: "database.type", Message: "must be sqlite or postgres"}
	}
	if c.Party.DriftSoftLimitMs <= 0 || c.Party.DriftHardLimitMs <= c.Party.DriftSoftLimitMs {
		return &ValidationError{Field: "party.drift_hard_limit_ms", Message: "hard limit must exceed soft limit"}
	}
	if c.Party.SlowRate <= 0 || c.Party.SlowRate >= 1.0 {
		return &ValidationError{Field: "party.slow_rate", Message: "must be between 0 and 1"}
	}
	if c.Party.FastRate <= 1.0 {
		return &ValidationError{Field: "party.fast_rate", Message: "must be greater than 1"}
	}
	if c.Party.ReconnectBase <= 0 || c.Party.ReconnectCap < c.Party.ReconnectBase {
		return &ValidationError{Field: "party.reconnect_cap", Message: "must be at least reconnect_base"}
	}
	if c.Timeline.SuppressWindow > c.Timeline.ReportInterval {
		return &ValidationError{Field: "timeline.suppress_window", Message: "must not exceed report_interval"}
	}
	return nil
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error in field '" + e.Field + "': " + e.Message
}
