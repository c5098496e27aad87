package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// GetConnectionString builds a pgx connection string
func (d *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// FeaturesConfig holds background task tuning
type FeaturesConfig struct {
	BeaconInactiveThresholdMinutes int  `yaml:"beacon_inactive_threshold_minutes"`
	EnableAutoCleanup              bool `yaml:"enable_auto_cleanup"`
	RetentionDays                  int  `yaml:"retention_days"`
	CleanupHour                    int  `yaml:"cleanup_hour"`
}

// Config is the full controller configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Features FeaturesConfig `yaml:"features"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "postgres",
			Password: "postgres",
			Name:     "ghostbeacon",
			SSLMode:  "disable",
			MaxConns: 10,
			MinConns: 2,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Features: FeaturesConfig{
			BeaconInactiveThresholdMinutes: 5,
			EnableAutoCleanup:              true,
			RetentionDays:                  30,
			CleanupHour:                    3,
		},
	}
}

// Load reads configuration in order of precedence: defaults, then
// config.yaml (or $CONFIG_FILE) if present, then environment variables.
// A .env file in the working directory seeds the environment first.
func Load() (*Config, error) {
	// Missing .env is fine, it only seeds os.Environ.
	_ = godotenv.Load()

	cfg := defaults()

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.yaml"
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	applyEnv(cfg)

	if cfg.Features.CleanupHour < 0 || cfg.Features.CleanupHour > 23 {
		return nil, fmt.Errorf("cleanup_hour must be 0-23, got %d", cfg.Features.CleanupHour)
	}
	if cfg.Features.RetentionDays < 1 {
		return nil, fmt.Errorf("retention_days must be at least 1, got %d", cfg.Features.RetentionDays)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Host, "SERVER_HOST")
	setString(&cfg.Server.Port, "SERVER_PORT")

	setString(&cfg.Database.Host, "DB_HOST")
	setString(&cfg.Database.Port, "DB_PORT")
	setString(&cfg.Database.User, "DB_USER")
	setString(&cfg.Database.Password, "DB_PASSWORD")
	setString(&cfg.Database.Name, "DB_NAME")
	setString(&cfg.Database.SSLMode, "DB_SSLMODE")
	setInt(&cfg.Database.MaxConns, "DB_MAX_CONNS")
	setInt(&cfg.Database.MinConns, "DB_MIN_CONNS")

	setString(&cfg.Logging.Level, "LOG_LEVEL")

	setInt(&cfg.Features.BeaconInactiveThresholdMinutes, "BEACON_INACTIVE_THRESHOLD_MINUTES")
	setBool(&cfg.Features.EnableAutoCleanup, "ENABLE_AUTO_CLEANUP")
	setInt(&cfg.Features.RetentionDays, "RETENTION_DAYS")
	setInt(&cfg.Features.CleanupHour, "CLEANUP_HOUR")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
