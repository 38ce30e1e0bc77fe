package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines tracker daemon configuration.
type Config struct {
	DB        DBConfig        `yaml:"db"`
	Log       LogConfig       `yaml:"log"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Retention RetentionConfig `yaml:"retention"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type TrackerConfig struct {
	BatchInterval          time.Duration `yaml:"batch_interval"`
	PartitionCheckInterval time.Duration `yaml:"partition_check_interval"`
	CacheTTL               time.Duration `yaml:"cache_ttl"`
	StoreTimeout           time.Duration `yaml:"store_timeout"`
}

type RetentionConfig struct {
	SessionDays int `yaml:"session_days"`
	ErrorDays   int `yaml:"error_days"`
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Config{
		DB: DBConfig{
			Path: "sessions.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Tracker: TrackerConfig{
			BatchInterval:          300 * time.Second,
			PartitionCheckInterval: 24 * time.Hour,
			CacheTTL:               5 * time.Minute,
			StoreTimeout:           30 * time.Second,
		},
		Retention: RetentionConfig{
			SessionDays: 365,
			ErrorDays:   30,
		},
	}

	if path := os.Getenv("TRACKER_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if dbPath := os.Getenv("TRACKER_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if level := os.Getenv("TRACKER_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if err := envDuration("TRACKER_BATCH_INTERVAL", &cfg.Tracker.BatchInterval); err != nil {
		return Config{}, err
	}
	if err := envDuration("TRACKER_PARTITION_CHECK_INTERVAL", &cfg.Tracker.PartitionCheckInterval); err != nil {
		return Config{}, err
	}
	if err := envDuration("TRACKER_CACHE_TTL", &cfg.Tracker.CacheTTL); err != nil {
		return Config{}, err
	}
	if err := envDuration("TRACKER_STORE_TIMEOUT", &cfg.Tracker.StoreTimeout); err != nil {
		return Config{}, err
	}
	if err := envInt("TRACKER_RETENTION_DAYS", &cfg.Retention.SessionDays); err != nil {
		return Config{}, err
	}
	if err := envInt("TRACKER_ERROR_RETENTION_DAYS", &cfg.Retention.ErrorDays); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func envDuration(name string, dst *time.Duration) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = d
	return nil
}

func envInt(name string, dst *int) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = n
	return nil
}
