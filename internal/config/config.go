// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir           string // Base directory for all databases (always absolute)
	LogLevel          string
	LogPretty         bool
	Port              int
	Workers           int           // Concurrent tenant workers in the orchestrator
	RunTimeout        time.Duration // Per-strategy run timeout
	SweepSchedule     string        // Cron spec for the scheduled rebalance sweep
	MarketDataURL     string
	MarketDataKeyID   string // Shared data API credentials (broker creds are per tenant)
	MarketDataSecret  string
	BrokerLiveURL     string
	BrokerPaperURL    string
	SignalURL         string
	SignalTTL         time.Duration // How long a cached signal reading stays fresh
	SignalMaxAge      time.Duration // Readings older than this are ignored by the evaluator
	BarsTTL           time.Duration // How long cached bars stay fresh
	RunRetentionDays  int
	Backup            *BackupConfig
}

// BackupConfig holds S3/R2 database backup settings
type BackupConfig struct {
	Enabled         bool
	Bucket          string
	Prefix          string
	Endpoint        string // Custom endpoint for R2; empty for plain S3
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Keep            int // Number of backups retained remotely
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("REBALANCER_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:          absDataDir,
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogPretty:        getEnvAsBool("LOG_PRETTY", false),
		Port:             getEnvAsInt("PORT", 8090),
		Workers:          getEnvAsInt("RUN_WORKERS", 4),
		RunTimeout:       getEnvAsDuration("RUN_TIMEOUT", 2*time.Minute),
		SweepSchedule:    getEnv("SWEEP_SCHEDULE", "0 35 9 * * MON-FRI"),
		MarketDataURL:    getEnv("MARKET_DATA_URL", "https://data.alpaca.markets"),
		MarketDataKeyID:  getEnv("MARKET_DATA_KEY_ID", ""),
		MarketDataSecret: getEnv("MARKET_DATA_SECRET", ""),
		BrokerLiveURL:    getEnv("BROKER_LIVE_URL", "https://api.alpaca.markets"),
		BrokerPaperURL:   getEnv("BROKER_PAPER_URL", "https://paper-api.alpaca.markets"),
		SignalURL:        getEnv("SIGNAL_URL", "https://api.alternative.me/fng/"),
		SignalTTL:        getEnvAsDuration("SIGNAL_TTL", 30*time.Minute),
		SignalMaxAge:     getEnvAsDuration("SIGNAL_MAX_AGE", 24*time.Hour),
		BarsTTL:          getEnvAsDuration("BARS_TTL", 15*time.Minute),
		RunRetentionDays: getEnvAsInt("RUN_RETENTION_DAYS", 90),
		Backup:           loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Workers < 1 {
		return fmt.Errorf("RUN_WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.RunTimeout <= 0 {
		return fmt.Errorf("RUN_TIMEOUT must be positive, got %s", c.RunTimeout)
	}
	if c.Backup.Enabled {
		if c.Backup.Bucket == "" {
			return fmt.Errorf("BACKUP_BUCKET required when backups are enabled")
		}
		if c.Backup.AccessKeyID == "" || c.Backup.SecretAccessKey == "" {
			return fmt.Errorf("backup credentials required when backups are enabled")
		}
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// loadBackupConfig loads S3/R2 backup configuration
func loadBackupConfig() *BackupConfig {
	return &BackupConfig{
		Enabled:         getEnvAsBool("BACKUP_ENABLED", false),
		Bucket:          getEnv("BACKUP_BUCKET", ""),
		Prefix:          getEnv("BACKUP_PREFIX", "rebalancer-backups"),
		Endpoint:        getEnv("BACKUP_ENDPOINT", ""),
		Region:          getEnv("BACKUP_REGION", "auto"),
		AccessKeyID:     getEnv("BACKUP_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("BACKUP_SECRET_ACCESS_KEY", ""),
		Keep:            getEnvAsInt("BACKUP_KEEP", 14),
	}
}
