// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir            string // Base directory for databases and backup staging (always absolute)
	Port               int
	LogLevel           string
	DevMode            bool
	AlphaVantageAPIKey string

	// Rate limiting for the public API
	RateLimit       int // Requests allowed per window per client
	RateLimitWindow int // Window length in seconds

	// Price refresh cadence in seconds (the dashboard expects fresh
	// prices roughly once a minute)
	RefreshInterval int

	Backup *BackupConfig
}

// BackupConfig holds S3-compatible backup configuration.
// Backups are disabled when Bucket is empty.
type BackupConfig struct {
	Bucket          string
	Endpoint        string // Custom endpoint for S3-compatible providers (empty = AWS)
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Keep            int // Number of backups to retain
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("FOLIO_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:            absDataDir,
		Port:               getEnvAsInt("FOLIO_PORT", 8000),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DevMode:            getEnvAsBool("DEV_MODE", false),
		AlphaVantageAPIKey: getEnv("ALPHAVANTAGE_API_KEY", ""),
		RateLimit:          getEnvAsInt("RATE_LIMIT", 100),
		RateLimitWindow:    getEnvAsInt("RATE_LIMIT_WINDOW", 60),
		RefreshInterval:    getEnvAsInt("REFRESH_INTERVAL", 60),
		Backup:             loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("rate limit must be positive, got %d", c.RateLimit)
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit window must be positive, got %d", c.RateLimitWindow)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %d", c.RefreshInterval)
	}

	// API key is optional: without it the service still serves stored
	// positions, it just cannot fetch fresh quotes.
	return nil
}

// BackupEnabled reports whether S3 backups are configured
func (c *Config) BackupEnabled() bool {
	return c.Backup != nil && c.Backup.Bucket != ""
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

func loadBackupConfig() *BackupConfig {
	return &BackupConfig{
		Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
		Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
		Region:          getEnv("BACKUP_S3_REGION", "auto"),
		AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
		Keep:            getEnvAsInt("BACKUP_KEEP", 7),
	}
}
