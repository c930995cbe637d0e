package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	DatabasePath     string `json:"database_path"`
	APIPort          string `json:"api_port"`
	APIBase          string `json:"api_base"` // remote mail API base URL
	LogLevel         string `json:"log_level"`
	DataDir          string `json:"data_dir"`
	CORSOrigins      string `json:"cors_origins"`      // comma separated, * for all
	HeartbeatSeconds int    `json:"heartbeat_seconds"` // queue wake-up interval
	SyncPageSize     int    `json:"sync_page_size"`
}

// Default configuration values
const (
	DefaultDatabasePath     = "data/offline_core.db"
	DefaultAPIPort          = "8080"
	DefaultAPIBase          = "https://api.forwardemail.net"
	DefaultLogLevel         = "INFO"
	DefaultDataDir          = "data"
	DefaultCORSOrigins      = "*"
	DefaultHeartbeatSeconds = 120
	DefaultSyncPageSize     = 100
)

// Load loads configuration from environment variables and config file
// Priority: Environment variables > Config file > Default values
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:     DefaultDatabasePath,
		APIPort:          DefaultAPIPort,
		APIBase:          DefaultAPIBase,
		LogLevel:         DefaultLogLevel,
		DataDir:          DefaultDataDir,
		CORSOrigins:      DefaultCORSOrigins,
		HeartbeatSeconds: DefaultHeartbeatSeconds,
		SyncPageSize:     DefaultSyncPageSize,
	}

	// Config file is optional
	_ = cfg.loadFromFile()

	cfg.loadFromEnv()

	return cfg, nil
}

// loadFromFile loads configuration from config.json file
func (c *Config) loadFromFile() error {
	configPaths := []string{
		"config.json",
		filepath.Join(c.DataDir, "config.json"),
	}

	for _, path := range configPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		if err := json.Unmarshal(data, c); err != nil {
			return err
		}
		return nil
	}

	return nil
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if val := os.Getenv("FORWARDEMAIL_DATABASE_PATH"); val != "" {
		c.DatabasePath = val
	}
	if val := os.Getenv("FORWARDEMAIL_API_PORT"); val != "" {
		c.APIPort = val
	}
	if val := os.Getenv("FORWARDEMAIL_API_BASE"); val != "" {
		c.APIBase = val
	}
	if val := os.Getenv("FORWARDEMAIL_LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv("FORWARDEMAIL_DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("FORWARDEMAIL_CORS_ORIGINS"); val != "" {
		c.CORSOrigins = val
	}
	if val := os.Getenv("FORWARDEMAIL_HEARTBEAT_SECONDS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.HeartbeatSeconds = n
		}
	}
	if val := os.Getenv("FORWARDEMAIL_SYNC_PAGE_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.SyncPageSize = n
		}
	}
}

// HeartbeatInterval returns the queue wake-up interval as a duration
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

// Save saves the current configuration to a file
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
