package config

import (
	"crypto/sha256"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	DatabasePath       string `json:"database_path"`
	APIPort            string `json:"api_port"`
	LogLevel           string `json:"log_level"`
	DataDir            string `json:"data_dir"`
	EncryptionKey      string `json:"encryption_key"` // key for encrypting client secrets and token caches
	CORSOrigins        string `json:"cors_origins"`   // comma separated, * means all
	GraphBaseURL       string `json:"graph_base_url"`
	SyncIntervalMin    int    `json:"sync_interval_minutes"`
	QueueIntervalSec   int    `json:"queue_interval_seconds"`
	SendBatchLimit     int    `json:"send_batch_limit"`
	LogRetentionDays   int    `json:"log_retention_days"`
	SyncTickBudgetMin  int    `json:"sync_tick_budget_minutes"`
}

// Default configuration values
const (
	DefaultDatabasePath      = "data/graphmail.db"
	DefaultAPIPort           = "8080"
	DefaultLogLevel          = "INFO"
	DefaultDataDir           = "data"
	DefaultEncryptionKey     = "" // empty derives from a fixed application salt; set in production
	DefaultCORSOrigins       = "*"
	DefaultGraphBaseURL      = "https://graph.microsoft.com/v1.0"
	DefaultSyncIntervalMin   = 5
	DefaultQueueIntervalSec  = 60
	DefaultSendBatchLimit    = 100
	DefaultLogRetentionDays  = 30
	DefaultSyncTickBudgetMin = 30
)

// Load loads configuration from environment variables and config file
// Priority: Environment variables > Config file > Default values
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:      DefaultDatabasePath,
		APIPort:           DefaultAPIPort,
		LogLevel:          DefaultLogLevel,
		DataDir:           DefaultDataDir,
		EncryptionKey:     DefaultEncryptionKey,
		CORSOrigins:       DefaultCORSOrigins,
		GraphBaseURL:      DefaultGraphBaseURL,
		SyncIntervalMin:   DefaultSyncIntervalMin,
		QueueIntervalSec:  DefaultQueueIntervalSec,
		SendBatchLimit:    DefaultSendBatchLimit,
		LogRetentionDays:  DefaultLogRetentionDays,
		SyncTickBudgetMin: DefaultSyncTickBudgetMin,
	}

	// Config file is optional
	_ = cfg.loadFromFile()

	// Override with environment variables
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
		return json.Unmarshal(data, c)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if val := os.Getenv("GRAPHMAIL_DATABASE_PATH"); val != "" {
		c.DatabasePath = val
	}
	if val := os.Getenv("GRAPHMAIL_API_PORT"); val != "" {
		c.APIPort = val
	}
	if val := os.Getenv("GRAPHMAIL_LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv("GRAPHMAIL_DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("GRAPHMAIL_ENCRYPTION_KEY"); val != "" {
		c.EncryptionKey = val
	}
	if val := os.Getenv("GRAPHMAIL_CORS_ORIGINS"); val != "" {
		c.CORSOrigins = val
	}
	if val := os.Getenv("GRAPHMAIL_GRAPH_BASE_URL"); val != "" {
		c.GraphBaseURL = val
	}
	if val := os.Getenv("GRAPHMAIL_SYNC_INTERVAL_MINUTES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.SyncIntervalMin = n
		}
	}
	if val := os.Getenv("GRAPHMAIL_QUEUE_INTERVAL_SECONDS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.QueueIntervalSec = n
		}
	}
	if val := os.Getenv("GRAPHMAIL_SEND_BATCH_LIMIT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.SendBatchLimit = n
		}
	}
	if val := os.Getenv("GRAPHMAIL_LOG_RETENTION_DAYS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.LogRetentionDays = n
		}
	}
	if val := os.Getenv("GRAPHMAIL_SYNC_TICK_BUDGET_MINUTES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.SyncTickBudgetMin = n
		}
	}
}

// CORSOriginList splits the configured origins for the CORS middleware
func (c *Config) CORSOriginList() []string {
	parts := strings.Split(c.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = []string{"*"}
	}
	return out
}

// SyncInterval returns the delta sync interval
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMin) * time.Minute
}

// QueueInterval returns the send queue processing interval
func (c *Config) QueueInterval() time.Duration {
	return time.Duration(c.QueueIntervalSec) * time.Second
}

// SyncTickBudget returns the time budget for one sync tick
func (c *Config) SyncTickBudget() time.Duration {
	return time.Duration(c.SyncTickBudgetMin) * time.Minute
}

// GetEncryptionKey returns the AES-256 key for secret encryption.
// SHA-256 guarantees a 32 byte key whatever the configured value is.
func (c *Config) GetEncryptionKey() []byte {
	if c.EncryptionKey != "" {
		hash := sha256.Sum256([]byte(c.EncryptionKey))
		return hash[:]
	}
	hash := sha256.Sum256([]byte("graphmail-default-key-change-in-production"))
	return hash[:]
}

// Save saves the current configuration to a file
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
