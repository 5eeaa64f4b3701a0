package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Sync       SyncConfig       `yaml:"sync"`
	AutoCancel AutoCancelConfig `yaml:"auto_cancel"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Automation AutomationConfig `yaml:"automation"`
	Encryption EncryptionConfig `yaml:"encryption"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// SyncConfig holds the reservation sync scheduler configuration.
type SyncConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalMinutes int           `yaml:"interval_minutes"`
	Interval        time.Duration `yaml:"-"`
	PageSize        int           `yaml:"page_size"`
	// EmptyPageThreshold is the number of consecutive pages without a
	// matching reservation after which the by-creation-date fetch stops.
	// This relies on the upstream API returning pages newest-first, which
	// is observed behavior, not a documented contract.
	EmptyPageThreshold int `yaml:"empty_page_threshold"`
	MaxPages           int `yaml:"max_pages"`
	WindowPastHours    int `yaml:"window_past_hours"`
	WindowFutureDays   int `yaml:"window_future_days"`
}

// AutoCancelConfig holds the payment-deadline auto-cancel job configuration.
type AutoCancelConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalMinutes int           `yaml:"interval_minutes"`
	Interval        time.Duration `yaml:"-"`
	Reason          string        `yaml:"reason"`
}

// PushConfig holds the VAPID keys for staff web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// AutomationConfig holds the downstream task-automation webhook settings.
type AutomationConfig struct {
	TaskWebhookURL string `yaml:"task_webhook_url"`
}

// EncryptionConfig holds the key used to decrypt stored PMS settings blobs.
type EncryptionConfig struct {
	Key string `yaml:"key"`
}

// Load reads the configuration from the given path. A .env file, if present,
// is loaded first; DATABASE_DSN and SETTINGS_ENCRYPTION_KEY environment
// variables override their YAML counterparts so secrets can stay out of the
// config file.
func Load(path string) (*Config, error) {
	godotenv.Load()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if key := os.Getenv("SETTINGS_ENCRYPTION_KEY"); key != "" {
		cfg.Encryption.Key = key
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}

	if cfg.Sync.IntervalMinutes <= 0 {
		cfg.Sync.IntervalMinutes = 10
	}
	cfg.Sync.Interval = time.Duration(cfg.Sync.IntervalMinutes) * time.Minute
	if cfg.Sync.PageSize <= 0 {
		cfg.Sync.PageSize = 100
	}
	if cfg.Sync.EmptyPageThreshold <= 0 {
		cfg.Sync.EmptyPageThreshold = 1
	}
	if cfg.Sync.MaxPages <= 0 {
		cfg.Sync.MaxPages = 50
	}
	if cfg.Sync.WindowPastHours <= 0 {
		cfg.Sync.WindowPastHours = 24
	}
	if cfg.Sync.WindowFutureDays <= 0 {
		cfg.Sync.WindowFutureDays = 30
	}

	if cfg.AutoCancel.IntervalMinutes <= 0 {
		cfg.AutoCancel.IntervalMinutes = 5
	}
	cfg.AutoCancel.Interval = time.Duration(cfg.AutoCancel.IntervalMinutes) * time.Minute
	if cfg.AutoCancel.Reason == "" {
		cfg.AutoCancel.Reason = "Payment deadline expired"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}
}
