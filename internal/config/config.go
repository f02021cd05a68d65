// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"` // empty disables redis (no rate limit, no cache)
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type SecurityConfig struct {
	MasterKeyEnv string        `yaml:"master_key_env"` // env var holding a base64 32-byte key
	KeyFile      string        `yaml:"key_file"`       // 0600 fallback key file, or wrapped data key under KMS
	KMSKeyID     string        `yaml:"kms_key_id"`     // enables KMS envelope mode
	KMSRegion    string        `yaml:"kms_region"`
	CacheTTL     time.Duration `yaml:"cache_ttl"` // decrypted config cache lifetime
}

type GatewayHTTPConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type PaymentConfig struct {
	HTTP     GatewayHTTPConfig `yaml:"http"`
	Paystack struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"paystack"`
	ExpressPay struct {
		BaseURL string `yaml:"base_url"`
		Sandbox bool   `yaml:"sandbox"`
	} `yaml:"expresspay"`
	// EnableNoop registers a gateway that settles instantly. Dev only.
	EnableNoop bool `yaml:"enable_noop"`
	RateLimit  struct {
		Requests int           `yaml:"requests"`
		Window   time.Duration `yaml:"window"`
	} `yaml:"rate_limit"`
}

type SweeperConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type ReconcileConfig struct {
	Interval   time.Duration `yaml:"interval"`
	OlderThan  time.Duration `yaml:"older_than"`
	BatchSize  int           `yaml:"batch_size"`
	Workers    int           `yaml:"workers"`
	AlertAfter time.Duration `yaml:"alert_after"`
}

type AuthConfig struct {
	Secret   string        `yaml:"secret"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

type AlertsConfig struct {
	TelegramToken string `yaml:"telegram_token"`
	ChatID        int64  `yaml:"chat_id"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Security  SecurityConfig  `yaml:"security"`
	Payment   PaymentConfig   `yaml:"payment"`
	Sweeper   SweeperConfig   `yaml:"sweeper"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Auth      AuthConfig      `yaml:"auth"`
	Alerts    AlertsConfig    `yaml:"alerts"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads -config and -dev from the command line and loads the file.
func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()
	return Load(configPath, dev)
}

// Load parses the YAML file, applies environment overrides and defaults, and validates.
func Load(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Auth.Secret == "" {
		return nil, errors.New("auth.secret is required")
	}
	if len(cfg.Auth.Secret) < 32 && !dev {
		return nil, errors.New("auth.secret must be at least 32 characters")
	}
	if cfg.Security.KMSKeyID != "" && cfg.Security.KeyFile == "" {
		return nil, errors.New("security.key_file is required with security.kms_key_id")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		c.Auth.Secret = v
	}
	if v := os.Getenv("TELEGRAM_ALERT_TOKEN"); v != "" {
		c.Alerts.TelegramToken = v
	}
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeout <= 0 {
		c.HTTP.ReadTimeout = 15 * time.Second
	}
	if c.HTTP.WriteTimeout <= 0 {
		c.HTTP.WriteTimeout = 60 * time.Second
	}
	if c.HTTP.RequestTimeout <= 0 {
		c.HTTP.RequestTimeout = 45 * time.Second
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	c.Redis.TTL = normalizeTTL(c.Redis.TTL, time.Hour)

	if c.Security.MasterKeyEnv == "" {
		c.Security.MasterKeyEnv = "PAYMENT_MASTER_KEY"
	}
	if c.Security.KeyFile == "" {
		c.Security.KeyFile = "payment_master.key"
	}
	c.Security.CacheTTL = normalizeTTL(c.Security.CacheTTL, 5*time.Minute)

	c.Payment.HTTP.Timeout = normalizeTTL(c.Payment.HTTP.Timeout, 30*time.Second)
	c.Payment.HTTP.ConnectTimeout = normalizeTTL(c.Payment.HTTP.ConnectTimeout, 10*time.Second)
	if c.Payment.Paystack.BaseURL == "" {
		c.Payment.Paystack.BaseURL = "https://api.paystack.co"
	}
	if c.Payment.ExpressPay.BaseURL == "" {
		if c.Payment.ExpressPay.Sandbox {
			c.Payment.ExpressPay.BaseURL = "https://sandbox.expresspaygh.com/api"
		} else {
			c.Payment.ExpressPay.BaseURL = "https://expresspaygh.com/api"
		}
	}
	c.Payment.Paystack.BaseURL = strings.TrimRight(c.Payment.Paystack.BaseURL, "/")
	c.Payment.ExpressPay.BaseURL = strings.TrimRight(c.Payment.ExpressPay.BaseURL, "/")
	if c.Payment.RateLimit.Requests <= 0 {
		c.Payment.RateLimit.Requests = 5
	}
	c.Payment.RateLimit.Window = normalizeTTL(c.Payment.RateLimit.Window, time.Minute)

	c.Sweeper.Interval = normalizeTTL(c.Sweeper.Interval, 5*time.Minute)

	c.Reconcile.Interval = normalizeTTL(c.Reconcile.Interval, 2*time.Minute)
	c.Reconcile.OlderThan = normalizeTTL(c.Reconcile.OlderThan, 5*time.Minute)
	c.Reconcile.AlertAfter = normalizeTTL(c.Reconcile.AlertAfter, 24*time.Hour)
	if c.Reconcile.BatchSize <= 0 {
		c.Reconcile.BatchSize = 50
	}
	if c.Reconcile.Workers <= 0 {
		c.Reconcile.Workers = 4
	}

	c.Auth.TokenTTL = normalizeTTL(c.Auth.TokenTTL, 12*time.Hour)
}

func normalizeTTL(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
