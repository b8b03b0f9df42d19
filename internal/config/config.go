package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/shohag/hookrelay/internal/models"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
	Webhooks WebhooksConfig `mapstructure:"webhooks"`
	Logs     LogsConfig     `mapstructure:"logs"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// AdminToken guards the tenant management routes. Empty disables them.
	AdminToken string `mapstructure:"admin_token"`
}

type StorageConfig struct {
	Driver   string         `mapstructure:"driver"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type DeliveryConfig struct {
	Workers          int           `mapstructure:"workers"`
	QueueSize        int           `mapstructure:"queue_size"`
	UserAgent        string        `mapstructure:"user_agent"`
	Brand            string        `mapstructure:"brand"`
	MaxResponseBytes int64         `mapstructure:"max_response_bytes"`
	BackoffBase      time.Duration `mapstructure:"backoff_base"`
	BackoffMax       time.Duration `mapstructure:"backoff_max"`
	// DrainTimeout bounds how long shutdown waits for queued deliveries.
	// Zero waits until the queue is empty.
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

type WebhooksConfig struct {
	Defaults         models.WebhookSettings `mapstructure:"defaults"`
	RejectDuplicates bool                   `mapstructure:"reject_duplicates"`
}

type LogsConfig struct {
	Driver    string      `mapstructure:"driver"`
	Retention int         `mapstructure:"retention"`
	Redis     RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	URL       string `mapstructure:"url"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string        `mapstructure:"level"`
	Format string        `mapstructure:"format"`
	File   LogFileConfig `mapstructure:"file"`
}

type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

func Load(path string) (*Config, error) {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()

	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("hookrelay")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/hookrelay")
	}

	setDefaults()

	viper.SetEnvPrefix("HOOKRELAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			errs = append(errs, errors.New("storage.sqlite.path is required"))
		}
	case "postgres":
		if c.Storage.Postgres.URL == "" {
			errs = append(errs, errors.New("storage.postgres.url is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver: %s", c.Storage.Driver))
	}

	switch c.Logs.Driver {
	case "database":
	case "redis":
		if c.Logs.Redis.URL == "" {
			errs = append(errs, errors.New("logs.redis.url is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported logs driver: %s", c.Logs.Driver))
	}
	if c.Logs.Retention < 1 {
		errs = append(errs, errors.New("logs.retention must be at least 1"))
	}

	if c.Delivery.Workers < 1 {
		errs = append(errs, errors.New("delivery.workers must be at least 1"))
	}
	if c.Delivery.QueueSize < 1 {
		errs = append(errs, errors.New("delivery.queue_size must be at least 1"))
	}
	if c.Delivery.BackoffBase <= 0 || c.Delivery.BackoffMax < c.Delivery.BackoffBase {
		errs = append(errs, errors.New("delivery.backoff_base must be positive and not exceed delivery.backoff_max"))
	}
	if c.Delivery.DrainTimeout < 0 {
		errs = append(errs, errors.New("delivery.drain_timeout must not be negative"))
	}

	if err := c.Webhooks.Defaults.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("webhooks.defaults: %w", err))
	}

	return errors.Join(errs...)
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 150*time.Second)
	viper.SetDefault("server.admin_token", "")

	viper.SetDefault("storage.driver", "sqlite")
	viper.SetDefault("storage.sqlite.path", "./data/hookrelay.db")
	viper.SetDefault("storage.postgres.url", "")
	viper.SetDefault("storage.postgres.max_conns", 10)

	viper.SetDefault("delivery.workers", 50)
	viper.SetDefault("delivery.queue_size", 1000)
	viper.SetDefault("delivery.user_agent", "HookRelay-Webhook/1.0")
	viper.SetDefault("delivery.brand", "HookRelay")
	viper.SetDefault("delivery.max_response_bytes", 1024)
	viper.SetDefault("delivery.backoff_base", time.Second)
	viper.SetDefault("delivery.backoff_max", time.Minute)
	viper.SetDefault("delivery.drain_timeout", 2*time.Minute)

	defaults := models.DefaultWebhookSettings()
	viper.SetDefault("webhooks.defaults.enabled", defaults.Enabled)
	viper.SetDefault("webhooks.defaults.retry_attempts", defaults.RetryAttempts)
	viper.SetDefault("webhooks.defaults.timeout_seconds", defaults.TimeoutSeconds)
	viper.SetDefault("webhooks.defaults.enable_signing", defaults.EnableSigning)
	viper.SetDefault("webhooks.defaults.log_webhooks", defaults.LogWebhooks)
	viper.SetDefault("webhooks.defaults.enable_rate_limiting", defaults.EnableRateLimiting)
	viper.SetDefault("webhooks.defaults.rate_limit", defaults.RateLimit)
	viper.SetDefault("webhooks.reject_duplicates", false)

	viper.SetDefault("logs.driver", "database")
	viper.SetDefault("logs.retention", 100)
	viper.SetDefault("logs.redis.url", "")
	viper.SetDefault("logs.redis.key_prefix", "hookrelay:attempts")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.file.path", "")
	viper.SetDefault("logging.file.max_size_mb", 100)
	viper.SetDefault("logging.file.max_backups", 5)
	viper.SetDefault("logging.file.max_age_days", 28)
	viper.SetDefault("logging.file.compress", true)
}
