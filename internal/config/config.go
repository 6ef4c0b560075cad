// Package config loads and validates relay configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"

	"github.com/pwieczorek/newsrelay/internal/retry"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Source   SourceConfig   `mapstructure:"source"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Queue    QueueConfig    `mapstructure:"queue"`
	DB       DBConfig       `mapstructure:"db"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Ops      OpsConfig      `mapstructure:"ops"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SourceConfig names the site and the category tree to crawl.
type SourceConfig struct {
	BaseURL    string           `mapstructure:"base_url"`
	Categories []CategoryConfig `mapstructure:"categories"`
}

// CategoryConfig is one crawled section: a URL path relative to the base URL
// and the display name attached to articles found under it.
type CategoryConfig struct {
	Path string `mapstructure:"path"`
	Name string `mapstructure:"name"`
}

// RetryConfig mirrors retry.Policy for Viper unmarshaling.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// Policy converts the config into a retry.Policy.
func (r RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   r.BaseDelay,
		MaxDelay:    r.MaxDelay,
	}
}

// CrawlerConfig governs the discovery pipeline.
type CrawlerConfig struct {
	Workers              int           `mapstructure:"workers"`
	UserAgent            string        `mapstructure:"user_agent"`
	Timeout              time.Duration `mapstructure:"timeout"`
	MaxConcurrentFetches int           `mapstructure:"max_concurrent_fetches"`
	PerHostRPS           float64       `mapstructure:"per_host_rps"`
	PerHostBurst         int           `mapstructure:"per_host_burst"`
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	FreshnessWindow      time.Duration `mapstructure:"freshness_window"`
	PerCategoryLimit     int           `mapstructure:"per_category_limit"`
	Retry                RetryConfig   `mapstructure:"retry"`
}

// QueueConfig selects and configures the broker.
type QueueConfig struct {
	Provider       string `mapstructure:"provider"`
	ProjectID      string `mapstructure:"project_id"`
	TopicID        string `mapstructure:"topic_id"`
	SubscriptionID string `mapstructure:"subscription_id"`
	MaxOutstanding int    `mapstructure:"max_outstanding"`
}

// DBConfig selects and configures the article store.
type DBConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
}

// TelegramConfig holds channel credentials and pacing.
type TelegramConfig struct {
	Token     string        `mapstructure:"token"`
	ChatID    string        `mapstructure:"chat_id"`
	SendDelay time.Duration `mapstructure:"send_delay"`
}

// DispatchConfig tunes the announcement loop.
type DispatchConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	Retry        RetryConfig   `mapstructure:"retry"`
}

// OpsConfig controls the operational HTTP endpoint.
type OpsConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// FromViper unmarshals and validates a Config from an already-initialized
// Viper instance (see pkg/config.InitConfig for defaults, file, and env
// wiring).
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SetDefaults installs defaults on the given Viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("source.base_url", "https://www.rp.pl")

	v.SetDefault("crawler.workers", 4)
	v.SetDefault("crawler.user_agent", "newsrelay/1.0 (+https://github.com/pwieczorek/newsrelay)")
	v.SetDefault("crawler.timeout", "15s")
	v.SetDefault("crawler.max_concurrent_fetches", 8)
	v.SetDefault("crawler.per_host_rps", 1.0)
	v.SetDefault("crawler.per_host_burst", 2)
	v.SetDefault("crawler.poll_interval", "5m")
	v.SetDefault("crawler.freshness_window", "24h")
	v.SetDefault("crawler.per_category_limit", 30)
	v.SetDefault("crawler.retry.max_attempts", 3)
	v.SetDefault("crawler.retry.base_delay", "250ms")
	v.SetDefault("crawler.retry.max_delay", "5s")

	v.SetDefault("queue.provider", "memory")
	v.SetDefault("queue.topic_id", "new-articles")
	v.SetDefault("queue.subscription_id", "new-articles-ingest")
	v.SetDefault("queue.max_outstanding", 16)

	v.SetDefault("db.provider", "memory")

	v.SetDefault("telegram.send_delay", "5s")

	v.SetDefault("dispatch.poll_interval", "10s")
	v.SetDefault("dispatch.batch_size", 50)
	v.SetDefault("dispatch.retry.max_attempts", 3)
	v.SetDefault("dispatch.retry.base_delay", "1s")
	v.SetDefault("dispatch.retry.max_delay", "30s")

	v.SetDefault("ops.port", 8080)
	v.SetDefault("logging.development", false)
}

// Validate rejects configurations the pipeline cannot run with. Credentials
// for optional outer services are checked at wiring time instead.
func (c Config) Validate() error {
	u, err := url.Parse(c.Source.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("source.base_url %q is not an absolute URL", c.Source.BaseURL)
	}
	for i, cat := range c.Source.Categories {
		if cat.Path == "" || cat.Name == "" {
			return fmt.Errorf("source.categories[%d] needs both path and name", i)
		}
	}

	if c.Crawler.MaxConcurrentFetches <= 0 {
		return fmt.Errorf("crawler.max_concurrent_fetches must be positive, got %d", c.Crawler.MaxConcurrentFetches)
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be positive, got %d", c.Crawler.Workers)
	}
	if err := c.Crawler.Retry.Policy().Validate(); err != nil {
		return fmt.Errorf("crawler.retry: %w", err)
	}
	if err := c.Dispatch.Retry.Policy().Validate(); err != nil {
		return fmt.Errorf("dispatch.retry: %w", err)
	}

	switch c.Queue.Provider {
	case "pubsub":
		if c.Queue.ProjectID == "" || c.Queue.TopicID == "" || c.Queue.SubscriptionID == "" {
			return fmt.Errorf("queue.provider is 'pubsub' but project_id, topic_id, or subscription_id is not set")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown queue provider: %s", c.Queue.Provider)
	}

	switch c.DB.Provider {
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.provider is 'postgres' but db.dsn is not set")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown db provider: %s", c.DB.Provider)
	}

	return nil
}
