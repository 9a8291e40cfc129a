package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	DBPath   string `env:"DB_PATH"   envDefault:"feedpipe.sqlite"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	SchedulerSpec          string        `env:"SCHEDULER_SPEC"           envDefault:"@every 1m"`
	SchedulerRetryBackoff  time.Duration `env:"SCHEDULER_RETRY_BACKOFF"  envDefault:"5s"`
	SchedulerRetryAttempts int           `env:"SCHEDULER_RETRY_ATTEMPTS" envDefault:"3"`

	BatchTimeout         time.Duration `env:"BATCH_TIMEOUT"          envDefault:"30m"`
	FeedTimeout          time.Duration `env:"FEED_TIMEOUT"           envDefault:"2m"`
	FetchTimeout         time.Duration `env:"FETCH_TIMEOUT"          envDefault:"30s"`
	StoreTimeout         time.Duration `env:"STORE_TIMEOUT"          envDefault:"10s"`
	MaxConcurrentFetches int           `env:"MAX_CONCURRENT_FETCHES" envDefault:"8"`
	HostMinInterval      time.Duration `env:"HOST_MIN_INTERVAL"      envDefault:"1s"`
	MaxDocumentBytes     int64         `env:"MAX_DOCUMENT_BYTES"     envDefault:"10485760"`
	UserAgent            string        `env:"USER_AGENT"             envDefault:"feedpipe/1.0 (+RSS reader)"`
	FeedCacheSize        int           `env:"FEED_CACHE_SIZE"        envDefault:"256"`

	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`

	TelegramToken       string `env:"TELEGRAM_TOKEN"`
	TelegramAdminChatID int64  `env:"TELEGRAM_ADMIN_CHAT_ID"`
}

func LoadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err = cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) NotifierEnabled() bool {
	return strings.TrimSpace(c.TelegramToken) != "" && c.TelegramAdminChatID != 0
}

func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c Config) validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("DB_PATH is empty")
	}

	if c.MaxConcurrentFetches <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_FETCHES must be positive, got %d", c.MaxConcurrentFetches)
	}

	if c.SchedulerRetryAttempts <= 0 {
		return fmt.Errorf("SCHEDULER_RETRY_ATTEMPTS must be positive, got %d", c.SchedulerRetryAttempts)
	}

	for name, d := range map[string]time.Duration{
		"BATCH_TIMEOUT": c.BatchTimeout,
		"FEED_TIMEOUT":  c.FeedTimeout,
		"FETCH_TIMEOUT": c.FetchTimeout,
		"STORE_TIMEOUT": c.StoreTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.MaxDocumentBytes <= 0 {
		return fmt.Errorf("MAX_DOCUMENT_BYTES must be positive, got %d", c.MaxDocumentBytes)
	}

	return nil
}
