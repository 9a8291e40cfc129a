package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "feedpipe.sqlite", cfg.DBPath)
	assert.Equal(t, "@every 1m", cfg.SchedulerSpec)
	assert.Equal(t, 5*time.Second, cfg.SchedulerRetryBackoff)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 8, cfg.MaxConcurrentFetches)
	assert.Equal(t, 256, cfg.FeedCacheSize)
	assert.False(t, cfg.NotifierEnabled())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DB_PATH", "/tmp/feeds.sqlite")
	t.Setenv("MAX_CONCURRENT_FETCHES", "2")
	t.Setenv("FETCH_TIMEOUT", "15s")
	t.Setenv("TELEGRAM_TOKEN", "token")
	t.Setenv("TELEGRAM_ADMIN_CHAT_ID", "-100123")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/feeds.sqlite", cfg.DBPath)
	assert.Equal(t, 2, cfg.MaxConcurrentFetches)
	assert.Equal(t, 15*time.Second, cfg.FetchTimeout)
	assert.Equal(t, int64(-100123), cfg.TelegramAdminChatID)
	assert.True(t, cfg.NotifierEnabled())
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"zero concurrency", "MAX_CONCURRENT_FETCHES", "0"},
		{"negative fetch timeout", "FETCH_TIMEOUT", "-1s"},
		{"malformed duration", "STORE_TIMEOUT", "soon"},
		{"zero retry attempts", "SCHEDULER_RETRY_ATTEMPTS", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}

	for raw, want := range tests {
		assert.Equal(t, want, Config{LogLevel: raw}.SlogLevel(), raw)
	}
}
