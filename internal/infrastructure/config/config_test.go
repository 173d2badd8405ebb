package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "orderbot", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.True(t, cfg.Dispatcher.Enabled)
		assert.Equal(t, 30*time.Second, cfg.Dispatcher.Interval)
		assert.Equal(t, 50, cfg.Dispatcher.BatchSize)
		assert.Equal(t, 5*time.Minute, cfg.Dispatcher.RetryDelay)
		assert.Equal(t, 48*time.Hour, cfg.Confirmation.LinkTTL)
		assert.Equal(t, 24*time.Hour, cfg.Linking.TokenTTL)
		assert.Equal(t, 30*time.Minute, cfg.Linking.SharedWindow)
		assert.False(t, cfg.Redis.Enabled())
	})

	t.Run("environment variables override defaults", func(t *testing.T) {
		t.Setenv("ORDERBOT_APP_PORT", "9090")
		t.Setenv("ORDERBOT_DISPATCHER_BATCH_SIZE", "10")
		t.Setenv("ORDERBOT_TELEGRAM_SHARED_BOT_USERNAME", "shop_bot")
		t.Setenv("ORDERBOT_DISPATCHER_ENABLED", "false")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "9090", cfg.App.Port)
		assert.Equal(t, 10, cfg.Dispatcher.BatchSize)
		assert.Equal(t, "shop_bot", cfg.Telegram.SharedBotUsername)
		assert.False(t, cfg.Dispatcher.Enabled)
	})

	t.Run("dispatcher interval has a floor", func(t *testing.T) {
		t.Setenv("ORDERBOT_DISPATCHER_INTERVAL", "1s")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, MinDispatchInterval, cfg.Dispatcher.Interval)
	})

	t.Run("production requires secrets", func(t *testing.T) {
		t.Setenv("ORDERBOT_APP_ENV", "production")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("zero transient attempts takes the default", func(t *testing.T) {
		t.Setenv("ORDERBOT_DISPATCHER_MAX_TRANSIENT_ATTEMPTS", "0")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 12, cfg.Dispatcher.MaxTransientAttempts)
		assert.Equal(t, 2*time.Minute, cfg.Dispatcher.Lease)
		assert.Equal(t, 15*time.Second, cfg.Dispatcher.SendTimeout)
	})

	t.Run("lease must outlast two send timeouts", func(t *testing.T) {
		t.Setenv("ORDERBOT_DISPATCHER_LEASE", "20s")
		t.Setenv("ORDERBOT_DISPATCHER_SEND_TIMEOUT", "15s")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dispatcher.lease")
	})

	t.Run("distributed lock requires redis", func(t *testing.T) {
		t.Setenv("ORDERBOT_DISPATCHER_DISTRIBUTED_LOCK", "true")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p@ss", DBName: "orderbot", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p%40ss@db:5432/orderbot?sslmode=disable", d.DSN())
}
