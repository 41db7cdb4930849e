package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 3000}
		assert.Equal(t, ":3000", cfg.Addr())
	})

	t.Run("ProviderDelay converts milliseconds", func(t *testing.T) {
		cfg := &Config{ProviderDelayMS: 500}
		assert.Equal(t, 500*time.Millisecond, cfg.ProviderDelay())
	})

	t.Run("ScheduleDelay converts milliseconds", func(t *testing.T) {
		cfg := &Config{ScheduleDelayMS: 1000}
		assert.Equal(t, time.Second, cfg.ScheduleDelay())
	})

	t.Run("CreditWarningThrottle converts hours", func(t *testing.T) {
		cfg := &Config{CreditWarningThrottleHours: 24}
		assert.Equal(t, 24*time.Hour, cfg.CreditWarningThrottle())
	})

	t.Run("SchedulerInterval converts minutes", func(t *testing.T) {
		cfg := &Config{SchedulerIntervalMinutes: 60}
		assert.Equal(t, time.Hour, cfg.SchedulerInterval())
	})
}

func TestLoad(t *testing.T) {
	keys := []string{
		"PORT", "DATABASE_URL", "REDIS_URL", "LOG_LEVEL",
		"CRON_SECRET", "SERVICE_TOKEN",
		"PROVIDER_DELAY_MS", "SCHEDULE_DELAY_MS",
		"CREDIT_WARNING_THROTTLE_HOURS",
		"SCHEDULER_ENABLED", "SCHEDULER_INTERVAL_MINUTES",
	}
	originalEnv := make(map[string]string, len(keys))
	for _, k := range keys {
		originalEnv[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	setRequired := func() {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Setenv("CRON_SECRET", "cron-secret")
		os.Setenv("SERVICE_TOKEN", "service-token")
	}

	t.Run("loads config with defaults", func(t *testing.T) {
		setRequired()
		os.Unsetenv("PORT")
		os.Unsetenv("PROVIDER_DELAY_MS")
		os.Unsetenv("SCHEDULE_DELAY_MS")
		os.Unsetenv("CREDIT_WARNING_THROTTLE_HOURS")
		os.Unsetenv("SCHEDULER_ENABLED")
		os.Unsetenv("SCHEDULER_INTERVAL_MINUTES")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, 500, cfg.ProviderDelayMS)
		assert.Equal(t, 1000, cfg.ScheduleDelayMS)
		assert.Equal(t, 24, cfg.CreditWarningThrottleHours)
		assert.False(t, cfg.SchedulerEnabled)
		assert.Equal(t, 60, cfg.SchedulerIntervalMinutes)
	})

	t.Run("reads explicit values", func(t *testing.T) {
		setRequired()
		os.Setenv("PORT", "9000")
		os.Setenv("SCHEDULER_ENABLED", "true")
		os.Setenv("SCHEDULER_INTERVAL_MINUTES", "15")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 9000, cfg.Port)
		assert.True(t, cfg.SchedulerEnabled)
		assert.Equal(t, 15, cfg.SchedulerIntervalMinutes)
	})

	t.Run("fails without DATABASE_URL", func(t *testing.T) {
		setRequired()
		os.Unsetenv("DATABASE_URL")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("fails without CRON_SECRET", func(t *testing.T) {
		setRequired()
		os.Unsetenv("CRON_SECRET")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	strongSecret := "0123456789abcdef0123456789abcdef"

	base := func() *Config {
		return &Config{
			CronSecret:               strongSecret,
			ServiceToken:             strongSecret + "x",
			SchedulerIntervalMinutes: 60,
		}
	}

	t.Run("development accepts short secrets", func(t *testing.T) {
		cfg := base()
		cfg.CronSecret = "dev"
		assert.NoError(t, cfg.Validate(false))
	})

	t.Run("production accepts strong secrets", func(t *testing.T) {
		assert.NoError(t, base().Validate(true))
	})

	t.Run("production rejects short secrets", func(t *testing.T) {
		cfg := base()
		cfg.CronSecret = "short"
		assert.Error(t, cfg.Validate(true))
	})

	t.Run("production rejects known weak secrets", func(t *testing.T) {
		cfg := base()
		cfg.ServiceToken = "change-me"
		assert.Error(t, cfg.Validate(true))
	})

	t.Run("rejects non-positive scheduler interval", func(t *testing.T) {
		cfg := base()
		cfg.SchedulerIntervalMinutes = 0
		assert.Error(t, cfg.Validate(false))
	})
}
