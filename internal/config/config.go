package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// CronSecret guards the /internal/cron entry points; ServiceToken guards
	// the /v1 account-credits API. They are distinct so a leaked cron secret
	// cannot read or mutate balances.
	CronSecret   string `env:"CRON_SECRET,required"`
	ServiceToken string `env:"SERVICE_TOKEN,required"`

	RankAPIURL string `env:"RANK_API_URL"`
	RankAPIKey string `env:"RANK_API_KEY"`

	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	AnthropicAPIKey  string `env:"ANTHROPIC_API_KEY"`
	GeminiAPIKey     string `env:"GEMINI_API_KEY"`
	PerplexityAPIKey string `env:"PERPLEXITY_API_KEY"`

	NotifyURL   string `env:"NOTIFY_URL"`
	NotifyToken string `env:"NOTIFY_TOKEN"`

	ProviderDelayMS int `env:"PROVIDER_DELAY_MS" envDefault:"500"`
	ScheduleDelayMS int `env:"SCHEDULE_DELAY_MS" envDefault:"1000"`

	CreditWarningThrottleHours int `env:"CREDIT_WARNING_THROTTLE_HOURS" envDefault:"24"`

	// When enabled, an in-process ticker drives the cron passes instead of an
	// external scheduler hitting the /internal/cron endpoints.
	SchedulerEnabled         bool `env:"SCHEDULER_ENABLED" envDefault:"false"`
	SchedulerIntervalMinutes int  `env:"SCHEDULER_INTERVAL_MINUTES" envDefault:"60"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) ProviderDelay() time.Duration {
	return time.Duration(c.ProviderDelayMS) * time.Millisecond
}

func (c *Config) ScheduleDelay() time.Duration {
	return time.Duration(c.ScheduleDelayMS) * time.Millisecond
}

func (c *Config) CreditWarningThrottle() time.Duration {
	return time.Duration(c.CreditWarningThrottleHours) * time.Hour
}

func (c *Config) SchedulerInterval() time.Duration {
	return time.Duration(c.SchedulerIntervalMinutes) * time.Minute
}

func (c *Config) Validate(isProduction bool) error {
	if c.SchedulerIntervalMinutes <= 0 {
		return fmt.Errorf("SCHEDULER_INTERVAL_MINUTES must be positive")
	}

	if isProduction {
		if err := validateSecret("CRON_SECRET", c.CronSecret); err != nil {
			return err
		}
		if err := validateSecret("SERVICE_TOKEN", c.ServiceToken); err != nil {
			return err
		}

		if c.RankAPIKey == "" {
			log.Warn().Msg("RANK_API_KEY is empty in production: rank-tracking checks will fail")
		}
		if c.NotifyURL == "" {
			log.Warn().Msg("NOTIFY_URL is empty in production: credit warnings will not be delivered")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
