package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 15 * time.Minute
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Outbound HTTP timeouts
const (
	RankProviderTimeout = 30 * time.Second
	LLMProviderTimeout  = 60 * time.Second
	NotifyTimeout       = 5 * time.Second
)

// Cron pass lock. The TTL bounds how long a crashed pass can block the next
// fire; a healthy pass releases the lock on completion.
const CronPassLockTTL = 30 * time.Minute

// Upper bound on due schedules fetched per pass.
const MaxSchedulesPerPass = 500
