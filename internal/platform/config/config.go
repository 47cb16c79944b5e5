// Package config builds process configuration from environment
// variables so main stays lean. Every knob has a development default;
// production deployments override through the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Breaker tunes one source circuit breaker.
type Breaker struct {
	FailureThreshold int
	SuccessThreshold int
	ResetTimeout     time.Duration
	MonitorWindow    time.Duration
	MaxRetries       int
}

// Transition captures the startup flag state for the migration. This
// is the engine's view of the external flag collaborator: loaded once
// at boot, mutated only through the admin endpoints.
type Transition struct {
	Mode             string
	PreferUTC        bool
	FallbackToLegacy bool
}

// Redis configures the UTC event store connection.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Config is the full process configuration.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration

	LogFormat string // "text" or "json"
	LogLevel  string

	// PostgresDSN points at the legacy day-aggregate store. Empty keeps
	// the in-memory adapter, for dev and tests.
	PostgresDSN string
	Redis       Redis
	// KafkaBrokers enables the Kafka audit sink when non-empty.
	KafkaBrokers []string
	AuditTopic   string

	Transition Transition
	Breaker    Breaker

	// JWTSigningKey verifies caller access tokens on session reads.
	JWTSigningKey string
	// AdminTokenHash is the bcrypt hash of the X-Admin-Token value
	// required by the ops endpoints. Empty disables them.
	AdminTokenHash string

	// DefaultTimezone seeds profile-less users in dev deployments.
	DefaultTimezone string
}

// FromEnv reads MERIDIAN_* environment variables into a Config.
func FromEnv() Config {
	return Config{
		Addr:            envString("MERIDIAN_ADDR", ":8080"),
		ShutdownTimeout: envDuration("MERIDIAN_SHUTDOWN_TIMEOUT", 10*time.Second),

		LogFormat: envString("MERIDIAN_LOG_FORMAT", "text"),
		LogLevel:  envString("MERIDIAN_LOG_LEVEL", "info"),

		PostgresDSN: os.Getenv("MERIDIAN_POSTGRES_DSN"),
		Redis: Redis{
			URL:          os.Getenv("MERIDIAN_REDIS_URL"),
			PoolSize:     envInt("MERIDIAN_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("MERIDIAN_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("MERIDIAN_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("MERIDIAN_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("MERIDIAN_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		KafkaBrokers: envList("MERIDIAN_KAFKA_BROKERS"),
		AuditTopic:   envString("MERIDIAN_AUDIT_TOPIC", "meridian.audit"),

		Transition: Transition{
			Mode:             envString("MERIDIAN_TRANSITION_MODE", "disabled"),
			PreferUTC:        envBool("MERIDIAN_PREFER_UTC", false),
			FallbackToLegacy: envBool("MERIDIAN_FALLBACK_TO_LEGACY", true),
		},
		Breaker: Breaker{
			FailureThreshold: envInt("MERIDIAN_BREAKER_FAILURE_THRESHOLD", 5),
			SuccessThreshold: envInt("MERIDIAN_BREAKER_SUCCESS_THRESHOLD", 1),
			ResetTimeout:     envDuration("MERIDIAN_BREAKER_RESET_TIMEOUT", 30*time.Second),
			MonitorWindow:    envDuration("MERIDIAN_BREAKER_MONITOR_WINDOW", time.Minute),
			MaxRetries:       envInt("MERIDIAN_BREAKER_MAX_RETRIES", 3),
		},

		// Dev default, override in production.
		JWTSigningKey:  envString("MERIDIAN_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		AdminTokenHash: os.Getenv("MERIDIAN_ADMIN_TOKEN_HASH"),

		DefaultTimezone: envString("MERIDIAN_DEFAULT_TIMEZONE", "UTC"),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
