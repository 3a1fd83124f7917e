// Package config builds runtime configuration from environment variables so
// main stays lean. Every knob has a development default; production overrides
// via the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates all runtime configuration.
type Config struct {
	Server   Server
	Postgres Postgres
	Redis    Redis
	Kafka    Kafka
	Quality  ExternalService
	Dedupe   ExternalService
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	JWTSigningKey   string
	JWTIssuer       string
	JWTAudience     string
	ShutdownTimeout time.Duration
}

// Postgres configures the registration record store. An empty URL selects the
// in-memory store (development and unit-test wiring).
type Postgres struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// Redis configures the read-side record cache. An empty URL disables caching.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CacheTTL     time.Duration
}

// Kafka configures the audit event sink. Empty brokers fall back to the
// in-process audit store.
type Kafka struct {
	Brokers []string
	Topic   string
}

// ExternalService configures an outbound collaborator (quality scorer,
// deduplication service). Timeouts bound every call; failures are surfaced
// fail-closed by the clients.
type ExternalService struct {
	BaseURL string
	Timeout time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:            envOr("IDREG_ADDR", ":8080"),
			JWTSigningKey:   envOr("IDREG_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:       envOr("IDREG_JWT_ISSUER", "idregistry"),
			JWTAudience:     envOr("IDREG_JWT_AUDIENCE", "idregistry-admin"),
			ShutdownTimeout: envDurationOr("IDREG_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Postgres: Postgres{
			URL:          os.Getenv("IDREG_POSTGRES_URL"),
			MaxOpenConns: envIntOr("IDREG_POSTGRES_MAX_OPEN", 25),
			MaxIdleConns: envIntOr("IDREG_POSTGRES_MAX_IDLE", 5),
		},
		Redis: Redis{
			URL:          os.Getenv("IDREG_REDIS_URL"),
			PoolSize:     envIntOr("IDREG_REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("IDREG_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDurationOr("IDREG_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDurationOr("IDREG_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDurationOr("IDREG_REDIS_WRITE_TIMEOUT", 3*time.Second),
			CacheTTL:     envDurationOr("IDREG_REDIS_CACHE_TTL", 30*time.Second),
		},
		Kafka: Kafka{
			Brokers: splitNonEmpty(os.Getenv("IDREG_KAFKA_BROKERS")),
			Topic:   envOr("IDREG_KAFKA_AUDIT_TOPIC", "registration.audit"),
		},
		Quality: ExternalService{
			BaseURL: envOr("IDREG_QUALITY_URL", "http://localhost:9091"),
			Timeout: envDurationOr("IDREG_QUALITY_TIMEOUT", 30*time.Second),
		},
		Dedupe: ExternalService{
			BaseURL: envOr("IDREG_DEDUPE_URL", "http://localhost:9092"),
			Timeout: envDurationOr("IDREG_DEDUPE_TIMEOUT", 30*time.Second),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func splitNonEmpty(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
