// Package config builds runtime configuration from environment variables so
// main stays lean. Optional backends (Postgres, Redis, Kafka) fall back to
// in-process substitutes when their settings are absent.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	AdminToken      string
	JWTSigningKey   string
	JWTIssuer       string
	JWTAudience     string
	ShutdownTimeout time.Duration

	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

// PostgresConfig holds the database settings. An empty URL selects the
// in-memory stores.
type PostgresConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig holds the Redis settings. An empty URL disables notification
// dedupe.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds the event sink settings. Empty brokers select the log
// sink.
type KafkaConfig struct {
	Brokers []string
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	return Server{
		Addr:            envOr("COITRACK_ADDR", ":8080"),
		AdminToken:      envOr("COITRACK_ADMIN_TOKEN", ""),
		JWTSigningKey:   envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:       envOr("JWT_ISSUER", "coitrack"),
		JWTAudience:     envOr("JWT_AUDIENCE", "coitrack"),
		ShutdownTimeout: 10 * time.Second,
		Postgres: PostgresConfig{
			URL:          os.Getenv("POSTGRES_URL"),
			MaxOpenConns: envIntOr("POSTGRES_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envIntOr("POSTGRES_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envIntOr("REDIS_POOL_SIZE", 4),
			MinIdleConns: envIntOr("REDIS_MIN_IDLE_CONNS", 1),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
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
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
