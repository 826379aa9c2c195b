package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Issuer         string // Optional: issuer claim for tokens (default: crossgate)
	KeyID          string // Optional: kid for the signing key (default: crossgate-key-001)
	SigningKeyFile string // Optional: path to an Ed25519 private key PEM; empty means an ephemeral key per boot

	DatabaseFile string // Optional: path to SQLite database file (default: ./auth.db)
	RedisURL     string // Optional: redis URL for the session registry; empty means in-process memory
	SeedUsers    string // Optional: seeded accounts, "username:password[:preferred name]" comma-separated

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Registry sweep interval (default: 1m)
}

func LoadConfig() Config {
	return Config{
		Issuer:         getEnvOrDefault("AUTH_ISSUER", "crossgate"),
		KeyID:          getEnvOrDefault("AUTH_KEY_ID", "crossgate-key-001"),
		SigningKeyFile: os.Getenv("AUTH_SIGNING_KEY_FILE"),

		DatabaseFile: getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		RedisURL:     os.Getenv("AUTH_REDIS_URL"),
		SeedUsers:    os.Getenv("AUTH_SEED_USERS"),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Minute),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
