// Package config loads backend runtime settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Settings holds the backend runtime configuration.
type Settings struct {
	// ServerSalt keys the token hash; tokens hashed under different salts
	// live in independent hash spaces.
	ServerSalt string

	// DatabaseURL selects the durable store when set; empty selects the
	// in-memory store.
	DatabaseURL string

	Host string
	Port int

	// Connection pool knobs for the durable store.
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Retention selects how long idle encounters are kept. Zero disables
	// the retention sweep entirely.
	Retention       time.Duration
	CleanupInterval time.Duration
}

// Load reads settings from DNDTRACKER_* environment variables.
func Load() (Settings, error) {
	port, err := strconv.Atoi(getEnvOrDefault("DNDTRACKER_PORT", "8000"))
	if err != nil {
		return Settings{}, fmt.Errorf("invalid DNDTRACKER_PORT: %w", err)
	}

	maxOpen, err := strconv.Atoi(getEnvOrDefault("DNDTRACKER_DB_MAX_OPEN_CONNS", "10"))
	if err != nil {
		return Settings{}, fmt.Errorf("invalid DNDTRACKER_DB_MAX_OPEN_CONNS: %w", err)
	}
	maxIdle, err := strconv.Atoi(getEnvOrDefault("DNDTRACKER_DB_MAX_IDLE_CONNS", "5"))
	if err != nil {
		return Settings{}, fmt.Errorf("invalid DNDTRACKER_DB_MAX_IDLE_CONNS: %w", err)
	}

	retention, err := time.ParseDuration(getEnvOrDefault("DNDTRACKER_RETENTION", "0"))
	if err != nil {
		return Settings{}, fmt.Errorf("invalid DNDTRACKER_RETENTION: %w", err)
	}
	cleanupInterval, err := time.ParseDuration(getEnvOrDefault("DNDTRACKER_CLEANUP_INTERVAL", "1h"))
	if err != nil {
		return Settings{}, fmt.Errorf("invalid DNDTRACKER_CLEANUP_INTERVAL: %w", err)
	}

	return Settings{
		ServerSalt:      getEnvOrDefault("DNDTRACKER_SERVER_SALT", "dev-salt"),
		DatabaseURL:     os.Getenv("DNDTRACKER_DATABASE_URL"),
		Host:            getEnvOrDefault("DNDTRACKER_HOST", "127.0.0.1"),
		Port:            port,
		DBMaxOpenConns:  maxOpen,
		DBMaxIdleConns:  maxIdle,
		Retention:       retention,
		CleanupInterval: cleanupInterval,
	}, nil
}

// Addr returns the host:port bind address.
func (s Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
