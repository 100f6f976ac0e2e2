package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration for a roomcast node.
type Config struct {
	Env           string
	MulticastAddr string // shared group:port every node binds
	DBPath        string // sqlite file, used when DatabaseURL is empty
	DatabaseURL   string // postgres DSN, takes precedence over DBPath
	StatusAddr    string // local status/metrics HTTP listener
	ReplayLimit   int    // history rows replayed per join
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	return &Config{
		Env:           getEnv("ENV", "development"),
		MulticastAddr: getEnv("MCAST_ADDR", "239.255.0.1:49600"),
		DBPath:        getEnv("DB_PATH", "./data/roomcast.db"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StatusAddr:    statusAddr(),
		ReplayLimit:   getEnvInt("REPLAY_LIMIT", 200),
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// statusAddr distinguishes unset (default listener) from explicitly empty
// (status server disabled).
func statusAddr() string {
	if value, ok := os.LookupEnv("STATUS_ADDR"); ok {
		return value
	}
	return "127.0.0.1:9800"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}
