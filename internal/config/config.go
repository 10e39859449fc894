package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBFile       string
	APIAddr      string
	BaseURL      string
	PollInterval time.Duration
	SearchLimit  int
	LogLevel     slog.Level
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first if present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	pollInterval, err := time.ParseDuration(getEnv("POLL_INTERVAL", "1500ms"))
	if err != nil {
		return nil, fmt.Errorf("POLL_INTERVAL: %w", err)
	}

	searchLimit, err := strconv.Atoi(getEnv("SEARCH_LIMIT", "20"))
	if err != nil {
		return nil, fmt.Errorf("SEARCH_LIMIT: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	cfg := &Config{
		DBFile:       getEnv("DIRECTCHAT_DB", "directchat.db"),
		APIAddr:      getEnv("API_ADDR", ":8080"),
		BaseURL:      getEnv("BASE_URL", "http://localhost:8080"),
		PollInterval: pollInterval,
		SearchLimit:  searchLimit,
		LogLevel:     level,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DBFile) == "" {
		return fmt.Errorf("DIRECTCHAT_DB must not be empty")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be greater than 0")
	}

	if c.SearchLimit <= 0 {
		return fmt.Errorf("SEARCH_LIMIT must be greater than 0")
	}

	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("BASE_URL must start with http:// or https://")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
