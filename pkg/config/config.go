package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultAPIURL is the production Sailthru endpoint.
	DefaultAPIURL  = "https://api.sailthru.com"
	DefaultTimeout = 30 * time.Second
)

type Config struct {
	APIKey    string
	APISecret string
	APIURL    string
	Timeout   time.Duration
	// StrictScheme rejects base URLs whose scheme is neither http nor https
	// instead of falling back to plain HTTP.
	StrictScheme bool
	RecordCalls  bool
	// ImportRate caps bulk imports at this many requests per second; 0 means unlimited.
	ImportRate float64
	LogLevel   string
}

func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	timeout, err := getDuration("SAILTHRU_TIMEOUT", DefaultTimeout)
	if err != nil {
		return nil, err
	}
	strict, err := getBool("SAILTHRU_STRICT_SCHEME", false)
	if err != nil {
		return nil, err
	}
	record, err := getBool("SAILTHRU_RECORD_CALLS", false)
	if err != nil {
		return nil, err
	}
	importRate, err := getFloat("SAILTHRU_IMPORT_RATE", 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		APIKey:       os.Getenv("SAILTHRU_API_KEY"),
		APISecret:    os.Getenv("SAILTHRU_API_SECRET"),
		APIURL:       getEnv("SAILTHRU_API_URL", DefaultAPIURL),
		Timeout:      timeout,
		StrictScheme: strict,
		RecordCalls:  record,
		ImportRate:   importRate,
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("SAILTHRU_API_KEY is required")
	}
	if c.APISecret == "" {
		return fmt.Errorf("SAILTHRU_API_SECRET is required")
	}
	if c.APIURL == "" {
		return fmt.Errorf("SAILTHRU_API_URL must not be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("SAILTHRU_TIMEOUT must be positive")
	}
	if c.ImportRate < 0 {
		return fmt.Errorf("SAILTHRU_IMPORT_RATE must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}
