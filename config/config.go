package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"pricetrack/scraper"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds the service configuration.
type Config struct {
	Port               string
	Host               string
	DatabaseURL        string
	AllowedOrigins     []string
	AllowedDomains     []string
	DefaultCurrency    string
	FetchTimeout       time.Duration
	PriceCeiling       decimal.Decimal
	BrowserBin         string
	Headless           bool
	MarkersFile        string
	RateLimitPerSecond float64
	LogLevel           string
	LogJSON            bool
}

// DefaultConfig returns the defaults for tracking paulsmith.com.
func DefaultConfig() *Config {
	return &Config{
		Port:               "8080",
		Host:               "0.0.0.0",
		AllowedOrigins:     []string{"*"},
		AllowedDomains:     []string{"paulsmith.com"},
		DefaultCurrency:    "GBP",
		FetchTimeout:       25 * time.Second,
		PriceCeiling:       decimal.NewFromInt(100000),
		Headless:           true,
		RateLimitPerSecond: 2,
		LogLevel:           "info",
	}
}

// Load reads a .env file if present, then overlays environment variables
// on the defaults.
func Load() (*Config, error) {
	// a missing .env file is normal outside local development
	_ = godotenv.Load()

	d := DefaultConfig()
	cfg := &Config{
		Port:               getEnv("PORT", d.Port),
		Host:               getEnv("HOST", d.Host),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		AllowedOrigins:     getEnvList("ALLOWED_ORIGINS", d.AllowedOrigins),
		AllowedDomains:     getEnvList("TRACKED_DOMAINS", d.AllowedDomains),
		DefaultCurrency:    currencyCode(getEnv("DEFAULT_CURRENCY", d.DefaultCurrency)),
		FetchTimeout:       getEnvDuration("FETCH_TIMEOUT", d.FetchTimeout),
		PriceCeiling:       getEnvDecimal("PRICE_CEILING", d.PriceCeiling),
		BrowserBin:         getEnv("ROD_BROWSER_BIN", ""),
		Headless:           getEnvBool("BROWSER_HEADLESS", d.Headless),
		MarkersFile:        getEnv("MARKERS_FILE", ""),
		RateLimitPerSecond: getEnvFloat("RATE_LIMIT_PER_SECOND", d.RateLimitPerSecond),
		LogLevel:           getEnv("LOG_LEVEL", d.LogLevel),
		LogJSON:            getEnvBool("LOG_JSON", d.LogJSON),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("port must be numeric: %q", c.Port)
	}
	if len(c.DefaultCurrency) != 3 {
		return fmt.Errorf("default currency must be a three-letter ISO code")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive")
	}
	if !c.PriceCeiling.IsPositive() {
		return fmt.Errorf("price ceiling must be positive")
	}
	if c.RateLimitPerSecond < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}
	if c.MarkersFile != "" {
		if _, err := os.Stat(c.MarkersFile); err != nil {
			return fmt.Errorf("markers file: %w", err)
		}
	}
	return nil
}

// currencyCode accepts an ISO code in any case or a symbol such as "£".
func currencyCode(value string) string {
	if code := scraper.CurrencyForSymbol(value); code != "" {
		return code
	}
	return strings.ToUpper(strings.TrimSpace(value))
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
