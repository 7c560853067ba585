package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
// Every environment variable is read exactly once, here.
type Config struct {
	Env string // development, staging, production

	// Storage
	Database DatabaseConfig
	SQLite   SQLiteConfig
	Backend  string // "postgres" or "sqlite"

	// Redis cache
	Redis RedisConfig

	// Source scraping
	Scraper ScraperConfig

	// Ingestion policy
	Ingest IngestConfig

	// Financial defaults
	TaxRatePercent float64

	// Logging
	LogLevel  string
	LogFormat string

	// Operational API
	APIPort string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL string

	// Connection pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// SQLiteConfig holds the embedded store configuration.
type SQLiteConfig struct {
	Path string
}

// RedisConfig holds Redis cache configuration.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
	TTL      time.Duration
}

// ScraperConfig holds the auction listing source configuration.
type ScraperConfig struct {
	SourceURL     string
	UserAgent     string
	NavTimeout    time.Duration // full page navigation budget
	RenderTimeout time.Duration // wait for the results table to materialize
	MinInterval   time.Duration // politeness gap between fetches
}

// IngestConfig holds update orchestration policy.
type IngestConfig struct {
	MaxAttempts  int           // fetch attempt ceiling per run
	InitialDelay time.Duration // backoff seed
	MaxDelay     time.Duration // backoff cap
	RunBudget    time.Duration // wall-clock budget for one run
	Cadence      time.Duration // expected publication cadence of the source
	CronSpec     string        // schedule for the background trigger
}

// Load reads configuration from environment variables.
// This is the only function in the repo that calls os.Getenv().
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Env: getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		SQLite: SQLiteConfig{
			Path: getEnv("SQLITE_PATH", "data/tbill_history.db"),
		},

		Backend: getEnv("STORE_BACKEND", "sqlite"),

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			TTL:      getEnvAsDuration("REDIS_CACHE_TTL", "6h"),
		},

		Scraper: ScraperConfig{
			SourceURL:     getEnv("CBE_SOURCE_URL", "https://www.cbe.org.eg/ar/auctions/egp-t-bills"),
			UserAgent:     getEnv("SCRAPER_USER_AGENT", defaultUserAgent),
			NavTimeout:    getEnvAsDuration("SCRAPER_NAV_TIMEOUT", "60s"),
			RenderTimeout: getEnvAsDuration("SCRAPER_RENDER_TIMEOUT", "30s"),
			MinInterval:   getEnvAsDuration("SCRAPER_MIN_INTERVAL", "10s"),
		},

		Ingest: IngestConfig{
			MaxAttempts:  getEnvAsInt("INGEST_MAX_ATTEMPTS", 3),
			InitialDelay: getEnvAsDuration("INGEST_INITIAL_DELAY", "10s"),
			MaxDelay:     getEnvAsDuration("INGEST_MAX_DELAY", "2m"),
			RunBudget:    getEnvAsDuration("INGEST_RUN_BUDGET", "5m"),
			Cadence:      getEnvAsDuration("INGEST_CADENCE", "96h"),
			CronSpec:     getEnv("INGEST_CRON", "0 0 */4 * * *"),
		},

		TaxRatePercent: getEnvAsFloat("TAX_RATE_PERCENT", 20.0),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		APIPort: getEnv("API_PORT", "8080"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.1 Safari/537.36"

// validate checks if required configuration values are set.
func (c *Config) validate() error {
	switch c.Backend {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=postgres")
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			return fmt.Errorf("SQLITE_PATH must not be empty")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of: postgres, sqlite")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.TaxRatePercent < 0 || c.TaxRatePercent > 100 {
		return fmt.Errorf("TAX_RATE_PERCENT must be between 0 and 100")
	}

	if c.Ingest.MaxAttempts < 1 {
		return fmt.Errorf("INGEST_MAX_ATTEMPTS must be at least 1")
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations.
func loadEnvFile() {
	paths := []string{
		".env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
