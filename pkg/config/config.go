package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
	_ "time/tzdata" // Asia/Shanghai on hosts without zoneinfo

	"github.com/joho/godotenv"
)

// History backends
const (
	HistoryBackendCSV      = "csv"
	HistoryBackendPostgres = "postgres"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	Env string // development, staging, production, test

	// Storage
	Data DataConfig

	// Catalog of tracked indicators and instruments (empty = embedded default)
	CatalogPath string

	// Upstream providers
	Providers ProviderConfig

	// Technical window
	HistoryLookbackDays int
	LotSize             int

	// Database (only used with HISTORY_BACKEND=postgres)
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
	MetricsPort    string

	// Scheduler
	CycleSchedule string
}

// DataConfig holds on-disk artifact locations
type DataConfig struct {
	Dir            string
	Timezone       string
	HistoryBackend string // csv, postgres
}

// RawDir is where raw snapshots are archived
func (d DataConfig) RawDir() string { return filepath.Join(d.Dir, "raw") }

// HistoryDir is where per-indicator CSV series live
func (d DataConfig) HistoryDir() string { return filepath.Join(d.Dir, "history") }

// ProcessedDir is where metrics matrices are archived
func (d DataConfig) ProcessedDir() string { return filepath.Join(d.Dir, "processed") }

// Location resolves the configured timezone
func (d DataConfig) Location() (*time.Location, error) {
	return time.LoadLocation(d.Timezone)
}

// ProviderConfig holds call policy and endpoint overrides for upstream sources
type ProviderConfig struct {
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	RatePerSec int
	Chains     int // provider chains run at once during acquisition; 1 is sequential

	EastmoneyQuoteURL string
	EastmoneyKlineURL string
	SinaHQURL         string
	DatacenterURL     string
	ShiborURL         string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	URL      string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Env: getEnv("ENV", "development"),

		Data: DataConfig{
			Dir:            getEnv("DATA_DIR", "data"),
			Timezone:       getEnv("TIMEZONE", "Asia/Shanghai"),
			HistoryBackend: getEnv("HISTORY_BACKEND", HistoryBackendCSV),
		},

		CatalogPath: getEnv("CATALOG_PATH", ""),

		Providers: ProviderConfig{
			Timeout:    getEnvAsDuration("PROVIDER_TIMEOUT", "8s"),
			Retries:    getEnvAsInt("PROVIDER_RETRIES", 1),
			RetryDelay: getEnvAsDuration("PROVIDER_RETRY_DELAY", "500ms"),
			RatePerSec: getEnvAsInt("PROVIDER_RATE_PER_SEC", 5),
			Chains:     getEnvAsInt("HARVEST_CONCURRENCY", 1),

			EastmoneyQuoteURL: getEnv("EASTMONEY_QUOTE_URL", "https://push2.eastmoney.com"),
			EastmoneyKlineURL: getEnv("EASTMONEY_KLINE_URL", "https://push2his.eastmoney.com"),
			SinaHQURL:         getEnv("SINA_HQ_URL", "http://hq.sinajs.cn"),
			DatacenterURL:     getEnv("DATACENTER_URL", "https://datacenter-web.eastmoney.com"),
			ShiborURL:         getEnv("SHIBOR_URL", "https://www.shibor.org/shibor/web/html/shibor.html"),
		},

		HistoryLookbackDays: getEnvAsInt("HISTORY_LOOKBACK_DAYS", 45),
		LotSize:             getEnvAsInt("LOT_SIZE", 100),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			Name:            getEnv("DB_NAME", "globallink"),
			User:            getEnv("DB_USER", "globallink"),
			Password:        getEnv("DB_PASSWORD", ""),
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 4),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", false),
		MetricsPort:    getEnv("METRICS_PORT", "9090"),

		CycleSchedule: getEnv("CYCLE_SCHEDULE", "0 */30 9-15 * * MON-FRI"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	switch c.Env {
	case "development", "staging", "production", "test":
	default:
		return fmt.Errorf("ENV must be one of: development, staging, production, test")
	}

	switch c.Data.HistoryBackend {
	case HistoryBackendCSV:
	case HistoryBackendPostgres:
		// Database URL is only required when history lives in postgres
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when HISTORY_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("HISTORY_BACKEND must be one of: csv, postgres")
	}

	if _, err := c.Data.Location(); err != nil {
		return fmt.Errorf("TIMEZONE %q: %w", c.Data.Timezone, err)
	}

	if c.Providers.Timeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive")
	}
	if c.Providers.Retries < 0 || c.Providers.Retries > 5 {
		return fmt.Errorf("PROVIDER_RETRIES must be between 0 and 5")
	}
	if c.Providers.Chains < 1 || c.Providers.Chains > 16 {
		return fmt.Errorf("HARVEST_CONCURRENCY must be between 1 and 16")
	}
	if c.LotSize <= 0 {
		return fmt.Errorf("LOT_SIZE must be positive")
	}
	if c.HistoryLookbackDays < 30 || c.HistoryLookbackDays > 45 {
		return fmt.Errorf("HISTORY_LOOKBACK_DAYS must be between 30 and 45")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

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
