package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // 컨테이너에 zoneinfo가 없어도 MARKET_TIMEZONE 로드

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Ledger engine
	Ledger LedgerConfig

	// SM-Score batch
	Scoring ScoringConfig

	// Trading calendar
	Calendar CalendarConfig

	// Outbound event webhooks
	Webhook WebhookConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL      string // REDIS_URL 가 있으면 Host/Port/Password/DB 보다 우선
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool

	PoolSize    int
	DialTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// LedgerConfig selects the recurrence policies
type LedgerConfig struct {
	PrincipalPolicy string // additive, ratio-adjusted
	DrawdownPolicy  string // peak-relative, clamped
	Workers         int    // 일괄 입력 시 동시 처리 전략 수
}

// ScoringConfig holds the SM-Score batch settings
type ScoringConfig struct {
	Schedule         string // cron (초 포함 6필드)
	MinOperationDays int    // 점수 산출 대상 최소 운용 일수
	Timeout          time.Duration
}

// WebhookConfig holds the outbound event notification settings
type WebhookConfig struct {
	URLs          []string // 비어 있으면 비활성
	Events        []string // 비어 있으면 전체 이벤트
	RatePerSecond int
	Timeout       time.Duration
}

// CalendarConfig holds the trading calendar
type CalendarConfig struct {
	Holidays []string // YYYY-MM-DD
	Timezone string
	File     string // 휴장일 YAML (선택, MARKET_HOLIDAYS 와 합쳐짐)
}

var (
	principalPolicies = []string{"additive", "ratio-adjusted"}
	drawdownPolicies  = []string{"peak-relative", "clamped"}
)

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),

			URL:         getEnv("REDIS_URL", ""),
			PoolSize:    getEnvAsInt("REDIS_POOL_SIZE", 10),
			DialTimeout: getEnvAsDuration("REDIS_DIAL_TIMEOUT", "5s"),
		},

		Ledger: LedgerConfig{
			PrincipalPolicy: getEnv("LEDGER_PRINCIPAL_POLICY", "additive"),
			DrawdownPolicy:  getEnv("LEDGER_DRAWDOWN_POLICY", "peak-relative"),
			Workers:         getEnvAsInt("LEDGER_WORKERS", 8),
		},

		Scoring: ScoringConfig{
			Schedule:         getEnv("SCORE_SCHEDULE", "0 0 1 * * *"), // 매일 01:00
			MinOperationDays: getEnvAsInt("SCORE_MIN_OPERATION_DAYS", 1),
			Timeout:          getEnvAsDuration("SCORE_TIMEOUT", "5m"),
		},

		Calendar: CalendarConfig{
			Holidays: getEnvAsList("MARKET_HOLIDAYS"),
			Timezone: getEnv("MARKET_TIMEZONE", "Asia/Seoul"),
			File:     getEnv("MARKET_CALENDAR_FILE", ""),
		},

		Webhook: WebhookConfig{
			URLs:          getEnvAsList("WEBHOOK_URLS"),
			Events:        getEnvAsList("WEBHOOK_EVENTS"),
			RatePerSecond: getEnvAsInt("WEBHOOK_RATE_PER_SEC", 5),
			Timeout:       getEnvAsDuration("WEBHOOK_TIMEOUT", "10s"),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	// Database URL is required
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if !slices.Contains(principalPolicies, c.Ledger.PrincipalPolicy) {
		return fmt.Errorf("LEDGER_PRINCIPAL_POLICY must be one of: %s", strings.Join(principalPolicies, ", "))
	}
	if !slices.Contains(drawdownPolicies, c.Ledger.DrawdownPolicy) {
		return fmt.Errorf("LEDGER_DRAWDOWN_POLICY must be one of: %s", strings.Join(drawdownPolicies, ", "))
	}
	if c.Ledger.Workers < 1 {
		return fmt.Errorf("LEDGER_WORKERS must be positive")
	}

	for _, h := range c.Calendar.Holidays {
		if _, err := time.Parse("2006-01-02", h); err != nil {
			return fmt.Errorf("MARKET_HOLIDAYS: invalid date %q", h)
		}
	}
	if _, err := time.LoadLocation(c.Calendar.Timezone); err != nil {
		return fmt.Errorf("MARKET_TIMEZONE: %w", err)
	}

	for _, u := range c.Webhook.URLs {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("WEBHOOK_URLS: %q is not an http(s) URL", u)
		}
	}
	if len(c.Webhook.URLs) > 0 && c.Webhook.RatePerSecond < 1 {
		return fmt.Errorf("WEBHOOK_RATE_PER_SEC must be positive")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env",           // Current directory
		"backend/.env",   // From project root
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
			filepath.Join(exeDir, "..", "..", ".env"),
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
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

// getEnvAsList splits a comma-separated value, dropping empty items
func getEnvAsList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}

	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
