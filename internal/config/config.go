package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port      string
	DBConn    string
	LogLevel  string
	JWTSecret string

	BackendURL    string
	GatewayURL    string
	GoldRateURL   string
	UpstreamToken string
	HTTPTimeout   time.Duration

	CatalogTTL         time.Duration
	EligibilityGrace   time.Duration
	HandoffBudgetBytes int
	DefaultMaxAmount   int64
	SealKey            string

	CatalogCron  string
	GoldRateCron string
	MonitorCron  string

	RateLimitRPS   float64
	RateLimitBurst int

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string
}

// NewConfig loads configuration from environment variables, reading a local
// .env file first when one is present.
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		DBConn:    getEnv("DB_CONN", "host=localhost port=5436 user=test password=test dbname=schemes sslmode=disable"),
		LogLevel:  getEnv("LOG_LEVEL", "INFO"),
		JWTSecret: getEnv("JWT_SECRET", "secret"),

		BackendURL:    getEnv("BACKEND_URL", "http://localhost:9000/api"),
		GatewayURL:    getEnv("GATEWAY_URL", "http://localhost:9000/api/payments/initiate"),
		GoldRateURL:   getEnv("GOLD_RATE_URL", "http://localhost:9000/rates/gold.xml"),
		UpstreamToken: getEnv("UPSTREAM_TOKEN", ""),
		HTTPTimeout:   getDuration("HTTP_TIMEOUT", 10*time.Second),

		CatalogTTL:         getDuration("CATALOG_TTL", 5*time.Minute),
		EligibilityGrace:   getDuration("ELIGIBILITY_GRACE", 1500*time.Millisecond),
		HandoffBudgetBytes: getInt("HANDOFF_BUDGET_BYTES", 2048),
		DefaultMaxAmount:   int64(getInt("DEFAULT_MAX_AMOUNT", 100000)),
		SealKey:            getEnv("SEAL_KEY", "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"),

		CatalogCron:  getEnv("CATALOG_CRON", "@every 5m"),
		GoldRateCron: getEnv("GOLD_RATE_CRON", "@every 15m"),
		MonitorCron:  getEnv("MONITOR_CRON", "@every 1m"),

		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getInt("RATE_LIMIT_BURST", 10),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SenderEmail:  getEnv("SENDER_EMAIL", "no-reply@schemes.local"),
	}

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.BackendURL == "" {
		return nil, fmt.Errorf("BACKEND_URL is required")
	}
	if cfg.GatewayURL == "" {
		return nil, fmt.Errorf("GATEWAY_URL is required")
	}
	if len(cfg.SealKey) != 64 {
		return nil, fmt.Errorf("SEAL_KEY must be 64 hex characters")
	}
	if cfg.HandoffBudgetBytes <= 0 {
		return nil, fmt.Errorf("HANDOFF_BUDGET_BYTES must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
