package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds application configuration
type Config struct {
	Port      string
	DBConn    string
	LogLevel  string
	JWTSecret string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string

	ProcessorURL    string
	ProcessorAPIKey string

	RatesURL   string
	RateMargin float64

	DefaultFailedFee   string
	MaxSchedulePeriods int
	OutboxMaxAttempts  int
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	maxPeriods, err := strconv.Atoi(getEnv("MAX_SCHEDULE_PERIODS", "480"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_SCHEDULE_PERIODS: %w", err)
	}
	maxAttempts, err := strconv.Atoi(getEnv("OUTBOX_MAX_ATTEMPTS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid OUTBOX_MAX_ATTEMPTS: %w", err)
	}
	margin, err := strconv.ParseFloat(getEnv("RATE_MARGIN", "5.0"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_MARGIN: %w", err)
	}

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		DBConn:    getEnv("DB_CONN", "host=localhost port=5432 user=loans password=loans dbname=loans sslmode=disable"),
		LogLevel:  getEnv("LOG_LEVEL", "INFO"),
		JWTSecret: getEnv("JWT_SECRET", "secret"),

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SenderEmail:  getEnv("SENDER_EMAIL", "no-reply@avelar-lending.example.com"),

		ProcessorURL:    getEnv("PROCESSOR_URL", "https://api.acceptpay.example.com"),
		ProcessorAPIKey: getEnv("PROCESSOR_API_KEY", ""),

		RatesURL:   getEnv("RATES_URL", "https://www.cbr.ru/DailyInfoWebServ/DailyInfo.asmx"),
		RateMargin: margin,

		DefaultFailedFee:   getEnv("DEFAULT_FAILED_FEE", "55.00"),
		MaxSchedulePeriods: maxPeriods,
		OutboxMaxAttempts:  maxAttempts,
	}

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.ProcessorURL == "" {
		return nil, fmt.Errorf("PROCESSOR_URL is required")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
