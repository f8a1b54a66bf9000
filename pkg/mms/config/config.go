package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	Environment string
	Port        string
	LogLevel    string

	DBDriver string
	DBDSN    string

	// BaseURL overrides the application URL derived from each request when
	// building links for emails.
	BaseURL string

	JWTSecret  string
	SessionTTL time.Duration

	AdminEmail    string
	AdminPassword string

	SMTP SMTPConfig

	RedisURL string
}

// SMTPConfig holds outgoing mail settings. An empty Host disables SMTP and
// mail is written to the log instead.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
}

const devJWTSecret = "mms-dev-secret-change-in-production"

// Load reads configuration from environment variables
func Load() (*Config, error) {
	sessionTTL, err := time.ParseDuration(getEnv("MMS_SESSION_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid MMS_SESSION_TTL: %w", err)
	}

	smtpPort, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	cfg := &Config{
		Environment:   getEnv("MMS_ENV", "development"),
		Port:          getEnv("PORT", "8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DBDriver:      getEnv("MMS_DB_DRIVER", "sqlite"),
		DBDSN:         getEnv("MMS_DB_DSN", "mms.db"),
		BaseURL:       os.Getenv("MMS_BASE_URL"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		SessionTTL:    sessionTTL,
		AdminEmail:    getEnv("MMS_ADMIN_EMAIL", "admin@mms.local"),
		AdminPassword: getEnv("MMS_ADMIN_PASSWORD", "changeme"),
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     smtpPort,
			User:     os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("MAIL_FROM", "no-reply@mms.local"),
			FromName: getEnv("MAIL_FROM_NAME", "Mechanical Management System"),
		},
		RedisURL: os.Getenv("REDIS_URL"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = devJWTSecret
	}
	return cfg, nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) validate() error {
	if c.IsProduction() && c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required in production")
	}
	if c.SessionTTL <= 0 {
		return errors.New("MMS_SESSION_TTL must be positive")
	}
	if c.DBDriver != "sqlite" && c.DBDriver != "postgres" {
		return fmt.Errorf("invalid MMS_DB_DRIVER %q: expected sqlite or postgres", c.DBDriver)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
