package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultConsistencySchedule runs the schema consistency checks every 15 minutes
const DefaultConsistencySchedule = "@every 15m"

// DatabaseConfig holds TiDB/MySQL connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	TLS             bool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SMTPConfig holds outgoing mail settings for the sendEmail action
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether a mail server is configured
func (s SMTPConfig) Enabled() bool {
	return s.Host != ""
}

// Config is the process configuration
type Config struct {
	Port                string
	JWTSecret           string
	SchemaStrictMode    bool
	ConsistencySchedule string
	WebhookTimeout      time.Duration
	LogLevel            string
	LogFormat           string
	Database            DatabaseConfig
	SMTP                SMTPConfig
}

// Load reads an optional .env file and then the environment
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", f, err)
			}
		}
	}

	var errs []string
	intVar := func(key string, def int) int {
		v, err := getInt(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	boolVar := func(key string, def bool) bool {
		v, err := getBool(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	durationVar := func(key string, def time.Duration) time.Duration {
		v, err := getDuration(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}

	cfg := &Config{
		Port:                getString("PORT", "3001"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		SchemaStrictMode:    boolVar("SCHEMA_STRICT_MODE", false),
		ConsistencySchedule: getString("CONSISTENCY_CHECK_SCHEDULE", DefaultConsistencySchedule),
		WebhookTimeout:      durationVar("WEBHOOK_TIMEOUT", 10*time.Second),
		LogLevel:            getString("LOG_LEVEL", "info"),
		LogFormat:           getString("LOG_FORMAT", "json"),
		Database: DatabaseConfig{
			Host:            getString("DB_HOST", "127.0.0.1"),
			Port:            intVar("DB_PORT", 4000),
			User:            getString("DB_USER", "root"),
			Password:        os.Getenv("DB_PASSWORD"),
			Name:            getString("DB_NAME", "nexuscrm"),
			TLS:             boolVar("DB_TLS", false),
			MaxOpenConns:    intVar("DB_MAX_OPEN_CONNS", 100),
			MaxIdleConns:    intVar("DB_MAX_IDLE_CONNS", 100),
			ConnMaxLifetime: durationVar("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     intVar("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getString("SMTP_FROM", "noreply@nexuscrm.local"),
		},
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// Validate checks the settings required to serve HTTP
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.WebhookTimeout <= 0 {
		return fmt.Errorf("WEBHOOK_TIMEOUT must be positive")
	}
	return nil
}

func getString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s must be an integer", key)
	}
	return i, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%s must be a boolean", key)
	}
	return b, nil
}

// getDuration accepts Go durations ("10s") or plain seconds ("10").
func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s must be a duration", key)
	}
	return d, nil
}
