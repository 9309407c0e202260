package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	DBDriver string
	DBSource string
	Port     string
	Env      string
	LogLevel string

	JWTSecret string

	PayoutWebhookURL   string
	PayoutPollInterval time.Duration

	// Relay settings.
	APIBaseURL        string
	OracleURL         string
	RelayLedger       string
	RelayPollInterval time.Duration
}

// Load reads configuration from defaults, the optional file named by
// CONFIG_FILE, and the environment, in increasing precedence.
func Load() (*Config, error) {
	return LoadFrom(viper.New())
}

func LoadFrom(v *viper.Viper) (*Config, error) {
	v.SetDefault("DB_DRIVER", DriverPostgres)
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PAYOUT_POLL_INTERVAL", 5*time.Second)
	v.SetDefault("API_BASE_URL", "http://localhost:8080")
	v.SetDefault("RELAY_POLL_INTERVAL", 2*time.Second)
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		DBDriver:           strings.ToLower(v.GetString("DB_DRIVER")),
		DBSource:           v.GetString("DB_SOURCE"),
		Port:               v.GetString("SERVER_PORT"),
		Env:                v.GetString("ENVIRONMENT"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		JWTSecret:          v.GetString("JWT_SECRET"),
		PayoutWebhookURL:   v.GetString("PAYOUT_WEBHOOK_URL"),
		PayoutPollInterval: v.GetDuration("PAYOUT_POLL_INTERVAL"),
		APIBaseURL:         v.GetString("API_BASE_URL"),
		OracleURL:          v.GetString("ORACLE_URL"),
		RelayLedger:        v.GetString("RELAY_LEDGER"),
		RelayPollInterval:  v.GetDuration("RELAY_POLL_INTERVAL"),
	}
	return cfg, nil
}

// ValidateServer checks what the api host needs to start.
func (c *Config) ValidateServer() error {
	switch c.DBDriver {
	case DriverPostgres, DriverSQLite:
		if c.DBSource == "" {
			return fmt.Errorf("DB_SOURCE environment variable is required for driver %s", c.DBDriver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	if c.PayoutPollInterval <= 0 {
		return errors.New("PAYOUT_POLL_INTERVAL must be positive")
	}
	return nil
}

// ValidateRelay checks what the relay needs to start.
func (c *Config) ValidateRelay() error {
	if c.OracleURL == "" {
		return errors.New("ORACLE_URL environment variable is required")
	}
	if c.RelayLedger == "" {
		return errors.New("RELAY_LEDGER environment variable is required")
	}
	if c.RelayPollInterval <= 0 {
		return errors.New("RELAY_POLL_INTERVAL must be positive")
	}
	return nil
}
