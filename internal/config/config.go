package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Server    ServerConfig
	Neon      NeonConfig
	OpenPath  OpenPathConfig
	SMTP      SMTPConfig
	Sync      SyncConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Host         string
	Port         string `validate:"required"`
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Environment  string `validate:"oneof=development production"`
}

// NeonConfig holds the CRM API credentials. The API uses basic auth
// with the org name as user and the key as password.
type NeonConfig struct {
	BaseURL         string `validate:"required,url"`
	APIUser         string `validate:"required"`
	APIKey          string `validate:"required"`
	OpenPathFieldID string `validate:"required"`
}

type OpenPathConfig struct {
	BaseURL string `validate:"required,url"`
	OrgID   int64  `validate:"required,gt=0"`
	APIUser string `validate:"required"`
	APIKey  string `validate:"required"`
}

type SMTPConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SyncConfig struct {
	DryRun bool
	// Workers bounds the number of accounts reconciled concurrently
	// during a batch run.
	Workers int `validate:"gt=0"`
	// ResurrectionAge is how old a freshly "created" OpenPath user may
	// be before we treat it as a resurrected soft-deleted record.
	ResurrectionAge time.Duration `validate:"gt=0"`
	// Interval between full batch runs in daemon mode.
	Interval time.Duration `validate:"gt=0"`
	// PageSize for CRM account searches.
	PageSize int `validate:"gt=0,lte=200"`
}

type TelemetryConfig struct {
	Enabled        bool
	ExporterURL    string
	ServiceName    string
	ServiceVersion string
	Environment    string
}

func NewConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "localhost"),
			Port:         getEnv("SERVER_PORT", "3001"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			Environment:  getEnv("SERVER_ENVIRONMENT", "development"),
		},
		Neon: NeonConfig{
			BaseURL:         getEnv("NEON_BASE_URL", "https://api.neoncrm.com/v2"),
			APIUser:         getEnv("NEON_API_USER", ""),
			APIKey:          getEnv("NEON_API_KEY", ""),
			OpenPathFieldID: getEnv("NEON_OPENPATH_FIELD_ID", "179"),
		},
		OpenPath: OpenPathConfig{
			BaseURL: getEnv("OPENPATH_BASE_URL", "https://api.openpath.com"),
			OrgID:   int64(getEnvInt("OPENPATH_ORG_ID", 5231)),
			APIUser: getEnv("OPENPATH_API_USER", ""),
			APIKey:  getEnv("OPENPATH_API_KEY", ""),
		},
		SMTP: SMTPConfig{
			Enabled:  getEnvBool("SMTP_ENABLED", false),
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "membership@asmbly.org"),
		},
		Sync: SyncConfig{
			DryRun:          getEnvBool("SYNC_DRY_RUN", false),
			Workers:         getEnvInt("SYNC_WORKERS", 4),
			ResurrectionAge: getEnvDuration("SYNC_RESURRECTION_AGE", 5*time.Minute),
			Interval:        getEnvDuration("SYNC_INTERVAL", 6*time.Hour),
			PageSize:        getEnvInt("SYNC_PAGE_SIZE", 200),
		},
		Telemetry: TelemetryConfig{
			Enabled:        getEnvBool("TELEMETRY_ENABLED", false),
			ExporterURL:    getEnv("TELEMETRY_EXPORTER_URL", ""),
			ServiceName:    getEnv("TELEMETRY_SERVICE_NAME", "membersync"),
			ServiceVersion: getEnv("TELEMETRY_SERVICE_VERSION", "dev"),
			Environment:    getEnv("TELEMETRY_ENVIRONMENT", "development"),
		},
	}
}

// Validate checks the configuration before anything connects to the
// outside world, so credential mistakes fail at startup.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if durationValue, err := time.ParseDuration(value); err == nil {
			return durationValue
		}
	}
	return defaultValue
}
