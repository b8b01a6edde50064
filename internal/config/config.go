package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig
	Log         LogConfig
	Auth        AuthConfig
	Credentials CredentialsConfig
	Audit       AuditConfig
	Persistence PersistenceConfig
	LoginLimit  LoginLimitConfig
	Tracing     TracingConfig
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins []string
	TLS         TLSConfig
}

// TLSConfig contains TLS configuration
type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// AuthConfig contains token signing configuration. The token lifetime is
// fixed; only the trust parameters are configurable.
type AuthConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
}

// CredentialsConfig selects the credential store backend
type CredentialsConfig struct {
	Backend     string // "memory", "postgres"
	DatabaseURL string
	SeedUsers   bool
	SeedRoute   bool
}

// AuditConfig contains audit recorder configuration
type AuditConfig struct {
	Enabled       bool
	Sink          string // "store", "stdout", "file"
	FilePath      string
	BufferSize    int
	FlushInterval time.Duration
	DropPolicy    string // "drop", "block"
	BlockTimeout  time.Duration
}

// PersistenceConfig contains the audit document store configuration
type PersistenceConfig struct {
	Type       string // "memory", "badger"
	DataDir    string
	SyncWrites bool
}

// LoginLimitConfig throttles login attempts per client IP
type LoginLimitConfig struct {
	Enabled        bool
	RequestsPerSec float64
	Burst          int
}

// TracingConfig contains OpenTelemetry tracing configuration
type TracingConfig struct {
	Enabled        bool
	Endpoint       string
	ServiceName    string
	ServiceVersion string
	Environment    string
	SamplingRatio  float64
	InsecureConn   bool
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:        getEnvString("BAKERY_HOST", ""),
			Port:        getEnvInt("BAKERY_PORT", 8080),
			CORSOrigins: getEnvStringSlice("BAKERY_CORS_ORIGINS", nil),
			TLS: TLSConfig{
				Enabled:  getEnvBool("BAKERY_TLS_ENABLED", false),
				CertFile: getEnvString("BAKERY_TLS_CERT_FILE", ""),
				KeyFile:  getEnvString("BAKERY_TLS_KEY_FILE", ""),
			},
		},
		Log: LogConfig{
			Level:  getEnvString("BAKERY_LOG_LEVEL", "info"),
			Format: getEnvString("BAKERY_LOG_FORMAT", "text"),
		},
		Auth: AuthConfig{
			SigningKey: getEnvString("BAKERY_JWT_SIGNING_KEY", ""),
			Issuer:     getEnvString("BAKERY_JWT_ISSUER", "bakery-api"),
			Audience:   getEnvString("BAKERY_JWT_AUDIENCE", "bakery-clients"),
		},
		Credentials: CredentialsConfig{
			Backend:     getEnvString("BAKERY_CREDENTIALS_BACKEND", "memory"),
			DatabaseURL: getEnvString("BAKERY_DATABASE_URL", ""),
			SeedUsers:   getEnvBool("BAKERY_SEED_USERS", false),
			SeedRoute:   getEnvBool("BAKERY_SEED_ROUTE", false),
		},
		Audit: AuditConfig{
			Enabled:       getEnvBool("BAKERY_AUDIT_ENABLED", true),
			Sink:          getEnvString("BAKERY_AUDIT_SINK", "store"),
			FilePath:      getEnvString("BAKERY_AUDIT_FILE", "./logs/audit.log"),
			BufferSize:    getEnvInt("BAKERY_AUDIT_BUFFER_SIZE", 1024),
			FlushInterval: getEnvDuration("BAKERY_AUDIT_FLUSH_INTERVAL", time.Second),
			DropPolicy:    getEnvString("BAKERY_AUDIT_DROP_POLICY", "drop"),
			BlockTimeout:  getEnvDuration("BAKERY_AUDIT_BLOCK_TIMEOUT", time.Second),
		},
		Persistence: PersistenceConfig{
			Type:       getEnvString("BAKERY_AUDIT_STORE", "badger"),
			DataDir:    getEnvString("BAKERY_DATA_DIR", "./data/auditlog"),
			SyncWrites: getEnvBool("BAKERY_SYNC_WRITES", true),
		},
		LoginLimit: LoginLimitConfig{
			Enabled:        getEnvBool("BAKERY_LOGIN_LIMIT_ENABLED", true),
			RequestsPerSec: getEnvFloat("BAKERY_LOGIN_LIMIT_RPS", 1.0),
			Burst:          getEnvInt("BAKERY_LOGIN_LIMIT_BURST", 5),
		},
		Tracing: TracingConfig{
			Enabled:        getEnvBool("BAKERY_TRACING_ENABLED", false),
			Endpoint:       getEnvString("BAKERY_TRACING_ENDPOINT", "otel-collector:4318"),
			ServiceName:    getEnvString("BAKERY_TRACING_SERVICE_NAME", "bakery"),
			ServiceVersion: getEnvString("BAKERY_TRACING_SERVICE_VERSION", "1.0.0"),
			Environment:    getEnvString("BAKERY_TRACING_ENVIRONMENT", "development"),
			SamplingRatio:  getEnvFloat("BAKERY_TRACING_SAMPLING_RATIO", 1.0),
			InsecureConn:   getEnvBool("BAKERY_TRACING_INSECURE", true),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Server.Port)
	}

	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("TLS cert and key files must be specified when TLS is enabled")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Log.Format)
	}

	if c.Auth.SigningKey == "" {
		return fmt.Errorf("JWT signing key must be specified (BAKERY_JWT_SIGNING_KEY)")
	}
	if len(c.Auth.SigningKey) < 32 {
		return fmt.Errorf("JWT signing key must be at least 32 bytes")
	}
	if c.Auth.Issuer == "" || c.Auth.Audience == "" {
		return fmt.Errorf("JWT issuer and audience must be specified")
	}

	switch c.Credentials.Backend {
	case "memory":
	case "postgres":
		if c.Credentials.DatabaseURL == "" {
			return fmt.Errorf("database URL must be specified for the postgres credential backend")
		}
	default:
		return fmt.Errorf("invalid credentials backend: %s (must be memory or postgres)", c.Credentials.Backend)
	}

	if c.Audit.Enabled {
		switch c.Audit.Sink {
		case "store", "stdout":
		case "file":
			if c.Audit.FilePath == "" {
				return fmt.Errorf("audit file path must be specified for the file sink")
			}
		default:
			return fmt.Errorf("invalid audit sink: %s (must be store, stdout or file)", c.Audit.Sink)
		}

		if c.Audit.BufferSize <= 0 {
			return fmt.Errorf("audit buffer size must be positive")
		}
		if c.Audit.DropPolicy != "drop" && c.Audit.DropPolicy != "block" {
			return fmt.Errorf("invalid audit drop policy: %s (must be drop or block)", c.Audit.DropPolicy)
		}
		if c.Audit.DropPolicy == "block" && c.Audit.BlockTimeout <= 0 {
			return fmt.Errorf("audit block timeout must be positive")
		}
	}

	switch c.Persistence.Type {
	case "memory":
	case "badger":
		if c.Persistence.DataDir == "" {
			return fmt.Errorf("data directory must be specified for the badger audit store")
		}
	default:
		return fmt.Errorf("invalid audit store type: %s (must be memory or badger)", c.Persistence.Type)
	}

	if c.LoginLimit.Enabled {
		if c.LoginLimit.RequestsPerSec <= 0 {
			return fmt.Errorf("login limit requests per second must be positive")
		}
		if c.LoginLimit.Burst <= 0 {
			return fmt.Errorf("login limit burst must be positive")
		}
	}

	return nil
}

// Address returns the server address in host:port format
func (c *Config) Address() string {
	if c.Server.Host == "" {
		return fmt.Sprintf(":%d", c.Server.Port)
	}
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
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

// getEnvStringSlice reads a comma-separated list, dropping empty elements
func getEnvStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
