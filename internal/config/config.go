// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported DB_TYPE values.
const (
	DBPostgres = "postgres"
	DBSQLite   = "sqlite"
	DBMemory   = "memory"
)

// debugJWTSecret signs tokens in debug mode when JWT_SECRET is unset.
const debugJWTSecret = "lostfound-debug-secret"

// ServerConfig holds all server-related settings
type ServerConfig struct {
	Port           int
	Host           string
	MetricsEnabled bool
}

// Addr is the listen address.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database configuration settings
type DatabaseConfig struct {
	Type       string // postgres, sqlite or memory
	URI        string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SSLMode    string
	SQLitePath string
}

// MessagingConfig holds limits for the messaging core.
type MessagingConfig struct {
	UploadDir           string
	MaxImageBytes       int64
	RecallWindow        time.Duration
	ModerationTermsFile string
}

// Config holds the complete application configuration
type Config struct {
	Server         *ServerConfig
	Database       *DatabaseConfig
	Messaging      *MessagingConfig
	JWTSecret      string
	AllowedOrigins []string
	Debug          bool
}

// DefaultConfig provides default server settings
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Port:           8080,
		Host:           "0.0.0.0",
		MetricsEnabled: true,
	}
}

// DefaultDatabaseConfig provides default database settings
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Type:       DBPostgres,
		Port:       5432,
		SSLMode:    "require",
		SQLitePath: "data/lostfound.db",
	}
}

// DefaultMessagingConfig provides default messaging limits
func DefaultMessagingConfig() *MessagingConfig {
	return &MessagingConfig{
		UploadDir:     "uploads/messages",
		MaxImageBytes: 10 << 20,
		RecallWindow:  120 * time.Second,
	}
}

// LoadConfig loads configuration from environment variables and applies
// defaults. envFile, when set, is loaded before the usual .env locations.
func LoadConfig(envFile string) (*Config, error) {
	envLocations := []string{
		".env",       // Current directory
		"../../.env", // Project root when running from cmd/lostfound
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("loading env file %s: %w", envFile, err)
		}
	} else {
		for _, location := range envLocations {
			// godotenv never overrides variables that are already set
			if err := godotenv.Load(location); err == nil {
				break
			}
		}
	}

	serverConfig := DefaultConfig()
	if portStr := os.Getenv("PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", portStr, err)
		}
		serverConfig.Port = port
	}
	if host := os.Getenv("HOST"); host != "" {
		serverConfig.Host = host
	}
	if metricsEnabled := os.Getenv("METRICS_ENABLED"); metricsEnabled != "" {
		serverConfig.MetricsEnabled = metricsEnabled == "true"
	}

	dbConfig, err := loadDatabaseConfig()
	if err != nil {
		return nil, err
	}

	msgConfig, err := loadMessagingConfig()
	if err != nil {
		return nil, err
	}

	config := &Config{
		Server:         serverConfig,
		Database:       dbConfig,
		Messaging:      msgConfig,
		AllowedOrigins: []string{"*"}, // Default to allow all origins
		Debug:          os.Getenv("DEBUG") == "true",
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = nil
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				config.AllowedOrigins = append(config.AllowedOrigins, origin)
			}
		}
	}

	config.JWTSecret = os.Getenv("JWT_SECRET")
	if config.JWTSecret == "" {
		if !config.Debug {
			return nil, fmt.Errorf("JWT_SECRET environment variable is required unless DEBUG=true")
		}
		config.JWTSecret = debugJWTSecret
	}

	return config, nil
}

func loadDatabaseConfig() (*DatabaseConfig, error) {
	dbConfig := DefaultDatabaseConfig()
	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		dbConfig.Type = strings.ToLower(dbType)
	}

	switch dbConfig.Type {
	case DBPostgres:
		// Prioritize DATABASE_URL if provided
		if uri := os.Getenv("DATABASE_URL"); uri != "" {
			dbConfig.URI = uri
			dbConfig.SSLMode = getSSLModeFromURI(uri)
			return dbConfig, nil
		}

		dbConfig.Host = getEnvOrDefault("DB_HOST", "localhost")
		if portStr := os.Getenv("DB_PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return nil, fmt.Errorf("invalid DB_PORT %q: %w", portStr, err)
			}
			dbConfig.Port = port
		}

		dbConfig.User = os.Getenv("DB_USER")
		if dbConfig.User == "" {
			return nil, fmt.Errorf("DB_USER environment variable is required when DB_TYPE is postgres and DATABASE_URL is not set")
		}
		dbConfig.Password = os.Getenv("DB_PASSWORD")
		if dbConfig.Password == "" {
			return nil, fmt.Errorf("DB_PASSWORD environment variable is required when DB_TYPE is postgres and DATABASE_URL is not set")
		}
		dbConfig.Name = getEnvOrDefault("DB_NAME", "postgres")
		dbConfig.SSLMode = getEnvOrDefault("DB_SSL_MODE", "require")

		u := url.URL{
			Scheme:   "postgresql",
			User:     url.UserPassword(dbConfig.User, dbConfig.Password),
			Host:     fmt.Sprintf("%s:%d", dbConfig.Host, dbConfig.Port),
			Path:     "/" + dbConfig.Name,
			RawQuery: url.Values{"sslmode": []string{dbConfig.SSLMode}}.Encode(),
		}
		dbConfig.URI = u.String()
	case DBSQLite:
		dbConfig.SQLitePath = getEnvOrDefault("SQLITE_PATH", dbConfig.SQLitePath)
	case DBMemory:
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE %q (want postgres, sqlite or memory)", dbConfig.Type)
	}
	return dbConfig, nil
}

func loadMessagingConfig() (*MessagingConfig, error) {
	msgConfig := DefaultMessagingConfig()
	msgConfig.UploadDir = getEnvOrDefault("UPLOAD_DIR", msgConfig.UploadDir)
	msgConfig.ModerationTermsFile = os.Getenv("MODERATION_TERMS_FILE")

	if v := os.Getenv("MAX_IMAGE_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MAX_IMAGE_BYTES %q", v)
		}
		msgConfig.MaxImageBytes = n
	}
	if v := os.Getenv("RECALL_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid RECALL_WINDOW %q", v)
		}
		msgConfig.RecallWindow = d
	}
	return msgConfig, nil
}

// Helper function to get environment variable with default fallback
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getSSLModeFromURI extracts sslmode from a DSN, defaulting to "require".
func getSSLModeFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "require"
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		return mode
	}
	return "require"
}
