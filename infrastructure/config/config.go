package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Environment string

	// AWS configuration
	AWSRegion     string
	TableName     string
	GSI1IndexName string // members of an entity, by user name
	GSI2IndexName string // a user's memberships of one type, by activity
	GSI3IndexName string // merged conversation feed / meetings by due date
	EventBusName  string
	EventSource   string

	// Connection directory
	ConnectionsTable     string
	ConnectionsIndexName string
	ConnectionTTL        time.Duration
	ConnectsPerMinute    int

	// WebSocket configuration
	WebSocketEndpoint string

	// Pagination
	DefaultPageSize int

	// Entity snapshots cached by warm stream processors; 0 disables
	EntityCacheTTL time.Duration

	// Logging
	LogLevel string

	// Authentication. A PEM public key selects RS256, otherwise the
	// shared secret selects HS256.
	JWTSecret    string
	JWTPublicKey string
	JWTIssuer    string
	JWTAudience  []string

	// Metrics namespace in CloudWatch
	MetricsNamespace string

	// Feature flags
	EnableMetrics bool
	EnableTracing bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Environment:   getEnv("ENVIRONMENT", "development"),
		AWSRegion:     getEnv("AWS_REGION", "us-east-1"),
		TableName:     getEnv("TABLE_NAME", "chat"),
		GSI1IndexName: getEnv("GSI1_INDEX_NAME", "gsi1"),
		GSI2IndexName: getEnv("GSI2_INDEX_NAME", "gsi2"),
		GSI3IndexName: getEnv("GSI3_INDEX_NAME", "gsi3"),
		EventBusName:  getEnv("EVENT_BUS_NAME", "chat-events"),
		EventSource:   getEnv("EVENT_SOURCE", "chat.core"),

		ConnectionsTable:     getEnv("CONNECTIONS_TABLE", "chat-connections"),
		ConnectionsIndexName: getEnv("CONNECTIONS_INDEX_NAME", "gsi1"),
		ConnectionTTL:        time.Duration(getEnvInt("CONNECTION_TTL_HOURS", 24)) * time.Hour,
		ConnectsPerMinute:    getEnvInt("CONNECTS_PER_MINUTE", 30),

		WebSocketEndpoint: getEnv("WEBSOCKET_ENDPOINT", ""),

		DefaultPageSize: getEnvInt("DEFAULT_PAGE_SIZE", 25),
		EntityCacheTTL:  time.Duration(getEnvInt("ENTITY_CACHE_TTL_SECONDS", 30)) * time.Second,

		JWTSecret:    getEnv("JWT_SECRET", ""),
		JWTPublicKey: getEnv("JWT_PUBLIC_KEY", ""),
		JWTIssuer:    getEnv("JWT_ISSUER", ""),
		JWTAudience:  getEnvList("JWT_AUDIENCE"),

		LogLevel:         getEnv("LOG_LEVEL", "info"),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "Chat"),
		EnableMetrics:    getEnvBool("ENABLE_METRICS", false),
		EnableTracing:    getEnvBool("ENABLE_TRACING", false),
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if c.DefaultPageSize <= 0 || c.DefaultPageSize > 100 {
		return fmt.Errorf("DEFAULT_PAGE_SIZE must be between 1 and 100, got %d", c.DefaultPageSize)
	}
	if c.ConnectionTTL <= 0 {
		return fmt.Errorf("CONNECTION_TTL_HOURS must be positive")
	}

	if c.Environment == "production" {
		if c.TableName == "" {
			return fmt.Errorf("TABLE_NAME is required")
		}
		if c.EventBusName == "" {
			return fmt.Errorf("EVENT_BUS_NAME is required")
		}
		if c.JWTSecret == "" && c.JWTPublicKey == "" {
			return fmt.Errorf("JWT_SECRET or JWT_PUBLIC_KEY is required in production")
		}
		if c.WebSocketEndpoint == "" {
			return fmt.Errorf("WEBSOCKET_ENDPOINT is required in production")
		}
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvList splits a comma-separated environment variable, dropping blanks
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
