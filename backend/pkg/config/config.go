package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"

	apperrors "relgraph/backend/pkg/errors"
)

// Graph backends.
const (
	BackendAGE   = "age"
	BackendNeo4j = "neo4j"
)

// Relational source drivers, named after their database/sql registrations.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration
type Config struct {
	// App
	Env      string
	LogLevel string

	// Relational database
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
	// SourceDriver selects the relational driver; the AGE backend requires postgres
	SourceDriver string

	// Graph
	GraphBackend string
	GraphName    string

	// Neo4j
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string // empty means the server's default database

	// DefinitionsFile optionally replaces the built-in entity/relationship tables
	DefinitionsFile string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Env:             getEnv("ENV", "development"),
		LogLevel:        getEnv("LOG_LEVEL", ""),
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBPort:          getEnvInt("DB_PORT", 5432),
		DBName:          getEnv("DB_NAME", "social"),
		DBUser:          getEnv("DB_USER", "postgres"),
		DBPassword:      getEnv("DB_PASSWORD", ""),
		DBSSLMode:       getEnv("DB_SSLMODE", "disable"),
		SourceDriver:    getEnv("SOURCE_DRIVER", DriverPostgres),
		GraphBackend:    getEnv("GRAPH_BACKEND", BackendAGE),
		GraphName:       getEnv("GRAPH_NAME", "social_graph"),
		Neo4jURI:        getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:       getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:   getEnv("NEO4J_PASSWORD", ""),
		Neo4jDatabase:   getEnv("NEO4J_DATABASE", ""),
		DefinitionsFile: getEnv("DEFINITIONS_FILE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.DBName == "" {
		return apperrors.NewConfigMissingRequired("DB_NAME")
	}
	switch c.SourceDriver {
	case DriverPostgres, DriverMySQL:
		if c.DBHost == "" {
			return apperrors.NewConfigMissingRequired("DB_HOST")
		}
		if c.DBUser == "" {
			return apperrors.NewConfigMissingRequired("DB_USER")
		}
		if c.DBPort <= 0 || c.DBPort > 65535 {
			return apperrors.NewConfigValidationFailed("DB_PORT", fmt.Sprintf("out of range: %d", c.DBPort))
		}
	case DriverSQLite:
	default:
		return apperrors.NewConfigValidationFailed("SOURCE_DRIVER", fmt.Sprintf("unsupported driver %q", c.SourceDriver))
	}

	switch c.GraphBackend {
	case BackendAGE:
		// Graph queries travel over the relational connection.
		if c.SourceDriver != DriverPostgres {
			return apperrors.NewConfigValidationFailed("SOURCE_DRIVER", "the age backend requires the postgres driver")
		}
	case BackendNeo4j:
		if c.Neo4jURI == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_URI")
		}
		if c.Neo4jUser == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_USER")
		}
	default:
		return apperrors.NewConfigValidationFailed("GRAPH_BACKEND", fmt.Sprintf("unsupported backend %q", c.GraphBackend))
	}

	if c.GraphName == "" {
		return apperrors.NewConfigMissingRequired("GRAPH_NAME")
	}
	return nil
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SourceDSN renders the data source name for SourceDriver.
func (c *Config) SourceDSN() string {
	switch c.SourceDriver {
	case DriverMySQL:
		mc := mysql.NewConfig()
		mc.User = c.DBUser
		mc.Passwd = c.DBPassword
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.DBHost, strconv.Itoa(c.DBPort))
		mc.DBName = c.DBName
		mc.ParseTime = true
		return mc.FormatDSN()
	case DriverSQLite:
		return c.DBName
	default:
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.DBUser, c.DBPassword),
			Host:     net.JoinHostPort(c.DBHost, strconv.Itoa(c.DBPort)),
			Path:     "/" + c.DBName,
			RawQuery: url.Values{"sslmode": []string{c.DBSSLMode}}.Encode(),
		}
		return u.String()
	}
}

// SourceTarget describes the relational endpoint without credentials, for logs.
func (c *Config) SourceTarget() string {
	if c.SourceDriver == DriverSQLite {
		return c.DBName
	}
	return fmt.Sprintf("%s/%s", net.JoinHostPort(c.DBHost, strconv.Itoa(c.DBPort)), c.DBName)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
