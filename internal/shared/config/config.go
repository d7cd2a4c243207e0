package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	KurrentDB  KurrentDBConfig
	Auth       AuthConfig
	Media      MediaConfig
	Facilities FacilitiesConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// KurrentDBConfig holds configuration for KurrentDB (EventStoreDB),
// the append-only log backing incident status history.
type KurrentDBConfig struct {
	// Host is the KurrentDB server hostname
	Host string
	// Port is the gRPC/HTTP port (default 2113)
	Port int
	// Insecure disables TLS (for development)
	Insecure bool
	// Username for authentication (optional)
	Username string
	// Password for authentication (optional)
	Password string
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// MediaConfig points at the external proof-attachment store. The core only
// records the public URLs the client obtained from it.
type MediaConfig struct {
	BaseURL string
	Bucket  string
}

// FacilitiesConfig holds the connection for the building-management
// directory (SQL Server) used to validate incident locations.
type FacilitiesConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "safetrack"),
			Password: getEnv("DB_PASSWORD", "safetrack"),
			Database: getEnv("DB_NAME", "safetrack"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		KurrentDB: KurrentDBConfig{
			Host:     getEnv("KURRENTDB_HOST", "localhost"),
			Port:     getEnvInt("KURRENTDB_PORT", 2113),
			Insecure: getEnvBool("KURRENTDB_INSECURE", true),
			Username: getEnv("KURRENTDB_USERNAME", ""),
			Password: getEnv("KURRENTDB_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
			Issuer:    getEnv("JWT_ISSUER", "safetrack"),
		},
		Media: MediaConfig{
			BaseURL: getEnv("MEDIA_BASE_URL", ""),
			Bucket:  getEnv("MEDIA_BUCKET", "incident-proofs"),
		},
		Facilities: FacilitiesConfig{
			Enabled:  getEnvBool("FACILITIES_ENABLED", false),
			Host:     getEnv("FACILITIES_DB_HOST", "localhost"),
			Port:     getEnvInt("FACILITIES_DB_PORT", 1433),
			User:     getEnv("FACILITIES_DB_USER", ""),
			Password: getEnv("FACILITIES_DB_PASSWORD", ""),
			Database: getEnv("FACILITIES_DB_NAME", "estate"),
			SSLMode:  getEnv("FACILITIES_DB_SSLMODE", "disable"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
