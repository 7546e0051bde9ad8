package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second
	defaultPoolMaxConns = 16
	defaultMigrationDir = "migrations"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig stores Postgres connection parameters.
type DatabaseConfig struct {
	URL           string
	PoolMaxConns  int
	MigrationsDir string
}

// AuthConfig holds the HMAC key material for session token verification.
type AuthConfig struct {
	TokenSecret string
}

// Load reads configuration from the environment, consulting an optional .env
// file first. Unset values fall back to defaults; missing required values fail
// validation.
func Load() (Config, error) {
	// Best effort: a missing .env file is not an error.
	_ = godotenv.Load(defaultEnvFile)

	cfg := Config{
		Server: ServerConfig{
			Port:         envOrDefault("PORT", defaultPort),
			ReadTimeout:  durationEnv("SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationEnv("SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationEnv("SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Database: DatabaseConfig{
			URL:           strings.TrimSpace(os.Getenv("DATABASE_URL")),
			PoolMaxConns:  intEnv("DATABASE_POOL_MAX_CONNS", defaultPoolMaxConns),
			MigrationsDir: envOrDefault("DATABASE_MIGRATIONS_DIR", defaultMigrationDir),
		},
		Auth: AuthConfig{
			TokenSecret: strings.TrimSpace(os.Getenv("AUTH_TOKEN_SECRET")),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var problems []string
	if c.Database.URL == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	if c.Auth.TokenSecret == "" {
		problems = append(problems, "AUTH_TOKEN_SECRET is required")
	}
	if c.Database.PoolMaxConns <= 0 {
		problems = append(problems, "DATABASE_POOL_MAX_CONNS must be positive")
	}
	if len(problems) > 0 {
		return errors.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func intEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// Addr renders the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	port := strings.TrimSpace(s.Port)
	if port == "" {
		port = defaultPort
	}
	return fmt.Sprintf(":%s", port)
}
