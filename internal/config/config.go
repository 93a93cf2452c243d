package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Environment string
	DatabaseURL string
	Store       string // "postgres" or "memory"
	TablePrefix string
	AutoMigrate bool
	CORSOrigins string
	// Auth - JWKSURL takes precedence; JWTSecret enables HS256 tokens for dev/test
	JWKSURL   string
	JWTSecret string
	// Realtime
	CacheMaxEntries int // 0 keeps every open document in memory
	// Sandbox
	RunnersConfig string // path to a runners YAML; empty uses the embedded default
	RunTimeout    time.Duration
	// Logging
	LogDir      string
	LogMaxFiles int
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Port:            getEnv("PORT", "8080"),
		Environment:     env,
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		Store:           strings.ToLower(getEnv("STORE", getDefaultStore())),
		TablePrefix:     getTablePrefix(env),
		AutoMigrate:     getEnv("AUTO_MIGRATE", getDefaultAutoMigrate(env)) == "true",
		CORSOrigins:     getEnv("CORS_ORIGINS", "http://localhost:3000"),
		JWKSURL:         getEnv("JWKS_URL", ""),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		CacheMaxEntries: getEnvInt("CACHE_MAX_ENTRIES", 0),
		RunnersConfig:   getEnv("RUNNERS_CONFIG", ""),
		RunTimeout:      getEnvDuration("RUN_TIMEOUT", 10*time.Second),
		LogDir:          getEnv("LOG_DIR", ""),
		LogMaxFiles:     getEnvInt("LOG_MAX_FILES", 10),
	}
}

// CORSOriginList splits CORSOrigins on commas
func (c *Config) CORSOriginList() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// getDefaultStore picks postgres when a database is configured
func getDefaultStore() string {
	if os.Getenv("DATABASE_URL") != "" {
		return "postgres"
	}
	return "memory"
}

// getDefaultAutoMigrate migrates on startup everywhere except production
func getDefaultAutoMigrate(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
