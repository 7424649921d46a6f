// Package config loads the environment-driven settings of spec §6's
// Configuration table into a typed Config, the same getEnv/getEnvInt +
// godotenv shape the teacher uses.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every environment-driven setting the server needs to boot.
type Config struct {
	Port          string
	NodeEnv       string
	DatabaseURL   string
	CORSOrigin    string
	JWTSecret     string
	AdminSecret   string
	RedisURL      string
	RedisPassword string
	RedisDB       int
}

// Production reports whether NODE_ENV selects the production bind/TLS
// posture (§6: "production ⇒ bind 0.0.0.0, TLS on db").
func (c *Config) Production() bool {
	return c.NodeEnv == "production"
}

// BindAddr returns the listen address: 0.0.0.0 in production, loopback
// otherwise, matching the teacher's habit of binding loopback-only outside
// production.
func (c *Config) BindAddr() string {
	if c.Production() {
		return "0.0.0.0:" + c.Port
	}
	return "127.0.0.1:" + c.Port
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:          getEnv("PORT", "8000"),
		NodeEnv:       getEnv("NODE_ENV", "development"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		CORSOrigin:    getEnv("CORS_ORIGIN", "*"),
		JWTSecret:     getEnv("JWT_SECRET", "dev-secret"),
		AdminSecret:   getEnv("ADMIN_SECRET", "dev-admin-secret"),
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
