package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds every environment-derived setting the server needs at boot.
type Config struct {
	Host string
	Port string
	Env  string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	JWTSecret string
}

// Load reads the process environment (after an optional .env overlay) into a Config.
func Load() (*Config, error) {
	cfg := &Config{
		Host: getEnv("HOST", "0.0.0.0"),
		Port: getEnv("PORT", "3000"),
		Env:  getEnv("ENV", "development"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		JWTSecret: getEnv("JWT_SECRET", "ludoserver-dev-secret"),
	}

	dbStr := getEnv("REDIS_DATABASE", "0")
	db, err := strconv.Atoi(dbStr)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DATABASE value %q: %v", dbStr, err)
	}
	cfg.RedisDB = db

	return cfg, nil
}

// RedisAddr returns the host:port pair go-redis expects.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
