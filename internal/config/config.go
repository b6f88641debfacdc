package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string
	AutoMigrate bool
	GinMode     string

	RedisAddr    string
	RedisDB      int
	EventChannel string
	RateCacheTTL time.Duration

	// Exchange gateway the rate providers query.
	RateGatewayURL string

	// Lightning node REST endpoint; empty disables the lightning handler.
	LightningURL    string
	LightningAPIKey string
}

func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      getEnv("DB_USER", "invoicer"),
		DBPassword:  getEnv("DB_PASSWORD", "invoicer_secret"),
		DBName:      getEnv("DB_NAME", "invoicer"),
		DBSSLMode:   getEnv("DB_SSLMODE", "disable"),
		AutoMigrate: getEnv("AUTO_MIGRATE", "false") == "true",
		GinMode:     getEnv("GIN_MODE", "debug"),

		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:      getEnvInt("REDIS_DB", 0),
		EventChannel: getEnv("EVENT_CHANNEL", "invoices.created"),
		RateCacheTTL: time.Duration(getEnvInt("RATE_CACHE_TTL_SECONDS", 60)) * time.Second,

		RateGatewayURL: getEnv("RATE_GATEWAY_URL", "http://localhost:9090"),

		LightningURL:    getEnv("LIGHTNING_URL", ""),
		LightningAPIKey: getEnv("LIGHTNING_API_KEY", ""),
	}
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
