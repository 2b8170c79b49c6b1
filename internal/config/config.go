package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/taskhive-dev/taskhive/internal/realtime"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Realtime RealtimeConfig

	JWTSecret string
}

type ServerConfig struct {
	Port           string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Driver string
	URL    string
}

type RealtimeConfig struct {
	// RedisURL enables the cross-instance bus when set.
	RedisURL     string
	RedisChannel string
	SendBuffer   int
}

// Default allowed origins for development
var defaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "3000"),
			AllowedOrigins: allowedOrigins(os.Getenv("CLIENT_URL"), os.Getenv("ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", "postgres"),
			URL:    os.Getenv("DATABASE_URL"),
		},
		Realtime: RealtimeConfig{
			RedisURL:     os.Getenv("REDIS_URL"),
			RedisChannel: getEnv("REDIS_CHANNEL", realtime.DefaultBusChannel),
			SendBuffer:   getEnvAsInt("WS_SEND_BUFFER", realtime.DefaultSendBuffer),
		},
		JWTSecret: os.Getenv("JWT_SECRET"),
	}

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is not set")
	}

	return cfg, nil
}

func allowedOrigins(clientURL, extra string) []string {
	origins := make([]string, len(defaultOrigins))
	copy(origins, defaultOrigins)

	if clientURL != "" {
		origins = append(origins, clientURL)
	}

	for _, origin := range strings.Split(extra, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}

	return origins
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil && value > 0 {
		return value
	}
	return defaultValue
}
