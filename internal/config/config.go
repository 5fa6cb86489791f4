package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the relay server.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string
	NatsURL     string

	// Media storage
	UploadDir       string
	UploadURLPrefix string

	// Relay behaviour
	SendQueueSize int
	WelcomeText   string
	ClockFormat   string

	// Browser origins allowed for CORS and the WebSocket handshake; empty allows all
	AllowedOrigins []string

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations
	UploadBudget       int64    // upload bytes per session per hour
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("ENV", "development"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SQLitePath:       getEnv("SQLITE_PATH", "./data/chatrelay.db"),
		RedisURL:         os.Getenv("REDIS_URL"),
		NatsURL:          os.Getenv("NATS_URL"),
		UploadDir:        getEnv("UPLOAD_DIR", "./uploads"),
		UploadURLPrefix:  strings.TrimRight(getEnv("UPLOAD_URL_PREFIX", "/uploads"), "/"),
		SendQueueSize:    getEnvInt("SEND_QUEUE_SIZE", 256),
		WelcomeText:      getEnv("WELCOME_TEXT", "Welcome to the chat!"),
		ClockFormat:      getEnv("CLOCK_FORMAT", "15:04:05"),
		AutoBlockEnabled: getEnv("AUTO_BLOCK_ENABLED", "false") == "true",

		AllowedOrigins:     getEnvList("ALLOWED_ORIGINS"),
		RateLimitWhitelist: getEnvList("RATE_LIMIT_WHITELIST"),
		UploadBudget:       int64(getEnvInt("UPLOAD_BUDGET_MB", 200)) << 20,
	}

	// In production the directory must be shared between instances
	if cfg.Env == "production" && cfg.DatabaseURL == "" {
		panic("DATABASE_URL is required in production")
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
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
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, entry := range strings.Split(os.Getenv(key), ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
