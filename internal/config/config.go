package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port       string
	MongoURI   string
	MongoDB    string // database name
	JWTSecret  string
	RateLimit  int // requests per minute per user on chat endpoints

	// Gemini provider configuration
	GeminiAPIKey string
	DefaultModel string

	// Turn orchestration tuning
	GenerationTimeout time.Duration // per model call
	MaxAttempts       int           // per model call, including the first
	InitialBackoff    time.Duration
	HistoryWindow     int // messages of context per invocation

	// Housekeeping
	StaleSessionAge time.Duration // sessions idle longer than this get cleaned up
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "3001"),
		MongoURI:  getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDB:   getEnv("MONGODB_DATABASE", "boardroom"),
		JWTSecret: getEnv("JWT_SECRET", ""),
		RateLimit: getIntEnv("CHAT_RATE_LIMIT", 30),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		DefaultModel: getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		GenerationTimeout: getDurationEnv("GENERATION_TIMEOUT", 45*time.Second),
		MaxAttempts:       getIntEnv("GENERATION_MAX_ATTEMPTS", 3),
		InitialBackoff:    getDurationEnv("GENERATION_INITIAL_BACKOFF", time.Second),
		HistoryWindow:     getIntEnv("HISTORY_WINDOW", 30),

		StaleSessionAge: getDurationEnv("STALE_SESSION_AGE", 90*24*time.Hour),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
