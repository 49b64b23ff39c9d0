package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database (saved searches; optional)
	DatabaseURL string

	// Redis (page cache; optional)
	RedisURL string

	// JWT
	JWTSecret    string
	JWTAccessTTL time.Duration

	// CORS
	AllowedOrigins []string

	// Activities backend
	ActivitiesBaseURL        string
	ActivitiesToken          string
	ActivitiesTimeoutSeconds int
	UserAgent                string

	// Browse sessions
	PageSize       int
	FilterDebounce time.Duration
	SessionIdleTTL time.Duration
	MaxSessions    int

	// Page cache
	PageCacheTTL time.Duration

	// Cache warmer
	WarmPages    int
	WarmInterval time.Duration

	// Logging
	LogLevel string
	LogFile  string
}

func Load() *Config {
	// Load .env file in development
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		// JWT
		JWTSecret:    getEnv("JWT_SECRET", "super-secret-key-change-me"),
		JWTAccessTTL: parseDuration(getEnv("JWT_ACCESS_TTL", "15m"), 15*time.Minute),

		// CORS
		AllowedOrigins: parseStringSlice(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),

		// Activities backend
		ActivitiesBaseURL:        getEnv("ACTIVITIES_BASE_URL", "http://localhost:8081"),
		ActivitiesToken:          getEnv("ACTIVITIES_TOKEN", ""),
		ActivitiesTimeoutSeconds: parseInt(getEnv("ACTIVITIES_TIMEOUT_SECONDS", "10"), 10),
		UserAgent:                getEnv("USER_AGENT", "Wanderhost/1.0 browse-gateway"),

		// Browse sessions
		PageSize:       parseInt(getEnv("PAGE_SIZE", "12"), 12),
		FilterDebounce: parseDuration(getEnv("FILTER_DEBOUNCE", "250ms"), 250*time.Millisecond),
		SessionIdleTTL: parseDuration(getEnv("SESSION_IDLE_TTL", "30m"), 30*time.Minute),
		MaxSessions:    parseInt(getEnv("MAX_SESSIONS", "10000"), 10000),

		PageCacheTTL: parseDuration(getEnv("PAGE_CACHE_TTL", "30s"), 30*time.Second),

		WarmPages:    parseInt(getEnv("WARM_PAGES", "3"), 3),
		WarmInterval: parseDuration(getEnv("WARM_INTERVAL", "20s"), 20*time.Second),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "debug"),
		LogFile:  getEnv("LOG_FILE", ""),
	}
}

// ActivitiesTimeout returns the backend client timeout
func (c *Config) ActivitiesTimeout() time.Duration {
	return time.Duration(c.ActivitiesTimeoutSeconds) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func parseDuration(s string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func parseBool(s string, defaultValue bool) bool {
	value, err := strconv.ParseBool(s)
	if err != nil {
		return defaultValue
	}
	return value
}

func parseInt(s string, defaultValue int) int {
	value, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return value
}

func parseStringSlice(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// WarmerEnabled reports whether the cache warmer should run
func (c *Config) WarmerEnabled() bool {
	return parseBool(getEnv("WARMER_ENABLED", "true"), true) && c.RedisURL != ""
}
