package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// Semantic verification
	LLMProvider    string // "gemini" | "openai"
	GeminiAPIKey   string
	GeminiModel    string
	OpenAIAPIKey   string
	OpenAIModel    string
	VerifyTimeout  time.Duration
	VerifyWorkers  int
	VerifyQueue    string // "memory" | "redis"
	ConfidenceMin  float64
	CallsPerMinute int
	SessionCallCap int

	// Submissions
	RetryLimit             int
	SubmitRequestsPerMin   int
	DefaultSessionMinutes  int
	RateLimitBackend       string // "memory" | "redis"
	AttendanceTimezoneName string

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8080"),
		Env:         getEnvOrDefault("ENV", "development"),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		DatabaseURL: mustGetEnv("DATABASE_URL"),
		RedisURL:    mustGetEnv("REDIS_URL"),
		JWTSecret:   mustGetEnv("JWT_SECRET"),

		LLMProvider:    strings.ToLower(getEnvOrDefault("LLM_PROVIDER", "gemini")),
		GeminiAPIKey:   getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiModel:    getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		OpenAIAPIKey:   getEnvOrDefault("OPENAI_API_KEY", ""),
		OpenAIModel:    getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		VerifyTimeout:  getEnvAsDurationOrDefault("VERIFY_TIMEOUT", 20*time.Second),
		VerifyWorkers:  getEnvAsIntOrDefault("VERIFY_CONCURRENCY", 3),
		VerifyQueue:    strings.ToLower(getEnvOrDefault("VERIFY_QUEUE_BACKEND", "memory")),
		ConfidenceMin:  getEnvAsFloatOrDefault("CONFIDENCE_THRESHOLD", 0.8),
		CallsPerMinute: getEnvAsIntOrDefault("SEMANTIC_CALLS_PER_MINUTE", 100),
		SessionCallCap: getEnvAsIntOrDefault("MAX_SEMANTIC_CALLS_PER_SESSION", 80),

		RetryLimit:             getEnvAsIntOrDefault("SUBMISSION_RETRY_LIMIT", 3),
		SubmitRequestsPerMin:   getEnvAsIntOrDefault("SUBMIT_REQUESTS_PER_MINUTE", 20),
		DefaultSessionMinutes:  getEnvAsIntOrDefault("DEFAULT_SESSION_MINUTES", 10),
		RateLimitBackend:       strings.ToLower(getEnvOrDefault("RATE_LIMIT_BACKEND", "memory")),
		AttendanceTimezoneName: getEnvOrDefault("ATTENDANCE_TIMEZONE", "UTC"),

		FrontendURL: getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

// Validate checks the combinations that cannot be caught by defaults alone.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when LLM_PROVIDER=gemini")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider)
	}

	if c.VerifyWorkers < 1 {
		return fmt.Errorf("VERIFY_CONCURRENCY must be at least 1")
	}
	if c.RetryLimit < 1 {
		return fmt.Errorf("SUBMISSION_RETRY_LIMIT must be at least 1")
	}
	if c.ConfidenceMin < 0 || c.ConfidenceMin > 1 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be within [0,1]")
	}
	if _, err := c.AttendanceLocation(); err != nil {
		return err
	}
	return nil
}

// AttendanceLocation is the timezone used to derive an attendance calendar date.
func (c *Config) AttendanceLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.AttendanceTimezoneName)
	if err != nil {
		return nil, fmt.Errorf("invalid ATTENDANCE_TIMEZONE %q: %w", c.AttendanceTimezoneName, err)
	}
	return loc, nil
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsFloatOrDefault(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
