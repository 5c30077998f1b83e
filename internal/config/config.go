package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// WAHA (WhatsApp HTTP API) transport
	WahaBaseURL string
	WahaAPIKey  string
	WahaSession string

	// Broker receiving visit notifications
	BrokerNumber string

	// OpenRouter AI completions
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	ChatModel         string
	ExtractionModel   string

	// Property listings API
	ListingsBaseURL string

	// Inbound message debounce window
	BufferDelay time.Duration

	// Proactive follow-up for freshly registered landing leads
	LandingFollowUpDelay time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		WahaBaseURL: getEnv("WAHA_BASE_URL", "http://waha:3000"),
		WahaAPIKey:  getEnv("WAHA_API_KEY", ""),
		WahaSession: getEnv("WAHA_SESSION", "corretores"),

		BrokerNumber: getEnv("BROKER_WHATSAPP_NUMBER", "558596227722@c.us"),

		OpenRouterAPIKey:  getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		ChatModel:         getEnv("CHAT_MODEL", "google/gemini-3-flash-preview"),
		ExtractionModel:   getEnv("EXTRACTION_MODEL", "google/gemini-2.0-flash-001"),

		ListingsBaseURL: getEnv("LISTINGS_BASE_URL", "https://www.memude.com.br/wp-json/custom/v1"),

		BufferDelay:          getEnvAsDuration("MESSAGE_BUFFER_DELAY", 3*time.Second),
		LandingFollowUpDelay: getEnvAsDuration("LANDING_FOLLOWUP_DELAY", 5*time.Minute),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
