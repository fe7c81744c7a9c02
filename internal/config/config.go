package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the conversation engine.
type Config struct {
	// Agent backend
	AgentBackendURL    string
	AgentBackendAPIKey string
	RequestTimeout     time.Duration

	// Realtime transport. When NatsURL is set the NATS transport is used;
	// otherwise RealtimeWSURL selects the WebSocket transport.
	NatsURL       string
	RealtimeWSURL string

	// Conversation record store
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxIdleTime int // in minutes
	DBConnMaxLifetime int // in minutes

	// Janitor: conversations idle longer than this are marked abandoned.
	AbandonAfter    time.Duration
	JanitorSchedule string

	// Turn processing
	MinPhaseDuration time.Duration // minimum visible duration per processing phase
	MaxLogMessages   int           // per-conversation in-memory message bound

	// Tool categorizer rules file (optional, embedded defaults otherwise)
	ToolRulesPath string

	// Logging
	LogLevel  string
	LogFormat string
}

var AppConfig *Config

func LoadConfig() {
	// Load .env file if it exists
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	AppConfig = &Config{
		// Agent backend
		AgentBackendURL:    getEnvOrDefault("AGENT_BACKEND_URL", "http://localhost:8000"),
		AgentBackendAPIKey: getEnvOrDefault("AGENT_BACKEND_API_KEY", ""),
		RequestTimeout:     getEnvAsDuration("AGENT_REQUEST_TIMEOUT", 120*time.Second),

		// Realtime
		NatsURL:       getEnvOrDefault("NATS_URL", ""),
		RealtimeWSURL: getEnvOrDefault("REALTIME_WS_URL", ""),

		// Database
		DatabaseURL:       getEnvOrDefault("DATABASE_URL", "postgres://localhost/agent_console?sslmode=disable"),
		DBMaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 15),
		DBMaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxIdleTime: getEnvAsInt("DB_CONN_MAX_IDLE_TIME_MINUTES", 1),
		DBConnMaxLifetime: getEnvAsInt("DB_CONN_MAX_LIFETIME_MINUTES", 30),

		// Janitor
		AbandonAfter:    getEnvAsDuration("CONVERSATION_ABANDON_AFTER", 72*time.Hour),
		JanitorSchedule: getEnvOrDefault("CONVERSATION_JANITOR_SCHEDULE", "@every 10m"),

		// Turn processing
		MinPhaseDuration: getEnvAsDuration("MIN_PHASE_DURATION", 400*time.Millisecond),
		MaxLogMessages:   getEnvAsInt("MAX_LOG_MESSAGES", 500),

		// Tool categorizer
		ToolRulesPath: getEnvOrDefault("TOOL_RULES_PATH", ""),

		// Logging
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "debug"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", ""),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid value for %s: %s, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Invalid value for %s: %s, using default %s", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
