package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Assistant AssistantConfig
	Run       RunConfig
	Upload    UploadConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	EventLogFilePath   string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	SessionStore       string // "memory" or "redis"
	SessionTTL         time.Duration
	SessionLockLease   time.Duration // redis store only
	EventTopic         string // in-process run event topic
}

type DatabaseConfig struct {
	Connection string
}

type AssistantConfig struct {
	APIKey         string
	BaseURL        string
	AssistantID    string
	AttachmentTool string // "file_search" or "code_interpreter"
	Timeout        time.Duration
	FilenameTTL    time.Duration
}

type RunConfig struct {
	RetryBudget int
	PollUnit    time.Duration
}

type UploadConfig struct {
	MaxBytes int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			EventLogFilePath:   getEnv("EVENT_LOG_FILE_PATH", "logs/run_events.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			SessionStore:       getEnv("SESSION_STORE", "memory"),
			SessionTTL:         getEnvAsDuration("SESSION_TTL", 24*time.Hour),
			SessionLockLease:   getEnvAsDuration("SESSION_LOCK_LEASE", 30*time.Second),
			EventTopic:         getEnv("RUN_EVENT_TOPIC", "RUN_EVENTS"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Assistant: AssistantConfig{
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			BaseURL:        getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			AssistantID:    getEnv("ASSISTANT_ID", ""),
			AttachmentTool: getEnv("ASSISTANT_ATTACHMENT_TOOL", "file_search"),
			Timeout:        getEnvAsDuration("ASSISTANT_HTTP_TIMEOUT", 60*time.Second),
			FilenameTTL:    getEnvAsDuration("ASSISTANT_FILENAME_CACHE_TTL", time.Hour),
		},
		Run: RunConfig{
			RetryBudget: getEnvAsInt("RUN_RETRY_BUDGET", 3),
			PollUnit:    getEnvAsDuration("RUN_POLL_UNIT", time.Second),
		},
		Upload: UploadConfig{
			MaxBytes: getEnvAsInt("UPLOAD_MAX_BYTES", 10*1024*1024),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("1500ms") or plain seconds ("2").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	if d, err := time.ParseDuration(strValue); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
