package config

import (
	"fmt"

	"github.com/joho/godotenv"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Gateway   GatewayConfig
	LLM       LLMConfig
	Processor ProcessorConfig
	Media     MediaConfig
	Security  SecurityConfig
}

type AppConfig struct {
	Port     string
	LogLevel string
}

type DatabaseConfig struct {
	// URL selects the driver: postgres:// DSNs open Postgres, anything
	// else is treated as a SQLite file path.
	URL string
}

type GatewayConfig struct {
	BaseURL  string
	Token    string
	User     string
	Password string
}

type LLMConfig struct {
	APIKey      string
	BaseURL     string
	ChatModel   string
	VisionModel string
	AudioModel  string
}

type ProcessorConfig struct {
	PollIntervalSeconds int
	MessageLimitPerPoll int
}

type MediaConfig struct {
	MaxConcurrentJobs int
	FFmpegPath        string
}

type SecurityConfig struct {
	JWTSecret             string
	AccessTokenExpireDays int
	AdminPassword         string
}

// Global provides access to the loaded configuration process-wide.
var Global *Config

// LoadConfig loads configuration from a .env file (if present) and the
// environment, falling back to defaults where one exists.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		App: AppConfig{
			Port:     getEnv("APP_PORT", "3000"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", "storages/az-wabot.db"),
		},
		Gateway: GatewayConfig{
			BaseURL:  getEnv("WHATSAPP_BASE_URL", ""),
			Token:    getEnv("WHATSAPP_API_TOKEN", ""),
			User:     getEnv("WHATSAPP_API_USER", ""),
			Password: getEnv("WHATSAPP_API_PASSWORD", ""),
		},
		LLM: LLMConfig{
			APIKey:      getEnv("LLM_API_KEY", ""),
			BaseURL:     getEnv("LLM_BASE_URL", ""),
			ChatModel:   getEnv("LLM_MODEL", "gpt-4o-mini"),
			VisionModel: getEnv("LLM_VISION_MODEL", "gpt-4o"),
			AudioModel:  getEnv("LLM_AUDIO_MODEL", "whisper-1"),
		},
		Processor: ProcessorConfig{
			PollIntervalSeconds: getEnvInt("POLL_INTERVAL_SECONDS", 5),
			MessageLimitPerPoll: getEnvInt("MESSAGE_LIMIT_PER_POLL", 20),
		},
		Media: MediaConfig{
			MaxConcurrentJobs: getEnvInt("MAX_CONCURRENT_MEDIA_JOBS", 8),
			FFmpegPath:        getEnv("FFMPEG_PATH", "ffmpeg"),
		},
		Security: SecurityConfig{
			JWTSecret:             getEnv("JWT_SECRET", ""),
			AccessTokenExpireDays: getEnvInt("ACCESS_TOKEN_EXPIRE_DAYS", 7),
			AdminPassword:         getEnv("ADMIN_PASSWORD", ""),
		},
	}

	if cfg.Gateway.BaseURL == "" {
		return nil, fmt.Errorf("WHATSAPP_BASE_URL is required")
	}
	if cfg.Security.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	Global = cfg
	return cfg, nil
}
