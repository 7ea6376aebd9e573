package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	API      APIConfig
	Socket   SocketConfig
	Chat     ChatConfig
	Presence PresenceConfig
	Call     CallConfig
}

type APIConfig struct {
	BaseURL        string
	RequestsPerSec int
	Timeout        time.Duration
}

type SocketConfig struct {
	URL string
}

type ChatConfig struct {
	PageSize       int
	ReadDebounce   time.Duration
	TypingDebounce time.Duration
}

type PresenceConfig struct {
	PollInterval time.Duration
}

type CallConfig struct {
	RingTimeout     time.Duration
	NoJoinerTimeout time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		API: APIConfig{
			BaseURL:        getEnv("API_BASE_URL", "http://localhost:8080/api/v1"),
			RequestsPerSec: getEnvInt("API_REQUESTS_PER_SECOND", 10),
			Timeout:        getEnvSeconds("API_TIMEOUT_SECONDS", 15),
		},
		Socket: SocketConfig{
			URL: getEnv("SOCKET_URL", "ws://localhost:8080/ws"),
		},
		Chat: ChatConfig{
			PageSize:       getEnvInt("CHAT_PAGE_SIZE", 50),
			ReadDebounce:   getEnvMillis("READ_DEBOUNCE_MS", 500),
			TypingDebounce: getEnvMillis("TYPING_DEBOUNCE_MS", 1000),
		},
		Presence: PresenceConfig{
			PollInterval: getEnvSeconds("PRESENCE_POLL_SECONDS", 10),
		},
		Call: CallConfig{
			RingTimeout:     getEnvSeconds("CALL_RING_TIMEOUT_SECONDS", 60),
			NoJoinerTimeout: getEnvSeconds("CALL_NO_JOINER_TIMEOUT_SECONDS", 60),
		},
	}

	if cfg.API.BaseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL must not be empty")
	}
	if cfg.Socket.URL == "" {
		return nil, fmt.Errorf("SOCKET_URL must not be empty")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}

func getEnvSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Second
}

func getEnvMillis(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Millisecond
}
