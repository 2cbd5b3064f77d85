package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ClientConfig holds runtime configuration for the sign-up front ends.
type ClientConfig struct {
	APIBaseURL     string
	AppURL         string
	RequestTimeout time.Duration
	StorageFile    string
	StorageKey     string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	SessionTTL     time.Duration
	PushgatewayURL string
	WebAddr        string
	LogLevel       slog.Level
}

// LoadClientConfig constructs a ClientConfig from environment variables.
// A .env file in the working directory is loaded first when present.
func LoadClientConfig() ClientConfig {
	_ = godotenv.Load(".env")

	return ClientConfig{
		APIBaseURL:     GetString("EXPENSE_API_URL", "http://localhost:8000"),
		AppURL:         GetString("EXPENSE_APP_URL", "http://localhost:5173"),
		RequestTimeout: GetSeconds("EXPENSE_REQUEST_TIMEOUT_SECONDS", 10),
		StorageFile:    GetString("EXPENSE_STORAGE_FILE", defaultStorageFile()),
		StorageKey:     GetString("EXPENSE_STORAGE_KEY", ""),
		RedisAddr:      GetString("EXPENSE_REDIS_ADDR", ""),
		RedisPassword:  GetString("EXPENSE_REDIS_PASSWORD", ""),
		RedisDB:        GetInt("EXPENSE_REDIS_DB", 0),
		SessionTTL:     GetMinutes("EXPENSE_SESSION_TTL_MINUTES", 1440),
		PushgatewayURL: GetString("EXPENSE_PUSHGATEWAY_URL", ""),
		WebAddr:        GetString("EXPENSE_WEB_ADDR", ":5173"),
		LogLevel:       ParseLevel(GetString("EXPENSE_LOG_LEVEL", "info")),
	}
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func defaultStorageFile() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "storage.json")
	}
	return filepath.Join(base, "expense-tracker", "storage.json")
}
