// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// StorageBackend は購読者データの保存先の種類。
type StorageBackend string

const (
	// BackendNone はストレージ未構成。受付リクエストは500になる。
	BackendNone     StorageBackend = ""
	BackendRedis    StorageBackend = "redis"
	BackendMemory   StorageBackend = "memory"
	BackendFile     StorageBackend = "file"
	BackendPostgres StorageBackend = "postgres"
)

// dotEnvFile は起動時に読み込むファイル。存在しなければ無視する。
const dotEnvFile = ".env"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	ServerPort string

	// Storage
	StorageBackend  StorageBackend
	RedisURL        string
	KVPageSize      int
	SubscribersFile string
	DatabaseURL     string

	// ConvertKit
	ConvertKitAPIKey        string
	ConvertKitFormID        string
	ConvertKitBaseURL       string
	ConvertKitTimeout       time.Duration
	ConvertKitRatePerMinute int

	// Rate Limit
	RateLimitWindow          time.Duration
	RateLimitMaxRequests     int
	RateLimitCleanupInterval time.Duration

	// CORS
	CORSAllowedOrigin string

	// Admin API
	AdminToken string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既に設定済みの環境変数は上書きしない）。
// STORAGE_BACKENDが不正、またはpostgresでDATABASE_URLが未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := loadDotEnv(dotEnvFile); err != nil {
		return nil, err
	}

	cfg := &Config{}

	backend := StorageBackend(strings.ToLower(strings.TrimSpace(os.Getenv("STORAGE_BACKEND"))))
	switch backend {
	case BackendNone, BackendRedis, BackendMemory, BackendFile, BackendPostgres:
		cfg.StorageBackend = backend
	default:
		return nil, fmt.Errorf("invalid STORAGE_BACKEND %q (allowed: redis, memory, file, postgres)", backend)
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.StorageBackend == BackendPostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("required environment variables are not set: %v", []string{"DATABASE_URL"})
	}

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.RedisURL = getEnvString("REDIS_URL", "redis://localhost:6379/0")
	cfg.KVPageSize = getEnvInt("KV_PAGE_SIZE", 1000)
	cfg.SubscribersFile = getEnvString("SUBSCRIBERS_FILE", "data/subscribers.json")

	cfg.ConvertKitAPIKey = os.Getenv("CONVERTKIT_API_KEY")
	cfg.ConvertKitFormID = os.Getenv("CONVERTKIT_FORM_ID")
	cfg.ConvertKitBaseURL = getEnvString("CONVERTKIT_BASE_URL", "https://api.convertkit.com")
	cfg.ConvertKitTimeout = getEnvDuration("CONVERTKIT_TIMEOUT", 10*time.Second)
	cfg.ConvertKitRatePerMinute = getEnvInt("CONVERTKIT_RATE_PER_MINUTE", 120)

	cfg.RateLimitWindow = getEnvDuration("RATE_LIMIT_WINDOW", 60*time.Second)
	cfg.RateLimitMaxRequests = getEnvInt("RATE_LIMIT_MAX_REQUESTS", 5)
	cfg.RateLimitCleanupInterval = getEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute)

	cfg.CORSAllowedOrigin = os.Getenv("CORS_ALLOWED_ORIGIN")
	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

// loadDotEnv はファイルの内容を環境変数に設定する。ファイルが無い場合は何もしない。
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
