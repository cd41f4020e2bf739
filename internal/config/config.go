package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Server
	ServerPort string
	BaseURL    string
	LogLevel   string

	// Session / Cookie
	SessionMaxAge int
	CookieSecure  bool
	CookieDomain  string

	// CORS
	CORSAllowedOrigin string

	// Catalog
	GoogleBooksAPIKey      string
	GoogleBooksBaseURL     string
	TMDbAPIKey             string
	TMDbBaseURL            string
	TMDbImageBaseURL       string
	CatalogTimeout         time.Duration
	CatalogMaxResponseSize int64
	CatalogSearchCacheSize int
	CatalogSearchCacheTTL  time.Duration
	CatalogBreakerFailures int
	CatalogBreakerTimeout  time.Duration

	// Login Throttle
	LoginIdentityThreshold int
	LoginOriginThreshold   int
	LoginWindow            time.Duration
	LoginAttemptRetention  time.Duration

	// Rate Limit (req/min)
	RateLimitGeneral    int
	RateLimitLibraryAdd int

	// Worker
	CleanupInterval time.Duration
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は、未設定のものをまとめてエラーとして返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.TMDbAPIKey = os.Getenv("TMDB_API_KEY")
	if cfg.TMDbAPIKey == "" {
		missing = append(missing, "TMDB_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	// 空文字はクライアント側の既定URLを使う
	cfg.GoogleBooksAPIKey = getEnvString("GOOGLE_BOOKS_API_KEY", "")
	cfg.GoogleBooksBaseURL = getEnvString("GOOGLE_BOOKS_BASE_URL", "")
	cfg.TMDbBaseURL = getEnvString("TMDB_BASE_URL", "")
	cfg.TMDbImageBaseURL = getEnvString("TMDB_IMAGE_BASE_URL", "")
	cfg.CatalogTimeout = getEnvDuration("CATALOG_TIMEOUT", 10*time.Second)
	cfg.CatalogMaxResponseSize = getEnvInt64("CATALOG_MAX_RESPONSE_SIZE", 2<<20)
	cfg.CatalogSearchCacheSize = getEnvInt("CATALOG_SEARCH_CACHE_SIZE", 512)
	cfg.CatalogSearchCacheTTL = getEnvDuration("CATALOG_SEARCH_CACHE_TTL", 10*time.Minute)
	cfg.CatalogBreakerFailures = getEnvInt("CATALOG_BREAKER_FAILURES", 5)
	cfg.CatalogBreakerTimeout = getEnvDuration("CATALOG_BREAKER_TIMEOUT", 30*time.Second)

	cfg.LoginIdentityThreshold = getEnvInt("LOGIN_IDENTITY_THRESHOLD", 5)
	cfg.LoginOriginThreshold = getEnvInt("LOGIN_ORIGIN_THRESHOLD", 15)
	cfg.LoginWindow = getEnvDuration("LOGIN_WINDOW", 15*time.Minute)
	cfg.LoginAttemptRetention = getEnvDuration("LOGIN_ATTEMPT_RETENTION", 7*24*time.Hour)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLibraryAdd = getEnvInt("RATE_LIMIT_LIBRARY_ADD", 30)

	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// getEnvInt は正の整数のみ受け付け、それ以外はデフォルト値を返す。
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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
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
