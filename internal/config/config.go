// Package config は環境変数からのアプリケーション設定読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// OIDC
	OIDCAuthority string // IdPのauthority URL。末尾スラッシュの有無は正規化される。
	OIDCAudience  string

	// OIDCメタデータキャッシュ
	OIDCMetadataTTL time.Duration

	// Rate Limit（req/min/user）
	RateLimitGeneral   int
	RateLimitTaskWrite int

	// Pagination
	DefaultPageSize int
	MaxPageSize     int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.OIDCAuthority = os.Getenv("OIDC_AUTHORITY")
	if cfg.OIDCAuthority == "" {
		missing = append(missing, "OIDC_AUTHORITY")
	}

	cfg.OIDCAudience = os.Getenv("OIDC_AUDIENCE")
	if cfg.OIDCAudience == "" {
		missing = append(missing, "OIDC_AUDIENCE")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.OIDCMetadataTTL = getEnvDuration("OIDC_METADATA_TTL", 1*time.Hour)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitTaskWrite = getEnvInt("RATE_LIMIT_TASK_WRITE", 30)
	cfg.DefaultPageSize = getEnvInt("DEFAULT_PAGE_SIZE", 50)
	cfg.MaxPageSize = getEnvInt("MAX_PAGE_SIZE", 200)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
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
	if err != nil {
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
	if err != nil {
		return defaultVal
	}
	return d
}
