// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// セッションストアの種類
const (
	SessionStoreMemory = "memory"
	SessionStoreCookie = "cookie"
)

// ユーザーストアの種類
const (
	UserStoreMemory = "memory"
	UserStoreRedis  = "redis"
	UserStoreSQLite = "sqlite"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // HTTPサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// セッション設定
	SessionSecret      string        // セッション署名用の秘密鍵
	SessionStore       string        // memory または cookie
	SessionMaxAge      time.Duration // ログインからの最大有効期間
	SessionIdleTimeout time.Duration // 無操作で失効するまでの時間

	// ユーザーストア設定
	UserStore    string // memory, redis, sqlite
	UserRedisURL string // USER_STORE=redis の接続URL
	SQLitePath   string // USER_STORE=sqlite のファイルパス
	BcryptCost   int    // パスワードハッシュのコスト

	// HTTP周り
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り、空なら無効）
	StaticDir          string // 静的ファイルのディレクトリ（空なら配信しない）

	// 監査ログ設定
	AuditRedisURL string        // 空の場合は監査ログを無効化
	AuditTTL      time.Duration // 監査イベントの保持期間

	// ログ設定
	LogLevel  string // debug, info, warn, error
	LogFormat string // console または json
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		SessionSecret:      getEnv("SESSION_SECRET", ""),
		SessionStore:       getEnv("SESSION_STORE", SessionStoreMemory),
		SessionMaxAge:      getEnvAsDuration("SESSION_MAX_AGE", 12*time.Hour),
		SessionIdleTimeout: getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),

		UserStore:    getEnv("USER_STORE", UserStoreMemory),
		UserRedisURL: getEnv("USER_REDIS_URL", "redis://127.0.0.1:6379/0"),
		SQLitePath:   getEnv("SQLITE_PATH", "site.db"),
		BcryptCost:   getEnvAsInt("BCRYPT_COST", 10),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		StaticDir:          getEnv("STATIC_DIR", ""),

		AuditRedisURL: getEnv("AUDIT_REDIS_URL", ""),
		AuditTTL:      getEnvAsDuration("AUDIT_TTL", 7*24*time.Hour),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.SessionStore {
	case SessionStoreMemory, SessionStoreCookie:
	default:
		return fmt.Errorf("unknown SESSION_STORE %q", c.SessionStore)
	}

	switch c.UserStore {
	case UserStoreMemory:
	case UserStoreRedis:
		if c.UserRedisURL == "" {
			return fmt.Errorf("USER_REDIS_URL is required when USER_STORE=redis")
		}
	case UserStoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when USER_STORE=sqlite")
		}
	default:
		return fmt.Errorf("unknown USER_STORE %q", c.UserStore)
	}

	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE must be positive")
	}
	if c.SessionIdleTimeout < 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must not be negative")
	}

	// ローカル開発では秘密鍵は任意（起動時にランダム生成する）
	if c.GinMode == "release" && c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required in release mode")
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は "30m" のような time.Duration 形式の環境変数を取得します。
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
