package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション設定を表す
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Hold     HoldConfig
	Payment  PaymentConfig
}

// ServerConfig はサーバー設定
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig はデータベース設定
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig はRedis設定
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// HoldConfig はシートホールドの設定
type HoldConfig struct {
	// TTL はホールドの有効期間（デフォルト15分）
	TTL time.Duration
	// ReapInterval は期限切れホールド整理ワーカーの実行間隔
	ReapInterval time.Duration
}

// PaymentConfig は決済コラボレーターの設定
type PaymentConfig struct {
	// CheckoutEndpoint は決済セッション作成APIのエンドポイント
	CheckoutEndpoint string
	// SuccessURL / CancelURL はチェックアウト完了後のリダイレクト先
	SuccessURL string
	CancelURL  string
	// Currency は請求通貨
	Currency string
	// Timeout はセッション作成リクエストのタイムアウト
	Timeout time.Duration
}

// Load は環境変数から設定を読み込む
// カレントディレクトリに .env があれば先に読み込む（ローカル開発用）
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "quackplan"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Hold: HoldConfig{
			TTL:          getDurationEnv("SEAT_HOLD_TTL", 15*time.Minute),
			ReapInterval: getDurationEnv("SEAT_HOLD_REAP_INTERVAL", 1*time.Minute),
		},
		Payment: PaymentConfig{
			CheckoutEndpoint: getEnv("PAYMENT_CHECKOUT_ENDPOINT", ""),
			SuccessURL:       getEnv("PAYMENT_SUCCESS_URL", "http://localhost:3000/checkout/success"),
			CancelURL:        getEnv("PAYMENT_CANCEL_URL", "http://localhost:3000/checkout/cancel"),
			Currency:         getEnv("PAYMENT_CURRENCY", "usd"),
			Timeout:          getDurationEnv("PAYMENT_TIMEOUT", 10*time.Second),
		},
	}
}

// DSN はPostgreSQL接続文字列を返す
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + c.Port +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.DBName +
		" sslmode=" + c.SSLMode
}

// Addr はRedis接続アドレスを返す
func (c *RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
