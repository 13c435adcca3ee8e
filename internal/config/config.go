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

	// Redis（ゲストのカート追跡セッション）
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration

	// Retainful
	AppID         string
	SecretKey     string
	SiteURL       string
	PluginVersion string

	// Sync API
	SyncAPIURL           string
	SyncTimeout          time.Duration
	SyncRatePerSec       float64
	AllowInsecureSyncURL bool

	// Sync behavior
	OrderSyncEnabled          bool
	InstantOrderSync          bool
	ScheduleCartSync          bool
	ScheduleDelay             time.Duration
	RecoverHeldOrders         bool
	ConsiderOnHoldAsAbandoned bool
	PriceDecimals             int
	BaseCurrency              string
	PrettyPermalinks          bool
	ForceWebhookToken         bool     // トークン未発行の注文にもWebhook送信時にトークンを発行する
	TrackingIgnoredIPs        []string // カート追跡の対象外とするIP

	// Jobs
	JobPollInterval  time.Duration
	JobMaxConcurrent int
	JobRetentionDays int

	// Intake API
	IntakeToken       string
	RateLimitRecovery int

	// Logging
	LogLevel string

	// Server
	ServerPort  string
	MetricsPort string // ワーカーの/metrics公開ポート
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

	cfg.AppID = os.Getenv("APP_ID")
	if cfg.AppID == "" {
		missing = append(missing, "APP_ID")
	}

	cfg.SecretKey = os.Getenv("SECRET_KEY")
	if cfg.SecretKey == "" {
		missing = append(missing, "SECRET_KEY")
	}

	cfg.SiteURL = os.Getenv("SITE_URL")
	if cfg.SiteURL == "" {
		missing = append(missing, "SITE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.RedisAddr = getEnvString("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnvString("REDIS_PASSWORD", "")
	cfg.RedisDB = getEnvInt("REDIS_DB", 0)
	cfg.SessionTTL = getEnvDuration("SESSION_TTL", 48*time.Hour)
	cfg.PluginVersion = getEnvString("PLUGIN_VERSION", "2.6.0")
	cfg.SyncAPIURL = getEnvString("SYNC_API_URL", "")
	cfg.SyncTimeout = getEnvDuration("SYNC_TIMEOUT", 10*time.Second)
	cfg.SyncRatePerSec = getEnvFloat("SYNC_RATE_PER_SEC", 5)
	cfg.AllowInsecureSyncURL = getEnvBool("ALLOW_INSECURE_SYNC_URL", false)
	cfg.OrderSyncEnabled = getEnvBool("ORDER_SYNC_ENABLED", true)
	cfg.InstantOrderSync = getEnvBool("INSTANT_ORDER_SYNC", true)
	cfg.ScheduleCartSync = getEnvBool("SCHEDULE_CART_SYNC", true)
	cfg.ScheduleDelay = getEnvDuration("SCHEDULE_DELAY", 60*time.Second)
	cfg.RecoverHeldOrders = getEnvBool("RECOVER_HELD_ORDERS", true)
	cfg.ConsiderOnHoldAsAbandoned = getEnvBool("CONSIDER_ON_HOLD_AS_ABANDONED", false)
	cfg.PriceDecimals = getEnvInt("PRICE_DECIMALS", 2)
	cfg.BaseCurrency = getEnvString("BASE_CURRENCY", "USD")
	cfg.PrettyPermalinks = getEnvBool("PRETTY_PERMALINKS", true)
	cfg.ForceWebhookToken = getEnvBool("FORCE_WEBHOOK_TOKEN", false)
	cfg.TrackingIgnoredIPs = getEnvList("TRACKING_IGNORED_IPS")
	cfg.JobPollInterval = getEnvDuration("JOB_POLL_INTERVAL", 15*time.Second)
	cfg.JobMaxConcurrent = getEnvInt("JOB_MAX_CONCURRENT", 4)
	cfg.JobRetentionDays = getEnvInt("JOB_RETENTION_DAYS", 30)
	cfg.IntakeToken = getEnvString("INTAKE_TOKEN", "")
	cfg.RateLimitRecovery = getEnvInt("RATE_LIMIT_RECOVERY", 30)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.MetricsPort = getEnvString("METRICS_PORT", "9091")

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

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

// getEnvList はカンマ区切りの値を空要素を除いて返す。
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvBool は1/0, true/false等を解釈する。解釈できない値はデフォルトとする。
func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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
