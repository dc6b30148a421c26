package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppEnv   string
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Webhook  WebhookConfig
	DLQ      DLQConfig
	Tracing  TracingConfig
	LogLevel string
}

type ServerConfig struct {
	Port    string
	Timeout time.Duration
}

type DatabaseConfig struct {
	Driver   string // sqlite3 | postgres
	Path     string // sqlite dosya yolu
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

type WebhookConfig struct {
	StripeSecret       string
	IyzicoSecret       string
	SignatureTolerance time.Duration
}

type DLQConfig struct {
	MaxRetries    int
	RetrySchedule []time.Duration
	ScanInterval  time.Duration
	WorkerCount   int
	QueueSize     int
}

type TracingConfig struct {
	Enabled  bool
	Endpoint string
}

func Load() (*Config, error) {
	// .env yoksa ortam değişkenleriyle devam edilir.
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_TIMEOUT", "30s")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DB_DRIVER", "sqlite3")
	viper.SetDefault("DB_PATH", "creditflow.db")
	viper.SetDefault("DB_SSL_MODE", "disable")
	viper.SetDefault("REDIS_ENABLED", false)
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("WEBHOOK_SIGNATURE_TOLERANCE", "300s")
	viper.SetDefault("DLQ_MAX_RETRIES", 3)
	viper.SetDefault("DLQ_RETRY_SCHEDULE", "1m,5m,30m")
	viper.SetDefault("DLQ_SCAN_INTERVAL", "30s")
	viper.SetDefault("DLQ_WORKER_COUNT", 3)
	viper.SetDefault("DLQ_QUEUE_SIZE", 100)
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_ENDPOINT", "localhost:4317")

	var cfg Config

	cfg.AppEnv = viper.GetString("APP_ENV")
	cfg.Server.Port = viper.GetString("SERVER_PORT")
	cfg.Server.Timeout = viper.GetDuration("SERVER_TIMEOUT")

	cfg.Database.Driver = viper.GetString("DB_DRIVER")
	cfg.Database.Path = viper.GetString("DB_PATH")
	cfg.Database.Host = viper.GetString("DB_HOST")
	cfg.Database.Port = viper.GetString("DB_PORT")
	cfg.Database.User = viper.GetString("DB_USER")
	cfg.Database.Password = viper.GetString("DB_PASSWORD")
	cfg.Database.Name = viper.GetString("DB_NAME")
	cfg.Database.SSLMode = viper.GetString("DB_SSL_MODE")

	cfg.Redis.Enabled = viper.GetBool("REDIS_ENABLED")
	cfg.Redis.Host = viper.GetString("REDIS_HOST")
	cfg.Redis.Port = viper.GetString("REDIS_PORT")
	cfg.Redis.Password = viper.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = viper.GetInt("REDIS_DB")

	cfg.Webhook.StripeSecret = viper.GetString("WEBHOOK_STRIPE_SECRET")
	cfg.Webhook.IyzicoSecret = viper.GetString("WEBHOOK_IYZICO_SECRET")
	cfg.Webhook.SignatureTolerance = viper.GetDuration("WEBHOOK_SIGNATURE_TOLERANCE")

	cfg.DLQ.MaxRetries = viper.GetInt("DLQ_MAX_RETRIES")
	cfg.DLQ.RetrySchedule = parseSchedule(viper.GetString("DLQ_RETRY_SCHEDULE"))
	cfg.DLQ.ScanInterval = viper.GetDuration("DLQ_SCAN_INTERVAL")
	cfg.DLQ.WorkerCount = viper.GetInt("DLQ_WORKER_COUNT")
	cfg.DLQ.QueueSize = viper.GetInt("DLQ_QUEUE_SIZE")

	cfg.Tracing.Enabled = viper.GetBool("TRACING_ENABLED")
	cfg.Tracing.Endpoint = viper.GetString("TRACING_ENDPOINT")

	cfg.LogLevel = viper.GetString("LOG_LEVEL")

	return &cfg, nil
}

func parseSchedule(raw string) []time.Duration {
	var schedule []time.Duration
	for _, part := range strings.Split(raw, ",") {
		d, err := time.ParseDuration(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		schedule = append(schedule, d)
	}
	if len(schedule) == 0 {
		schedule = []time.Duration{time.Minute, 5 * time.Minute, 30 * time.Minute}
	}
	return schedule
}
