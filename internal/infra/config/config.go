package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервера приёма отметок.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	TZ          string `envconfig:"TZ" default:"Europe/Berlin"`
	Port        int    `envconfig:"PORT" default:"5000"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`

	DB struct {
		Driver       string `envconfig:"DB_DRIVER" default:"postgres"`
		SQLitePath   string `envconfig:"SQLITE_PATH" default:"data/canteen.db"`
		SeedDefaults bool   `envconfig:"DB_SEED_DEFAULTS" default:"true"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr   string `envconfig:"REDIS_ADDR"`
	RabbitMQURL string `envconfig:"RABBITMQ_URL"`

	Events struct {
		Backend string `envconfig:"STAMP_EVENTS_BACKEND" default:"none"`
		Queue   string `envconfig:"STAMP_EVENTS_QUEUE" default:"stamp_events"`
	} `envconfig:""`

	LatestStampTTL time.Duration `envconfig:"LATEST_STAMP_TTL" default:"24h"`

	Readers struct {
		OnlineThreshold time.Duration `envconfig:"READER_ONLINE_THRESHOLD" default:"30s"`
		MonitorInterval time.Duration `envconfig:"READER_MONITOR_INTERVAL" default:"10s"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
