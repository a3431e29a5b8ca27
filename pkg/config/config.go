package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable this service reads.
const EnvPrefix = "stockflow"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Outbox   OutboxConfig
	Notifier NotifierConfig
	Webhook  WebhookConfig
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env      string `envconfig:"STOCKFLOW_APP_ENV" default:"dev"`
	Port     string `envconfig:"STOCKFLOW_APP_PORT" default:"8080"`
	LogLevel string `envconfig:"STOCKFLOW_LOG_LEVEL" default:"info"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"STOCKFLOW_DB_DSN"`

	Host     string `envconfig:"STOCKFLOW_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"STOCKFLOW_DB_PORT" default:"5432"`
	User     string `envconfig:"STOCKFLOW_DB_USER"`
	Password string `envconfig:"STOCKFLOW_DB_PASSWORD"`
	Name     string `envconfig:"STOCKFLOW_DB_NAME"`
	SSLMode  string `envconfig:"STOCKFLOW_DB_SSLMODE" default:"disable"`

	AutoMigrate bool `envconfig:"STOCKFLOW_DB_AUTO_MIGRATE" default:"false"`

	MaxOpenConns    int           `envconfig:"STOCKFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOCKFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOCKFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOCKFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.User == "" || d.Name == "" {
		return fmt.Errorf("database DSN or host credentials are required")
	}
	d.DSN = fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(d.Password),
		d.Host,
		d.Port,
		d.Name,
		d.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	Address      string        `envconfig:"STOCKFLOW_REDIS_ADDR" default:"localhost:6379"`
	Password     string        `envconfig:"STOCKFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOCKFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOCKFLOW_REDIS_POOL_SIZE" default:"10"`
	DialTimeout  time.Duration `envconfig:"STOCKFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOCKFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOCKFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"STOCKFLOW_OUTBOX_BATCH_SIZE" default:"20"`
	PollInterval   time.Duration `envconfig:"STOCKFLOW_OUTBOX_POLL_INTERVAL" default:"20s"`
	MaxAttempts    int           `envconfig:"STOCKFLOW_OUTBOX_MAX_ATTEMPTS" default:"5"`
	StaleLockAfter time.Duration `envconfig:"STOCKFLOW_OUTBOX_STALE_LOCK_AFTER" default:"5m"`
}

type NotifierConfig struct {
	BatchSize    int           `envconfig:"STOCKFLOW_NOTIFIER_BATCH_SIZE" default:"50"`
	PollInterval time.Duration `envconfig:"STOCKFLOW_NOTIFIER_POLL_INTERVAL" default:"5s"`
	LockTTL      time.Duration `envconfig:"STOCKFLOW_NOTIFIER_LOCK_TTL" default:"1m"`
}

type WebhookConfig struct {
	BaseURL      string        `envconfig:"STOCKFLOW_WEBHOOK_BASE_URL"`
	RejectedPath string        `envconfig:"STOCKFLOW_WEBHOOK_REJECTED_PATH" default:"/webhooks/%s/orders/rejected"`
	CancelPath   string        `envconfig:"STOCKFLOW_WEBHOOK_CANCEL_PATH" default:"/webhooks/%s/orders/cancel-result"`
	Timeout      time.Duration `envconfig:"STOCKFLOW_WEBHOOK_TIMEOUT" default:"10s"`
}
