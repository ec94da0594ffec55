package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"

	"github.com/vladislavdragonenkov/orderflow/internal/service/outbox"
)

// EnvPrefix задаёт префикс переменных окружения: ORDERFLOW_GRPC_ADDR и т.д.
const EnvPrefix = "ORDERFLOW"

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	PublisherLog   = "log"
	PublisherKafka = "kafka"
	PublisherRedis = "redis"

	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	GRPCAddr    string `envconfig:"GRPC_ADDR" default:":50051"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	StorageDriver       string `envconfig:"STORAGE_DRIVER" default:"memory"`
	PostgresDSN         string `envconfig:"POSTGRES_DSN"`
	PostgresAutoMigrate bool   `envconfig:"POSTGRES_AUTO_MIGRATE" default:"true"`

	// Список приёмников через запятую; несколько дают fanout.
	Publishers         []string `envconfig:"PUBLISHER" default:"log"`
	KafkaBrokers       []string `envconfig:"KAFKA_BROKERS"`
	KafkaClientID      string   `envconfig:"KAFKA_CLIENT_ID" default:"orderflow"`
	KafkaTopicPrefix   string   `envconfig:"KAFKA_TOPIC_PREFIX" default:"orderflow."`
	KafkaDLQTopic      string   `envconfig:"KAFKA_DLQ_TOPIC" default:"orderflow.outbox.dlq"`
	RedisAddr          string   `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisChannelPrefix string   `envconfig:"REDIS_CHANNEL_PREFIX" default:"orderflow:"`

	OutboxPollInterval   time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"10s"`
	OutboxBatchSize      int           `envconfig:"OUTBOX_BATCH_SIZE" default:"20"`
	OutboxMaxRetries     int           `envconfig:"OUTBOX_MAX_RETRIES" default:"5"`
	OutboxPublishTimeout time.Duration `envconfig:"OUTBOX_PUBLISH_TIMEOUT" default:"5s"`
	OutboxLease          time.Duration `envconfig:"OUTBOX_LEASE" default:"1m"`
	OutboxDLQReportSpec  string        `envconfig:"OUTBOX_DLQ_REPORT_SPEC" default:"@every 1m"`

	CatalogURL      string        `envconfig:"CATALOG_URL"`
	CartURL         string        `envconfig:"CART_URL"`
	UpstreamTimeout time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"2s"`
}

// DefaultConfig возвращает конфигурацию со значениями по умолчанию.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:             ":50051",
		MetricsAddr:          ":9090",
		LogLevel:             "info",
		LogFormat:            LogFormatText,
		StorageDriver:        StorageDriverMemory,
		PostgresAutoMigrate:  true,
		Publishers:           []string{PublisherLog},
		KafkaClientID:        "orderflow",
		KafkaTopicPrefix:     "orderflow.",
		KafkaDLQTopic:        "orderflow.outbox.dlq",
		RedisAddr:            "localhost:6379",
		RedisChannelPrefix:   "orderflow:",
		OutboxPollInterval:   10 * time.Second,
		OutboxBatchSize:      20,
		OutboxMaxRetries:     5,
		OutboxPublishTimeout: 5 * time.Second,
		OutboxLease:          time.Minute,
		OutboxDLQReportSpec:  "@every 1m",
		UpstreamTimeout:      2 * time.Second,
	}
}

// LoadConfig читает необязательный .env, затем окружение с префиксом ORDERFLOW.
func LoadConfig(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process env config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))

	publishers := c.Publishers[:0]
	for _, p := range c.Publishers {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			publishers = append(publishers, p)
		}
	}
	c.Publishers = publishers

	brokers := c.KafkaBrokers[:0]
	for _, b := range c.KafkaBrokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	c.KafkaBrokers = brokers
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.GRPCAddr) == "" {
		errs = append(errs, errors.New("GRPC_ADDR is required"))
	}
	if strings.TrimSpace(c.MetricsAddr) == "" {
		errs = append(errs, errors.New("METRICS_ADDR is required"))
	}
	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be %s or %s, got %q", LogFormatText, LogFormatJSON, c.LogFormat))
	}

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported STORAGE_DRIVER %q", c.StorageDriver))
	}

	if len(c.Publishers) == 0 {
		errs = append(errs, errors.New("PUBLISHER must name at least one publisher"))
	}
	for _, p := range c.Publishers {
		switch p {
		case PublisherLog:
		case PublisherKafka:
			if len(c.KafkaBrokers) == 0 {
				errs = append(errs, errors.New("KAFKA_BROKERS is required for kafka publisher"))
			}
		case PublisherRedis:
			if strings.TrimSpace(c.RedisAddr) == "" {
				errs = append(errs, errors.New("REDIS_ADDR is required for redis publisher"))
			}
		default:
			errs = append(errs, fmt.Errorf("unsupported PUBLISHER %q", p))
		}
	}

	if c.OutboxPollInterval <= 0 {
		errs = append(errs, errors.New("OUTBOX_POLL_INTERVAL must be positive"))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("OUTBOX_BATCH_SIZE must be positive"))
	}
	if c.OutboxMaxRetries <= 0 {
		errs = append(errs, errors.New("OUTBOX_MAX_RETRIES must be positive"))
	}
	if c.OutboxPublishTimeout <= 0 {
		errs = append(errs, errors.New("OUTBOX_PUBLISH_TIMEOUT must be positive"))
	}
	if c.OutboxLease < outbox.MinLease(c.OutboxPublishTimeout) {
		errs = append(errs, errors.New("OUTBOX_LEASE must be at least twice OUTBOX_PUBLISH_TIMEOUT"))
	}
	if _, err := cron.ParseStandard(c.OutboxDLQReportSpec); err != nil {
		errs = append(errs, fmt.Errorf("OUTBOX_DLQ_REPORT_SPEC: %w", err))
	}
	if c.UpstreamTimeout <= 0 {
		errs = append(errs, errors.New("UPSTREAM_TIMEOUT must be positive"))
	}

	return errors.Join(errs...)
}
