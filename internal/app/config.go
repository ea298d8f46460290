package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentcloud/vector-db-proxy/internal/ingestion/chunker"
	"github.com/agentcloud/vector-db-proxy/internal/ingestion/status"
	"github.com/agentcloud/vector-db-proxy/internal/ingestion/subscriber"
	"github.com/agentcloud/vector-db-proxy/internal/platform/embedding"
	"github.com/agentcloud/vector-db-proxy/internal/platform/envutil"
	"github.com/agentcloud/vector-db-proxy/internal/platform/objectstore"
	"github.com/agentcloud/vector-db-proxy/internal/platform/qdrant"
	"github.com/agentcloud/vector-db-proxy/internal/queue/amqp"
	"github.com/agentcloud/vector-db-proxy/internal/queue/kafka"
	"github.com/agentcloud/vector-db-proxy/internal/queue/redisstream"
)

type QueueDriver string

const (
	QueueDriverAMQP  QueueDriver = "amqp"
	QueueDriverKafka QueueDriver = "kafka"
	QueueDriverRedis QueueDriver = "redis"
)

type Config struct {
	LogMode     string
	ServiceName string
	Environment string
	Version     string
	HTTPAddr    string
	StagingDir  string
	// SourceMetadata adds filename, bucket and file_type to chunk payloads.
	SourceMetadata bool

	QueueDriver QueueDriver
	AMQP        amqp.Config
	Kafka       kafka.Config
	Redis       redisstream.Config
	Subscriber  subscriber.Config

	Storage   objectstore.Config
	Qdrant    qdrant.Config
	Embedding embedding.Config
	Chunking  chunker.Config
	Status    status.Config
}

// LoadConfig resolves every section from the environment and reports all
// section errors at once.
func LoadConfig() (Config, error) {
	cfg := Config{
		LogMode:        envutil.String("LOG_MODE", "development"),
		ServiceName:    envutil.String("SERVICE_NAME", "vector-db-proxy"),
		Environment:    envutil.String("ENVIRONMENT", "local"),
		Version:        envutil.String("SERVICE_VERSION", "dev"),
		HTTPAddr:       os.Getenv("HTTP_ADDR"),
		StagingDir:     envutil.String("STAGING_DIR", filepath.Join(os.TempDir(), "vector-db-proxy")),
		SourceMetadata: envutil.Bool("INGEST_SOURCE_METADATA", false),
		QueueDriver:    QueueDriver(strings.ToLower(envutil.String("QUEUE_DRIVER", string(QueueDriverAMQP)))),
		AMQP: amqp.Config{
			URL:      amqpURLFromEnv(),
			Prefetch: envutil.Int("AMQP_PREFETCH", 0),
		},
		Kafka: kafka.Config{
			Brokers:  envutil.List("KAFKA_BROKERS"),
			MinBytes: envutil.Int("KAFKA_MIN_BYTES", 1),
			MaxBytes: envutil.Int("KAFKA_MAX_BYTES", 10<<20),
			MaxWait:  envutil.Duration("KAFKA_MAX_WAIT", time.Second),
		},
		Redis: redisstream.Config{
			Addr:     envutil.String("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envutil.Int("REDIS_DB", 0),
			Block:    envutil.Duration("REDIS_BLOCK", 5*time.Second),
			Count:    int64(envutil.Int("REDIS_COUNT", 10)),
		},
		Chunking: chunker.ResolveConfigFromEnv(),
		Status:   status.ResolveConfigFromEnv(),
	}
	if _, set := os.LookupEnv("HTTP_ADDR"); !set {
		cfg.HTTPAddr = ":8080"
	}

	var errs []error
	var err error
	switch cfg.QueueDriver {
	case QueueDriverAMQP, QueueDriverKafka, QueueDriverRedis:
	default:
		errs = append(errs, fmt.Errorf("QUEUE_DRIVER: unsupported driver %q", cfg.QueueDriver))
	}
	if cfg.Subscriber, err = subscriber.ResolveConfigFromEnv(); err != nil {
		errs = append(errs, fmt.Errorf("subscriber config: %w", err))
	}
	cfg.Subscriber.Driver = string(cfg.QueueDriver)
	if cfg.Storage, err = objectstore.ResolveConfigFromEnv(); err != nil {
		errs = append(errs, fmt.Errorf("object storage config: %w", err))
	}
	if cfg.Qdrant, err = qdrant.ResolveConfigFromEnv(); err != nil {
		errs = append(errs, fmt.Errorf("qdrant config: %w", err))
	}
	if cfg.Embedding, err = embedding.ResolveConfigFromEnv(); err != nil {
		errs = append(errs, fmt.Errorf("embedding config: %w", err))
	}
	return cfg, errors.Join(errs...)
}

// amqpURLFromEnv prefers AMQP_URL and falls back to the RABBITMQ_* parts.
func amqpURLFromEnv() string {
	if u := envutil.String("AMQP_URL", ""); u != "" {
		return u
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%s/%s",
		envutil.String("RABBITMQ_USERNAME", "guest"),
		envutil.String("RABBITMQ_PASSWORD", "guest"),
		envutil.String("RABBITMQ_HOST", "localhost"),
		envutil.String("RABBITMQ_PORT", "5672"),
		strings.TrimPrefix(envutil.String("RABBITMQ_VHOST", ""), "/"),
	)
}
