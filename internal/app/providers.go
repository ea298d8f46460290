package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	neturl "net/url"

	"github.com/agentcloud/vector-db-proxy/internal/platform/logger"
	"github.com/agentcloud/vector-db-proxy/internal/platform/objectstore"
	"github.com/agentcloud/vector-db-proxy/internal/platform/qdrant"
	"github.com/agentcloud/vector-db-proxy/internal/queue"
	"github.com/agentcloud/vector-db-proxy/internal/queue/amqp"
	"github.com/agentcloud/vector-db-proxy/internal/queue/kafka"
	"github.com/agentcloud/vector-db-proxy/internal/queue/redisstream"
	"github.com/agentcloud/vector-db-proxy/internal/vectorstore"
)

var (
	newQdrantRESTStore = func(ctx context.Context, log *logger.Logger, cfg qdrant.Config) (vectorstore.Store, error) {
		return qdrant.NewVectorStore(ctx, log, cfg)
	}
	newQdrantGRPCStore = func(ctx context.Context, log *logger.Logger, cfg qdrant.Config) (vectorstore.Store, error) {
		return qdrant.NewGRPCStore(ctx, log, cfg)
	}
	newObjectReader = objectstore.New

	dialAMQP = func(log *logger.Logger, cfg amqp.Config) (queue.Broker, error) { return amqp.Dial(log, cfg) }
	newKafka = func(log *logger.Logger, cfg kafka.Config) (queue.Broker, error) { return kafka.New(log, cfg) }
	newRedis = func(log *logger.Logger, cfg redisstream.Config) (queue.Broker, error) {
		return redisstream.New(log, cfg)
	}
)

type BootstrapErrorCode string

const (
	BootstrapErrorInvalidDriver       BootstrapErrorCode = "invalid_driver"
	BootstrapErrorMissingQdrantURL    BootstrapErrorCode = "missing_qdrant_url"
	BootstrapErrorInvalidQdrantURL    BootstrapErrorCode = "invalid_qdrant_url"
	BootstrapErrorQdrantConfigFailed  BootstrapErrorCode = "qdrant_config_failed"
	BootstrapErrorInvalidStorageMode  BootstrapErrorCode = "invalid_storage_mode"
	BootstrapErrorMissingEmulatorHost BootstrapErrorCode = "missing_emulator_host"
	BootstrapErrorInvalidEmulatorHost BootstrapErrorCode = "invalid_emulator_host"
	BootstrapErrorMissingMinioConfig  BootstrapErrorCode = "missing_minio_config"
	BootstrapErrorConnectFailed       BootstrapErrorCode = "connect_failed"
	BootstrapErrorInitFailed          BootstrapErrorCode = "init_failed"
)

// BootstrapError reports which external dependency failed to come up.
type BootstrapError struct {
	Code      BootstrapErrorCode
	Component string
	Provider  string
	Cause     error
}

func (e *BootstrapError) Error() string {
	if e == nil {
		return "bootstrap failed"
	}
	return fmt.Sprintf(
		"%s bootstrap failed (code=%s provider=%q): %v",
		e.Component,
		e.Code,
		e.Provider,
		e.Cause,
	)
}

func (e *BootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func bootstrapErrorCode(err error) BootstrapErrorCode {
	var be *BootstrapError
	if errors.As(err, &be) && be != nil {
		return be.Code
	}
	return BootstrapErrorInitFailed
}

// resolveBroker connects the queue driver named by cfg.QueueDriver.
func resolveBroker(log *logger.Logger, cfg Config) (queue.Broker, error) {
	driver := string(cfg.QueueDriver)
	log.Info("Selecting queue driver", "driver", driver)

	var (
		b   queue.Broker
		err error
	)
	switch cfg.QueueDriver {
	case QueueDriverAMQP:
		b, err = dialAMQP(log, cfg.AMQP)
	case QueueDriverKafka:
		b, err = newKafka(log, cfg.Kafka)
	case QueueDriverRedis:
		b, err = newRedis(log, cfg.Redis)
	default:
		return nil, &BootstrapError{
			Code:      BootstrapErrorInvalidDriver,
			Component: "queue",
			Provider:  driver,
			Cause:     fmt.Errorf("unsupported queue driver %q", driver),
		}
	}
	if err != nil {
		classified := classifyConnectError("queue", driver, err)
		log.Error("Queue bootstrap failed", "driver", driver, "error_code", bootstrapErrorCode(classified), "error", classified)
		return nil, classified
	}
	return b, nil
}

// resolveVectorStore builds the Qdrant store for the configured transport.
func resolveVectorStore(ctx context.Context, log *logger.Logger, cfg qdrant.Config) (vectorstore.Store, error) {
	transport := string(cfg.Transport)
	log.Info(
		"Selecting vector store transport",
		"transport", transport,
		"qdrant_url", cfg.URL,
		"qdrant_grpc_addr", cfg.GRPCAddr,
		"distance", cfg.Distance,
	)

	var (
		store vectorstore.Store
		err   error
	)
	switch cfg.Transport {
	case qdrant.TransportGRPC:
		store, err = newQdrantGRPCStore(ctx, log, cfg)
	case qdrant.TransportREST, "":
		store, err = newQdrantRESTStore(ctx, log, cfg)
	default:
		err = &qdrant.ConfigError{Code: qdrant.ConfigErrorInvalidTransport, Value: transport}
	}
	if err != nil {
		classified := classifyVectorStoreBootstrapError(transport, err)
		log.Error(
			"Vector store bootstrap failed",
			"transport", transport,
			"error_code", bootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}
	return store, nil
}

func classifyVectorStoreBootstrapError(transport string, err error) error {
	if err == nil {
		return nil
	}
	var existing *BootstrapError
	if errors.As(err, &existing) {
		return err
	}
	code := BootstrapErrorInitFailed
	var cfgErr *qdrant.ConfigError
	if errors.As(err, &cfgErr) && cfgErr != nil {
		switch cfgErr.Code {
		case qdrant.ConfigErrorMissingURL:
			code = BootstrapErrorMissingQdrantURL
		case qdrant.ConfigErrorInvalidURL, qdrant.ConfigErrorInvalidGRPCAddr:
			code = BootstrapErrorInvalidQdrantURL
		default:
			code = BootstrapErrorQdrantConfigFailed
		}
	} else if isConnectError(err) {
		code = BootstrapErrorConnectFailed
	}
	return &BootstrapError{Code: code, Component: "vector_store", Provider: transport, Cause: err}
}

// resolveObjectReader opens the object storage client for cfg.Mode.
func resolveObjectReader(ctx context.Context, log *logger.Logger, cfg objectstore.Config) (objectstore.Reader, error) {
	log.Info(
		"Selecting object storage mode",
		"mode", cfg.Mode,
		"mode_source", cfg.ModeSource(),
		"emulator_host", cfg.EmulatorHost,
		"minio_endpoint", cfg.MinioEndpoint,
	)
	r, err := newObjectReader(ctx, log, cfg)
	if err != nil {
		classified := classifyStorageBootstrapError(cfg, err)
		log.Error(
			"Object storage bootstrap failed",
			"mode", cfg.Mode,
			"error_code", bootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}
	return r, nil
}

func classifyStorageBootstrapError(cfg objectstore.Config, err error) error {
	if err == nil {
		return nil
	}
	var existing *BootstrapError
	if errors.As(err, &existing) {
		return err
	}
	code := BootstrapErrorInitFailed
	var cfgErr *objectstore.ConfigError
	if errors.As(err, &cfgErr) && cfgErr != nil {
		switch cfgErr.Code {
		case objectstore.ConfigErrorInvalidMode:
			code = BootstrapErrorInvalidStorageMode
		case objectstore.ConfigErrorMissingEmulatorHost:
			code = BootstrapErrorMissingEmulatorHost
		case objectstore.ConfigErrorInvalidEmulatorHost:
			code = BootstrapErrorInvalidEmulatorHost
		case objectstore.ConfigErrorMissingMinioConfig:
			code = BootstrapErrorMissingMinioConfig
		}
	} else if isConnectError(err) {
		code = BootstrapErrorConnectFailed
	}
	return &BootstrapError{Code: code, Component: "object_storage", Provider: string(cfg.Mode), Cause: err}
}

func classifyConnectError(component, provider string, err error) error {
	code := BootstrapErrorInitFailed
	if isConnectError(err) {
		code = BootstrapErrorConnectFailed
	}
	return &BootstrapError{Code: code, Component: component, Provider: provider, Cause: err}
}

func isConnectError(err error) bool {
	var netErr net.Error
	var urlErr *neturl.Error
	var opErr *qdrant.OperationError
	switch {
	case errors.As(err, &opErr) && opErr != nil:
		return opErr.Code == qdrant.OperationErrorTransportFailed || opErr.Code == qdrant.OperationErrorTimeout
	case errors.As(err, &urlErr), errors.As(err, &netErr):
		return true
	default:
		return false
	}
}

func closeIfCloser(log *logger.Logger, name string, v any) {
	c, ok := v.(io.Closer)
	if !ok || c == nil {
		return
	}
	if err := c.Close(); err != nil {
		log.Warn("Close failed", "component", name, "error", err)
	}
}
