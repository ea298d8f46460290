package qdrant

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/agentcloud/vector-db-proxy/internal/platform/envutil"
	"github.com/agentcloud/vector-db-proxy/internal/vectorstore"
)

type Transport string

const (
	TransportREST Transport = "rest"
	TransportGRPC Transport = "grpc"

	defaultGRPCPort = "6334"
)

type Config struct {
	Transport         Transport
	URL               string
	GRPCAddr          string
	APIKey            string
	Timeout           time.Duration
	Distance          vectorstore.Distance
	CreateCollections bool
}

type ConfigErrorCode string

const (
	ConfigErrorMissingURL       ConfigErrorCode = "missing_url"
	ConfigErrorInvalidURL       ConfigErrorCode = "invalid_url"
	ConfigErrorInvalidTransport ConfigErrorCode = "invalid_transport"
	ConfigErrorInvalidGRPCAddr  ConfigErrorCode = "invalid_grpc_addr"
	ConfigErrorInvalidDistance  ConfigErrorCode = "invalid_distance"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid qdrant config"
	}
	switch e.Code {
	case ConfigErrorMissingURL:
		return "QDRANT_URL is required"
	case ConfigErrorInvalidURL:
		return fmt.Sprintf(
			"invalid QDRANT_URL=%q; expected absolute URL like http://qdrant:6333",
			e.Value,
		)
	case ConfigErrorInvalidTransport:
		return fmt.Sprintf("invalid QDRANT_TRANSPORT=%q (allowed: %q, %q)", e.Value, TransportREST, TransportGRPC)
	case ConfigErrorInvalidGRPCAddr:
		return fmt.Sprintf("invalid QDRANT_GRPC_ADDR=%q; expected host:port like qdrant:6334", e.Value)
	case ConfigErrorInvalidDistance:
		return fmt.Sprintf("invalid QDRANT_DISTANCE=%q (allowed: Cosine, Dot, Euclid, Manhattan)", e.Value)
	default:
		return "invalid qdrant config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func ResolveConfigFromEnv() (Config, error) {
	rawDistance := strings.TrimSpace(os.Getenv("QDRANT_DISTANCE"))
	distance, ok := vectorstore.ParseDistance(rawDistance)
	if !ok {
		return Config{}, &ConfigError{Code: ConfigErrorInvalidDistance, Value: rawDistance}
	}
	cfg := Config{
		Transport:         Transport(strings.ToLower(envutil.String("QDRANT_TRANSPORT", string(TransportREST)))),
		URL:               strings.TrimSpace(os.Getenv("QDRANT_URL")),
		GRPCAddr:          strings.TrimSpace(os.Getenv("QDRANT_GRPC_ADDR")),
		APIKey:            strings.TrimSpace(os.Getenv("QDRANT_API_KEY")),
		Timeout:           envutil.Duration("QDRANT_TIMEOUT", 30*time.Second),
		Distance:          distance,
		CreateCollections: envutil.Bool("QDRANT_CREATE_COLLECTIONS", true),
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// normalize validates cfg and fills GRPCAddr from the URL host when unset.
func (cfg *Config) normalize() error {
	if err := ValidateConfig(*cfg); err != nil {
		return err
	}
	if cfg.Transport == TransportGRPC && cfg.GRPCAddr == "" {
		u, _ := url.Parse(cfg.URL)
		cfg.GRPCAddr = net.JoinHostPort(u.Hostname(), defaultGRPCPort)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return nil
}

func ValidateConfig(cfg Config) error {
	switch cfg.Transport {
	case TransportREST, TransportGRPC:
	default:
		return &ConfigError{Code: ConfigErrorInvalidTransport, Value: string(cfg.Transport)}
	}
	if cfg.URL == "" && !(cfg.Transport == TransportGRPC && cfg.GRPCAddr != "") {
		return &ConfigError{Code: ConfigErrorMissingURL}
	}
	if cfg.URL != "" {
		parsed, err := url.Parse(cfg.URL)
		if err != nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
			return &ConfigError{
				Code:  ConfigErrorInvalidURL,
				Value: cfg.URL,
				Cause: err,
			}
		}
	}
	if cfg.GRPCAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.GRPCAddr); err != nil {
			return &ConfigError{Code: ConfigErrorInvalidGRPCAddr, Value: cfg.GRPCAddr, Cause: err}
		}
	}
	return nil
}
