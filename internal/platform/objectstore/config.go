package objectstore

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/agentcloud/vector-db-proxy/internal/platform/envutil"
)

type Mode string

const (
	ModeGCS         Mode = "gcs"
	ModeGCSEmulator Mode = "gcs_emulator"
	ModeMinio       Mode = "minio"
)

type Config struct {
	Mode                  Mode
	EmulatorHost          string
	CompatibilityFallback bool

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioRegion    string
}

func IsSupportedMode(mode Mode) bool {
	switch mode {
	case ModeGCS, ModeGCSEmulator, ModeMinio:
		return true
	default:
		return false
	}
}

// ModeSource tells operators whether the mode was chosen for them.
func (cfg Config) ModeSource() string {
	if cfg.CompatibilityFallback {
		return "compatibility_fallback"
	}
	return "explicit_or_default"
}

type ConfigErrorCode string

const (
	ConfigErrorInvalidMode         ConfigErrorCode = "invalid_mode"
	ConfigErrorMissingEmulatorHost ConfigErrorCode = "missing_emulator_host"
	ConfigErrorInvalidEmulatorHost ConfigErrorCode = "invalid_emulator_host"
	ConfigErrorMissingMinioConfig  ConfigErrorCode = "missing_minio_config"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Mode  string
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid object storage config"
	}
	switch e.Code {
	case ConfigErrorInvalidMode:
		return fmt.Sprintf(
			"invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q, %q)",
			e.Mode, ModeGCS, ModeGCSEmulator, ModeMinio,
		)
	case ConfigErrorMissingEmulatorHost:
		return fmt.Sprintf("OBJECT_STORAGE_MODE=%q requires STORAGE_EMULATOR_HOST to be set", ModeGCSEmulator)
	case ConfigErrorInvalidEmulatorHost:
		return fmt.Sprintf(
			"invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443",
			e.Value,
		)
	case ConfigErrorMissingMinioConfig:
		return fmt.Sprintf("OBJECT_STORAGE_MODE=%q requires %s to be set", ModeMinio, e.Value)
	default:
		return "invalid object storage config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		EmulatorHost:   strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST")),
		MinioEndpoint:  envutil.String("MINIO_ENDPOINT", ""),
		MinioAccessKey: envutil.String("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: envutil.String("MINIO_SECRET_KEY", ""),
		MinioUseSSL:    envutil.Bool("MINIO_USE_SSL", false),
		MinioRegion:    envutil.String("MINIO_REGION", ""),
	}

	rawMode := strings.TrimSpace(os.Getenv("OBJECT_STORAGE_MODE"))
	switch mode := Mode(strings.ToLower(rawMode)); mode {
	case "":
		if cfg.EmulatorHost != "" {
			cfg.Mode = ModeGCSEmulator
			cfg.CompatibilityFallback = true
		} else {
			cfg.Mode = ModeGCS
		}
	case ModeGCS, ModeGCSEmulator, ModeMinio:
		cfg.Mode = mode
	default:
		return cfg, &ConfigError{Code: ConfigErrorInvalidMode, Mode: rawMode}
	}

	if err := ValidateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func ValidateConfig(cfg Config) error {
	if !IsSupportedMode(cfg.Mode) {
		return &ConfigError{Code: ConfigErrorInvalidMode, Mode: string(cfg.Mode)}
	}
	switch cfg.Mode {
	case ModeGCSEmulator:
		if cfg.EmulatorHost == "" {
			return &ConfigError{Code: ConfigErrorMissingEmulatorHost, Mode: string(cfg.Mode)}
		}
		u, err := url.Parse(cfg.EmulatorHost)
		if err != nil || strings.TrimSpace(u.Scheme) == "" || strings.TrimSpace(u.Host) == "" {
			return &ConfigError{
				Code:  ConfigErrorInvalidEmulatorHost,
				Mode:  string(cfg.Mode),
				Value: cfg.EmulatorHost,
				Cause: err,
			}
		}
	case ModeMinio:
		for name, v := range map[string]string{
			"MINIO_ENDPOINT":   cfg.MinioEndpoint,
			"MINIO_ACCESS_KEY": cfg.MinioAccessKey,
			"MINIO_SECRET_KEY": cfg.MinioSecretKey,
		} {
			if v == "" {
				return &ConfigError{Code: ConfigErrorMissingMinioConfig, Mode: string(cfg.Mode), Value: name}
			}
		}
	}
	return nil
}
