package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/agentcloud/vector-db-proxy/internal/platform/logger"
)

const downloadTimeout = 2 * time.Minute

// GCSReader reads objects from Google Cloud Storage, or from a fake-gcs
// emulator over plain HTTP when running in gcs_emulator mode.
type GCSReader struct {
	log          *logger.Logger
	client       *storage.Client
	mode         Mode
	emulatorHost string
	http         *http.Client
}

func NewGCSReader(ctx context.Context, log *logger.Logger, cfg Config) (*GCSReader, error) {
	if log == nil {
		log = logger.NewNop()
	}
	client, err := newStorageClientForMode(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	r := &GCSReader{
		log:          log.With("service", "GCSReader"),
		client:       client,
		mode:         cfg.Mode,
		emulatorHost: strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/"),
		http:         &http.Client{},
	}
	r.log.Info(
		"Object storage initialized",
		"mode", cfg.Mode,
		"mode_source", cfg.ModeSource(),
		"emulator_host", cfg.EmulatorHost,
	)
	return r, nil
}

func newStorageClientForMode(ctx context.Context, cfg Config) (*storage.Client, error) {
	switch cfg.Mode {
	case ModeGCS:
		opts := ClientOptionsFromEnv()
		opts = append(opts, option.WithScopes(storage.ScopeReadOnly))
		return storage.NewClient(ctx, opts...)
	case ModeGCSEmulator:
		_ = os.Setenv("STORAGE_EMULATOR_HOST", strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/"))
		return storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, &ConfigError{Code: ConfigErrorInvalidMode, Mode: string(cfg.Mode)}
	}
}

func (r *GCSReader) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if r.mode == ModeGCSEmulator && r.emulatorHost != "" {
		return r.openEmulator(ctx, bucket, key)
	}
	ctx2, cancel := context.WithTimeout(ctx, downloadTimeout)
	rc, err := r.client.Bucket(bucket).Object(key).NewReader(ctx2)
	if err != nil {
		cancel()
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, fmt.Errorf("gs://%s/%s: %w", bucket, key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to open GCS reader: %w", err)
	}
	return &readCloserWithCancel{ReadCloser: rc, cancel: cancel}, nil
}

func (r *GCSReader) openEmulator(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	ctx2, cancel := context.WithTimeout(ctx, downloadTimeout)
	req, err := http.NewRequestWithContext(ctx2, http.MethodGet, r.emulatorObjectMediaURL(bucket, key), nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed creating emulator download request: %w", err)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed emulator download request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
		cancel()
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("gs://%s/%s: %w", bucket, key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("emulator download failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return &readCloserWithCancel{ReadCloser: resp.Body, cancel: cancel}, nil
}

func (r *GCSReader) emulatorObjectMediaURL(bucket, key string) string {
	return fmt.Sprintf(
		"%s/storage/v1/b/%s/o/%s?alt=media",
		r.emulatorHost,
		url.PathEscape(bucket),
		url.PathEscape(key),
	)
}
