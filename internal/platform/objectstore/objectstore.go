package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/agentcloud/vector-db-proxy/internal/platform/logger"
)

var ErrObjectNotFound = errors.New("object not found")

// Reader opens objects by bucket and key.
type Reader interface {
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// New builds the Reader selected by cfg.Mode.
func New(ctx context.Context, log *logger.Logger, cfg Config) (Reader, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	switch cfg.Mode {
	case ModeMinio:
		return NewMinioReader(log, cfg)
	default:
		return NewGCSReader(ctx, log, cfg)
	}
}

// readCloserWithCancel ties a request context to the reader's lifetime.
// Cancelling before Close would truncate the body for the caller.
type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}
