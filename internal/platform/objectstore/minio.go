package objectstore

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/agentcloud/vector-db-proxy/internal/platform/logger"
)

// MinioReader reads objects from MinIO or any S3 compatible endpoint.
type MinioReader struct {
	log    *logger.Logger
	client *minio.Client
}

func NewMinioReader(log *logger.Logger, cfg Config) (*MinioReader, error) {
	if log == nil {
		log = logger.NewNop()
	}
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	r := &MinioReader{log: log.With("service", "MinioReader"), client: client}
	r.log.Info("Object storage initialized", "mode", ModeMinio, "endpoint", cfg.MinioEndpoint, "ssl", cfg.MinioUseSSL)
	return r, nil
}

func (r *MinioReader) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := r.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classifyMinioError(bucket, key, err)
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller reads.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, classifyMinioError(bucket, key, err)
	}
	return obj, nil
}

func classifyMinioError(bucket, key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("s3://%s/%s: %w", bucket, key, ErrObjectNotFound)
	default:
		return fmt.Errorf("minio get object: %w", err)
	}
}
