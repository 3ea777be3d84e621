// Package storage provides the MinIO-backed object storage service used to
// archive raw ingestion source files.
package storage

import (
	"context"
	"fmt"
	"io"

	"dealerhub_backend/platform/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOService wraps a MinIO client with the operations the ingest module
// needs: bucket provisioning and streaming uploads.
type MinIOService struct {
	client      *minio.Client
	maxFileSize int64
}

// NewMinIOService creates a new MinIO storage service.
func NewMinIOService(cfg config.MinIOConfig) (*MinIOService, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, fmt.Errorf("MinIO is not configured")
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinIOService{
		client:      client,
		maxFileSize: cfg.GetMinIOMaxFileSize(),
	}, nil
}

// EnsureBucketExists creates the bucket if it doesn't exist.
func (s *MinIOService) EnsureBucketExists(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
	}

	return nil
}

// Upload streams an object into the bucket. size may be -1 when unknown;
// the client then buffers in parts. originalName is kept as object metadata
// so an archived file can be traced back to what the user uploaded.
func (s *MinIOService) Upload(ctx context.Context, bucket, objectName, originalName, contentType string, size int64, reader io.Reader) error {
	if s.maxFileSize > 0 && size > s.maxFileSize {
		return fmt.Errorf("file size %d exceeds the %d byte limit", size, s.maxFileSize)
	}

	opts := minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"original-filename": originalName,
		},
	}
	if _, err := s.client.PutObject(ctx, bucket, objectName, reader, size, opts); err != nil {
		return fmt.Errorf("failed to upload object %s: %w", objectName, err)
	}
	return nil
}

// ListObjects streams info for every object in the bucket. Entries with a
// non-nil Err field signal listing failures.
func (s *MinIOService) ListObjects(ctx context.Context, bucket string) <-chan minio.ObjectInfo {
	return s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{})
}

// RemoveObject deletes a single object from the bucket.
func (s *MinIOService) RemoveObject(ctx context.Context, bucket, objectName string) error {
	if err := s.client.RemoveObject(ctx, bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove object %s: %w", objectName, err)
	}
	return nil
}
