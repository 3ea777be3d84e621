// Package adapters contains thin glue between modules and shared
// infrastructure services.
package adapters

import (
	"context"
	"io"

	"dealerhub_backend/internal/adapters/storage"
	"dealerhub_backend/internal/ingest/service"
)

// SourceFileArchiver adapts the MinIO storage service to the ingest module's
// FileArchiver port.
type SourceFileArchiver struct {
	storage *storage.MinIOService
	bucket  string
}

// NewSourceFileArchiver wires the archiver to its bucket. The caller ensures
// the bucket exists at startup.
func NewSourceFileArchiver(svc *storage.MinIOService, bucket string) *SourceFileArchiver {
	return &SourceFileArchiver{storage: svc, bucket: bucket}
}

// ArchiveSourceFile stores the raw uploaded file under its source file id.
func (a *SourceFileArchiver) ArchiveSourceFile(ctx context.Context, objectName, fileName string, size int64, reader io.Reader) error {
	return a.storage.Upload(ctx, a.bucket, objectName, fileName, "text/csv", size, reader)
}

var _ service.FileArchiver = (*SourceFileArchiver)(nil)
