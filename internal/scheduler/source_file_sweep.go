package scheduler

import (
	"context"
	"time"

	"dealerhub_backend/internal/adapters/storage"
	"dealerhub_backend/internal/audit"
	"dealerhub_backend/platform/logger"
)

const (
	defaultSourceFileSweepInterval = time.Hour
	defaultSourceFileRetention     = 7 * 24 * time.Hour
)

// SourceFileSweep periodically removes archived source files that no
// completed upload ever referenced. A preview archives its file before the
// upload runs, so abandoned previews leave orphaned objects behind.
type SourceFileSweep struct {
	storage   *storage.MinIOService
	audit     *audit.Repository
	bucket    string
	log       *logger.Logger
	interval  time.Duration
	retention time.Duration
}

func NewSourceFileSweep(svc *storage.MinIOService, auditRepo *audit.Repository, bucket string, log *logger.Logger, interval, retention time.Duration) *SourceFileSweep {
	if interval <= 0 {
		interval = defaultSourceFileSweepInterval
	}
	if retention <= 0 {
		retention = defaultSourceFileRetention
	}

	return &SourceFileSweep{
		storage:   svc,
		audit:     auditRepo,
		bucket:    bucket,
		log:       log,
		interval:  interval,
		retention: retention,
	}
}

func (s *SourceFileSweep) Run(ctx context.Context) {
	if s == nil || s.storage == nil || s.audit == nil {
		return
	}

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *SourceFileSweep) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.retention)
	removed := 0

	for obj := range s.storage.ListObjects(ctx, s.bucket) {
		if obj.Err != nil {
			s.log.Warn("source file sweep listing failed", "bucket", s.bucket, "error", obj.Err)
			return
		}
		if obj.LastModified.After(cutoff) {
			continue
		}

		referenced, err := s.audit.SourceFileReferenced(ctx, obj.Key)
		if err != nil {
			s.log.Warn("source file sweep lookup failed", "object", obj.Key, "error", err)
			return
		}
		if referenced {
			continue
		}

		if err := s.storage.RemoveObject(ctx, s.bucket, obj.Key); err != nil {
			s.log.Warn("source file sweep removal failed", "object", obj.Key, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		s.log.Info("source file sweep removed orphaned files", "bucket", s.bucket, "removed", removed)
	}
}
