// Package audit persists the completion audit trail of bulk ingestion
// operations. Rows are written by the background worker, not the request
// path, so a slow database never stalls a live upload session.
package audit

import (
	"context"
	"fmt"
	"time"

	"dealerhub_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opInsert        = "audit.repository.insert"
	opListByTenant  = "audit.repository.list_by_tenant"
	opSourceFileRef = "audit.repository.source_file_referenced"
)

// Entry is one completed upload operation.
type Entry struct {
	ID           uuid.UUID  `json:"id"`
	BatchID      string     `json:"batchId"`
	TenantID     *uuid.UUID `json:"tenantId,omitempty"`
	UserID       uuid.UUID  `json:"userId"`
	TotalRows    int        `json:"totalRows"`
	Created      int        `json:"created"`
	Updated      int        `json:"updated"`
	Skipped      int        `json:"skipped"`
	Errors       int        `json:"errors"`
	DurationMS   int64      `json:"durationMs"`
	SourceFileID *string    `json:"sourceFileId,omitempty"`
	CompletedAt  time.Time  `json:"completedAt"`
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes one completion entry.
func (r *Repository) Insert(ctx context.Context, entry Entry) error {
	if r.pool == nil {
		return apperr.Internal("database not configured").WithOp(opInsert)
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO ingest_audit_log
			(batch_id, tenant_id, user_id, total_rows, created, updated, skipped, errors, duration_ms, source_file_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.BatchID, entry.TenantID, entry.UserID,
		entry.TotalRows, entry.Created, entry.Updated, entry.Skipped, entry.Errors,
		entry.DurationMS, entry.SourceFileID,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, fmt.Sprintf("failed to insert audit entry for batch %s", entry.BatchID), err).WithOp(opInsert)
	}
	return nil
}

// ListByTenant returns the most recent completion entries for a tenant.
func (r *Repository) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]Entry, error) {
	if r.pool == nil {
		return nil, apperr.Internal("database not configured").WithOp(opListByTenant)
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, batch_id, tenant_id, user_id, total_rows, created, updated, skipped, errors, duration_ms, source_file_id, completed_at
		FROM ingest_audit_log
		WHERE tenant_id = $1
		ORDER BY completed_at DESC
		LIMIT $2`,
		tenantID, limit,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list audit entries", err).WithOp(opListByTenant)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.BatchID, &e.TenantID, &e.UserID,
			&e.TotalRows, &e.Created, &e.Updated, &e.Skipped, &e.Errors,
			&e.DurationMS, &e.SourceFileID, &e.CompletedAt,
		); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan audit entry", err).WithOp(opListByTenant)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SourceFileReferenced reports whether any completion entry points at the
// given archived source file.
func (r *Repository) SourceFileReferenced(ctx context.Context, sourceFileID string) (bool, error) {
	if r.pool == nil {
		return false, apperr.Internal("database not configured").WithOp(opSourceFileRef)
	}

	var referenced bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM ingest_audit_log WHERE source_file_id = $1)`,
		sourceFileID,
	).Scan(&referenced)
	if err != nil {
		return false, apperr.Wrap(apperr.KindInternal, "failed to check source file reference", err).WithOp(opSourceFileRef)
	}
	return referenced, nil
}
