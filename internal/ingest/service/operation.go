package service

import (
	"sync/atomic"
	"time"

	"dealerhub_backend/internal/ingest/coerce"
	"dealerhub_backend/internal/ingest/transport"

	"github.com/google/uuid"
)

// Status is the lifecycle state of one upload operation.
type Status string

const (
	StatusInitialized  Status = "initialized"
	StatusProcessing   Status = "processing"
	StatusCompleted    Status = "completed"
	StatusCancelled    Status = "cancelled"
	StatusFailed       Status = "failed"
	StatusDisconnected Status = "disconnected"
)

// Terminal reports whether no further batches can be accepted in this state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// OperationConfig is the validated, typed form of the client's upload
// configuration. Type hints are parsed once here so the per-row loop never
// touches raw hint strings.
type OperationConfig struct {
	FieldMapping transport.FieldMapping
	TypeHints    map[string]coerce.Type
	Options      transport.UploadOptions
	TotalRecords int
	TotalBatches int

	// Provenance stamped onto every record written by this operation. The
	// coordinator fills BatchNumber per submitted batch.
	BatchID     string
	BatchNumber int
	TenantID    uuid.UUID
	CreatedBy   uuid.UUID
}

// Operation is the per-connection state of one bulk upload. All mutation goes
// through the Coordinator, which serializes access; the cancel flag alone is
// atomic because the session supervisor flips it from another goroutine.
type Operation struct {
	BatchID   string
	SessionID uuid.UUID
	UserID    uuid.UUID
	TenantID  uuid.UUID

	Config OperationConfig

	Status       Status
	CurrentBatch int

	// inFlight marks a batch currently being processed. Guarded by the
	// coordinator's mutex like every field except the cancel flag.
	inFlight bool

	Totals   transport.ResultCounts
	Entities transport.EntityCounts

	StartedAt time.Time

	cancelRequested atomic.Bool
}

// RequestCancel flips the cooperative cancellation flag. The processor polls
// it between rows; a row already started runs to completion.
func (o *Operation) RequestCancel() {
	o.cancelRequested.Store(true)
}

// CancelRequested reports whether cancellation was requested.
func (o *Operation) CancelRequested() bool {
	return o.cancelRequested.Load()
}

// Snapshot renders the state for get_upload_status and the REST status endpoint.
func (o *Operation) Snapshot() transport.UploadStatusPayload {
	return transport.UploadStatusPayload{
		BatchID:      o.BatchID,
		Status:       string(o.Status),
		CurrentBatch: o.CurrentBatch,
		TotalBatches: o.Config.TotalBatches,
		TotalRecords: o.Config.TotalRecords,
		Counts:       o.Totals,
	}
}
