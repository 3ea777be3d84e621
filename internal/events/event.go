// Package events defines the domain events exchanged between modules.
package events

import (
	"time"

	platformevents "dealerhub_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = platformevents.Event
	BaseEvent   = platformevents.BaseEvent
	Handler     = platformevents.Handler
	HandlerFunc = platformevents.HandlerFunc
	Bus         = platformevents.Bus
)

// Re-export platform functions
var NewBaseEvent = platformevents.NewBaseEvent

// UploadCompleted fires when a bulk upload operation reaches its final batch.
type UploadCompleted struct {
	BaseEvent
	BatchID    string
	TenantID   uuid.UUID
	UserID     uuid.UUID
	TotalRows  int
	Created    int
	Updated    int
	Skipped    int
	ErrorCount int
	Duration   time.Duration
}

func (e UploadCompleted) EventName() string { return "ingest.upload.completed" }

// UploadCancelled fires when the client cancels an in-flight upload.
type UploadCancelled struct {
	BaseEvent
	BatchID  string
	TenantID uuid.UUID
	UserID   uuid.UUID
}

func (e UploadCancelled) EventName() string { return "ingest.upload.cancelled" }

// UploadFailed fires when batch processing hits an unrecoverable error
// outside the per-row error boundary.
type UploadFailed struct {
	BaseEvent
	BatchID  string
	TenantID uuid.UUID
	UserID   uuid.UUID
	Reason   string
}

func (e UploadFailed) EventName() string { return "ingest.upload.failed" }
